package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/gatekeeper/internal/batch"
	"github.com/ehrlich-b/gatekeeper/internal/containerrt/dockerrt"
	"github.com/ehrlich-b/gatekeeper/internal/discovery"
	"github.com/ehrlich-b/gatekeeper/internal/gwconfig"
	"github.com/ehrlich-b/gatekeeper/internal/httpapi"
	"github.com/ehrlich-b/gatekeeper/internal/logger"
	"github.com/ehrlich-b/gatekeeper/internal/reaper"
	"github.com/ehrlich-b/gatekeeper/internal/registry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the gateway's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := gwconfig.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			games, err := discovery.Discover(cfg.AlfworldConfigPath)
			if err != nil {
				return fmt.Errorf("discover game files: %w", err)
			}
			logger.Info("discovered game files", "count", len(games))

			rt, err := dockerrt.New()
			if err != nil {
				return fmt.Errorf("connect to docker: %w", err)
			}
			defer rt.Close()

			reg := registry.New(cfg, rt, games, nil)
			coordinator := batch.New(cfg.BatchWindow())
			server := httpapi.New(reg, coordinator, games)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			idleReaper := reaper.New(reg, cfg.IdleTimeout(), cfg.ReaperInterval())
			go idleReaper.Run(ctx)

			httpSrv := &http.Server{Addr: cfg.Addr(), Handler: server}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("gateway listening", "addr", cfg.Addr())
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				reg.DeleteAll(context.Background())
				return httpSrv.Close()
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return err
			}
		},
	}
}
