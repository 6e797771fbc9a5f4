package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/gatekeeper/internal/containerrt/dockerrt"
	"github.com/ehrlich-b/gatekeeper/internal/discovery"
	"github.com/ehrlich-b/gatekeeper/internal/gwconfig"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "check docker reachability, data paths, and game discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := gwconfig.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Println("gatewayd doctor")
			fmt.Println()

			fmt.Println("Docker:")
			rt, err := dockerrt.New()
			if err != nil {
				fmt.Printf("  not reachable: %v\n", err)
			} else {
				fmt.Println("  reachable")
				rt.Close()
			}
			fmt.Println()

			fmt.Println("Data paths:")
			printPathStatus("data_host_path", cfg.DataHostPath)
			printPathStatus("worker_program_host_path", cfg.WorkerProgramHostPath)
			fmt.Println()

			fmt.Println("Game discovery:")
			games, err := discovery.Discover(cfg.AlfworldConfigPath)
			if err != nil {
				fmt.Printf("  failed: %v\n", err)
			} else {
				fmt.Printf("  %d solvable games found\n", len(games))
			}

			return nil
		},
	}
}

func printPathStatus(label, path string) {
	if path == "" {
		fmt.Printf("  %-28s not configured\n", label)
		return
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("  %-28s missing: %s\n", label, path)
		return
	}
	fmt.Printf("  %-28s ok: %s\n", label, path)
}
