package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "alfworld session gateway",
	}

	root.PersistentFlags().String("config", "configs/gateway.yaml", "path to gateway config")

	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
