package main

import (
	"fmt"
	"os"

	"github.com/ignatij/marketflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marketflow",
	Short: "Daily market data acquisition and stock selection pipeline",
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default: ./marketflow.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
