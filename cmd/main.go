package main

import (
	"fmt"
	"os"

	"EasyAPI/internal/config"
	"EasyAPI/internal/logger"

	"github.com/spf13/cobra"
)

var debugFlag bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "easyapi",
		Short: "REST CRUD endpoints from declarative model files",
		Long: `EasyAPI reads model declarations from MODELS_DIR and serves
get, list, create, patch and delete endpoints for each of them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and opens the log file.
func setup() (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := logger.Init(cfg.LogDir); err != nil {
		return nil, fmt.Errorf("log init failed: %w", err)
	}
	logger.SetDebug(debugFlag)
	return cfg, nil
}
