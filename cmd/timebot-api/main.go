// Package main implements the timebot data-access service.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/timebot/core/buildinfo"
	"github.com/m3rciful/timebot/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "timebot-api",
	Short:         "Data-access service for the timebot activity tracker",
	Version:       buildinfo.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

var configPath string

func init() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "Path to the YAML config file (env CONFIG_PATH)")
}

func loadConfig() (*config.AppConfig, error) {
	return config.LoadAPI(configPath)
}
