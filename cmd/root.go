/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/lifelog/apiserver/config"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lifelog",
	Short: "LifeLog activity journal API",
	Long: `LifeLog records daily activities with a mood and an energy level
and serves dashboards and analytics over them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (environment variables still win)")
}

// loadConfig reads the configuration selected by --config and initializes
// the process logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfigFile(configFile)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(cfg.Log)
	return cfg, nil
}
