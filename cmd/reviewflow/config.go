package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Mail transport: %s (from %s)\n", cfg.Mail.Transport, cfg.Mail.FromAddress)
	fmt.Printf("  DKIM: %v\n", cfg.Mail.DKIM.Enabled)
	fmt.Printf("  Tracking base URL: %s\n", orNone(cfg.Tracking.BaseURL))
	fmt.Printf("  Dispatch delay: %s\n", cfg.Dispatch.Delay)
	fmt.Printf("  API keys: %d\n", len(cfg.API.APIKeys))
	fmt.Printf("  Send quota: %d/hour, %d/day\n", cfg.Quota.MessagesPerHour, cfg.Quota.MessagesPerDay)
	fmt.Printf("  Redis lock: %s\n", orNone(cfg.Redis.Addr))
	fmt.Printf("  Upload archive: %v\n", cfg.Archive.Enabled)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
