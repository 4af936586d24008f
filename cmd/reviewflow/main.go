package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/api"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "reviewflow",
	Short: "Reviewflow - customer review request pipeline",
	Long: `Reviewflow imports customer lists, emails review requests with open and click
tracking, and attributes incoming reviews back to the customers who were asked.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reviewflow %s (built %s)\n", version, buildTime)
	},
}

func init() {
	api.Version = version

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/reviewflow/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(dkimCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
