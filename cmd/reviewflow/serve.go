package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/app"
	"github.com/foxzi/reviewflow/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and tracking server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(a.Logger())

	return a.Run(context.Background())
}

// loadApp builds the application for one-shot commands. The caller must
// Close it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
