package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Return customers stuck in sending to pending",
	Long: `Customers are claimed while a dispatch run sends to them. A run that crashed
leaves them in sending; this resets claims older than dispatch.stale_claim_after.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.ReleaseStaleClaims(ctx)
	if err != nil {
		return fmt.Errorf("failed to release stale claims: %w", err)
	}

	fmt.Printf("Released %d stale claims\n", n)
	return nil
}
