package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the review request funnel of a location",
	RunE:  runStats,
}

var statsUserID, statsLocationID string

func init() {
	statsCmd.Flags().StringVar(&statsUserID, "user", "", "Owner user ID")
	statsCmd.Flags().StringVar(&statsLocationID, "location", "", "Location ID")
	statsCmd.MarkFlagRequired("user")
	statsCmd.MarkFlagRequired("location")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Stats().ForLocation(ctx, statsUserID, statsLocationID)
	if err != nil {
		return err
	}

	fmt.Printf("Customers: %d\n", st.TotalCustomers)
	fmt.Printf("  Pending:  %d\n", st.Pending)
	fmt.Printf("  Sent:     %d\n", st.TotalSent)
	fmt.Printf("  Failed:   %d\n", st.Failed)
	fmt.Printf("  Opened:   %d (%.1f%%)\n", st.Opened, st.OpenRate)
	fmt.Printf("  Clicked:  %d (%.1f%%)\n", st.Clicked, st.ClickRate)
	fmt.Printf("  Reviewed: %d (%.1f%%)\n", st.Reviewed, st.ReviewRate)
	return nil
}
