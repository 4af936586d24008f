package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/attribution"
)

var matchCmd = &cobra.Command{
	Use:   "match [reviews.json]",
	Short: "Attribute reviews to customers of a location",
	Long: `Reads a JSON array of reviews ({"reviewer_name" or "reviewerName", "rating", "text", "time"})
from a file, or from stdin when the argument is "-" or missing, and marks the
matching customers as reviewed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatch,
}

var matchUserID, matchLocationID string

func init() {
	matchCmd.Flags().StringVar(&matchUserID, "user", "", "Owner user ID")
	matchCmd.Flags().StringVar(&matchLocationID, "location", "", "Location ID")
	matchCmd.MarkFlagRequired("user")
	matchCmd.MarkFlagRequired("location")
}

func runMatch(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open reviews: %w", err)
		}
		defer f.Close()
		in = f
	}

	var reviews []attribution.Review
	if err := json.NewDecoder(in).Decode(&reviews); err != nil {
		return fmt.Errorf("failed to decode reviews: %w", err)
	}

	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Matcher().MatchReviews(ctx, matchUserID, matchLocationID, reviews)
	if err != nil {
		return err
	}

	if len(report.MatchedCustomers) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REVIEWER\tCUSTOMER\tEMAIL\tRATING\tRULE")
		fmt.Fprintln(w, "--------\t--------\t-----\t------\t----")
		for _, m := range report.MatchedCustomers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", m.ReviewerName, m.Name, m.Email, m.Rating, m.Rule)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Printf("Matched %d of %d reviews\n", report.Matched, report.Total)
	return nil
}
