package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/dispatch"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send review requests to pending customers of a location",
	Long: `Send review requests to every pending or failed customer of a location that
has not reviewed yet, or only to the customers given with --customer.
Interrupting the command stops after the current recipient.`,
	RunE: runSend,
}

var (
	sendRequest dispatch.Request
	sendVerbose bool
)

func init() {
	sendCmd.Flags().StringVar(&sendRequest.UserID, "user", "", "Owner user ID")
	sendCmd.Flags().StringVar(&sendRequest.LocationID, "location", "", "Location ID")
	sendCmd.Flags().StringVar(&sendRequest.ReviewLink, "review-link", "", "Review page URL")
	sendCmd.Flags().StringVar(&sendRequest.BusinessName, "business-name", "", "Business name shown in the email")
	sendCmd.Flags().StringVar(&sendRequest.SenderName, "sender-name", "", "Sender display name")
	sendCmd.Flags().StringSliceVar(&sendRequest.CustomerIDs, "customer", nil, "Restrict to these customer IDs")
	sendCmd.Flags().BoolVarP(&sendVerbose, "verbose", "v", false, "Print every recipient")
	sendCmd.MarkFlagRequired("user")
	sendCmd.MarkFlagRequired("location")
	sendCmd.MarkFlagRequired("review-link")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Dispatcher().SendReviewRequests(ctx, sendRequest, func(p dispatch.Progress) {
		fmt.Fprintf(os.Stderr, "\r%d/%d sent=%d failed=%d", p.Current, p.Total, p.Sent, p.Failed)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if sendVerbose {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CUSTOMER\tEMAIL\tSTATUS\tERROR")
		fmt.Fprintln(w, "--------\t-----\t------\t-----")
		for _, r := range summary.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CustomerID, r.Email, r.Status, r.Error)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Printf("Total: %d, sent: %d, failed: %d, skipped: %d\n", summary.Total, summary.Sent, summary.Failed, summary.Skipped)
	if summary.QuotaExceeded {
		fmt.Println("Send quota exhausted, remaining customers stay pending")
	}
	return nil
}
