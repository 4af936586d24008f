package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/upload"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a customer CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var importMeta upload.Meta

func init() {
	importCmd.Flags().StringVar(&importMeta.UserID, "user", "", "Owner user ID")
	importCmd.Flags().StringVar(&importMeta.LocationID, "location", "", "Location ID")
	importCmd.Flags().StringVar(&importMeta.LocationName, "location-name", "", "Location display name")
	importCmd.Flags().StringVar(&importMeta.BusinessName, "business-name", "", "Business name")
	importCmd.MarkFlagRequired("user")
	importCmd.MarkFlagRequired("location")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Uploads().Upload(ctx, upload.File{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		Data:     data,
	}, importMeta)
	if err != nil {
		return err
	}

	fmt.Printf("Batch: %s\n", result.BatchID)
	fmt.Printf("  Rows read: %d\n", result.TotalRows)
	fmt.Printf("  Valid rows: %d\n", result.ValidRows)
	fmt.Printf("  Duplicates in file: %d\n", result.InFileDuplicates)
	fmt.Printf("  Already known: %d\n", result.Duplicates)
	fmt.Printf("  New customers: %d\n", result.NewCustomers)
	if result.SourceKey != "" {
		fmt.Printf("  Archived as: %s\n", result.SourceKey)
	}
	for _, e := range result.ParseErrors {
		fmt.Printf("  ! %s\n", e)
	}

	return nil
}
