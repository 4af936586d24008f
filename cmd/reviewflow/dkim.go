package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/reviewflow/internal/config"
	"github.com/foxzi/reviewflow/internal/mailer"
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management",
}

var dkimGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a DKIM key and print its DNS record",
	RunE:  runDKIMGenerate,
}

var dkimCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check SPF, DMARC and DKIM records of the sender domain",
	RunE:  runDKIMCheck,
}

var (
	dkimDomain   string
	dkimSelector string
	dkimOut      string
)

func init() {
	dkimGenerateCmd.Flags().StringVar(&dkimDomain, "domain", "", "Signing domain")
	dkimGenerateCmd.Flags().StringVar(&dkimSelector, "selector", "reviewflow", "DKIM selector")
	dkimGenerateCmd.Flags().StringVarP(&dkimOut, "out", "o", "", "Private key output file")
	dkimGenerateCmd.MarkFlagRequired("domain")
	dkimGenerateCmd.MarkFlagRequired("out")
	dkimCmd.AddCommand(dkimGenerateCmd)
	dkimCmd.AddCommand(dkimCheckCmd)
}

func runDKIMGenerate(cmd *cobra.Command, args []string) error {
	signer, err := mailer.GenerateDKIMKey(dkimOut, dkimDomain, dkimSelector)
	if err != nil {
		return err
	}
	record, err := signer.DNSRecord()
	if err != nil {
		return err
	}

	fmt.Printf("Private key written to %s\n\n", dkimOut)
	fmt.Println("Add this DNS TXT record:")
	fmt.Printf("  Name:  %s\n", signer.DNSName())
	fmt.Printf("  Value: %s\n\n", record)
	fmt.Println("Then set in config:")
	fmt.Printf("  mail.dkim: {enabled: true, domain: %s, selector: %s, key_file: %s}\n", dkimDomain, dkimSelector, dkimOut)
	return nil
}

func runDKIMCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	domain := cfg.Mail.FromAddress[strings.LastIndex(cfg.Mail.FromAddress, "@")+1:]

	var signer *mailer.DKIMSigner
	if cfg.Mail.DKIM.Enabled {
		signer, err = mailer.LoadDKIMSigner(cfg.Mail.DKIM.KeyFile, cfg.Mail.DKIM.Domain, cfg.Mail.DKIM.Selector)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	results := mailer.CheckSenderDomain(ctx, nil, domain, signer)

	fmt.Printf("Sender domain: %s\n\n", domain)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
	fmt.Fprintln(w, "-----\t------\t-------")
	failed := false
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Type, r.Status, r.Message)
		if r.Status == mailer.CheckError {
			failed = true
		}
	}
	w.Flush()

	if failed {
		return fmt.Errorf("sender domain check failed")
	}
	return nil
}
