package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/reviewflow/internal/mailer"
)

var (
	initFrom        string
	initFromName    string
	initSMTPHost    string
	initTrackingURL string
	initDataDir     string
	initOutput      string
	initDKIM        bool
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize reviewflow configuration",
	Long: `Create a configuration file, prompting for missing values.

This command:
  1. Generates an API key and stores only its bcrypt hash
  2. Optionally generates a DKIM key
  3. Shows the DNS record to publish for DKIM

Examples:
  reviewflow init
  reviewflow init --from reviews@example.com --smtp-host smtp.example.com \
    --tracking-url https://reviews.example.com --dkim -o config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initFrom, "from", "", "Sender address (e.g., reviews@example.com)")
	initCmd.Flags().StringVar(&initFromName, "from-name", "", "Sender display name")
	initCmd.Flags().StringVar(&initSMTPHost, "smtp-host", "", "SMTP relay host")
	initCmd.Flags().StringVar(&initTrackingURL, "tracking-url", "", "Public base URL for tracking links")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/reviewflow", "Data directory for databases and keys")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initDKIM, "dkim", false, "Generate a DKIM key")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Reviewflow Configuration")
	fmt.Println("========================")
	fmt.Println()

	if initFrom == "" {
		initFrom = prompt(reader, "Sender address (e.g., reviews@example.com)", "")
		if initFrom == "" {
			return fmt.Errorf("sender address is required")
		}
	}
	domain := initFrom[strings.LastIndex(initFrom, "@")+1:]

	if initSMTPHost == "" {
		initSMTPHost = prompt(reader, "SMTP relay host", "smtp."+domain)
	}
	if initTrackingURL == "" {
		initTrackingURL = prompt(reader, "Public tracking URL (empty disables tracking)", "")
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	apiKey := "rf_" + generateRandomString(48)
	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	fmt.Println()
	fmt.Println("Creating configuration...")

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Printf("  Warning: Could not create data directory: %v\n", err)
	}

	var dkimKeyPath string
	var signer *mailer.DKIMSigner
	if initDKIM {
		dkimKeyPath = filepath.Join(initDataDir, "dkim", domain+".key")
		signer, err = mailer.GenerateDKIMKey(dkimKeyPath, domain, "reviewflow")
		if err != nil {
			return err
		}
		fmt.Printf("  DKIM key saved to: %s\n", dkimKeyPath)
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig(string(apiKeyHash), dkimKeyPath)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Printf("  Configuration saved to: %s\n", initOutput)
	fmt.Println()
	fmt.Printf("API key (shown once): %s\n", apiKey)

	if signer != nil {
		record, err := signer.DNSRecord()
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Add this DNS TXT record:")
		fmt.Printf("  %s  TXT  \"%s\"\n", signer.DNSName(), record)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review SMTP credentials in %s\n", initOutput)
	fmt.Printf("  2. reviewflow config validate -c %s\n", initOutput)
	fmt.Printf("  3. reviewflow serve -c %s\n", initOutput)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(apiKeyHash, dkimKeyPath string) string {
	dkimSection := `  # dkim:
  #   enabled: true
  #   selector: "reviewflow"
  #   key_file: "` + initDataDir + `/dkim/key.pem"`
	if dkimKeyPath != "" {
		dkimSection = fmt.Sprintf(`  dkim:
    enabled: true
    selector: "reviewflow"
    key_file: "%s"`, dkimKeyPath)
	}

	return fmt.Sprintf(`# Reviewflow configuration

server:
  listen_addr: ":8080"

database:
  path: "%[1]s/reviewflow.db"

logging:
  level: "info"
  format: "json"

api:
  api_keys:
    - "%[2]s"

tracking:
  base_url: "%[3]s"
  # fallback_url: "https://example.com/thanks"

dispatch:
  delay: 500ms

mail:
  transport: "smtp"
  from_address: "%[4]s"
  from_name: "%[5]s"
  smtp:
    host: "%[6]s"
    port: 587
    tls_mode: "starttls"
    username: ""
    password: ""
%[7]s

quota:
  messages_per_hour: 0
  messages_per_day: 0
  path: "%[1]s/quota.db"

# redis:
#   addr: "localhost:6379"

# archive:
#   enabled: true
#   bucket: "reviewflow-uploads"

metrics:
  enabled: false
  listen_addr: ":9090"
`, initDataDir, apiKeyHash, initTrackingURL, initFrom, initFromName, initSMTPHost, dkimSection)
}
