package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key commands",
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash an API key for api.api_keys",
	RunE:  runAPIKeyHash,
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random API key and its hash",
	RunE:  runAPIKeyGenerate,
}

func init() {
	apikeyCmd.AddCommand(apikeyHashCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)
}

func runAPIKeyHash(cmd *cobra.Command, args []string) error {
	fmt.Print("Enter API key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	fmt.Println()

	if len(key) < 16 {
		return fmt.Errorf("API key must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword(key, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}

func runAPIKeyGenerate(cmd *cobra.Command, args []string) error {
	key := "rf_" + generateRandomString(48)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	fmt.Printf("API key: %s\n", key)
	fmt.Printf("Hash:    %s\n", hash)
	fmt.Println()
	fmt.Println("Store the key securely; only the hash goes into api.api_keys.")
	return nil
}
