package main

import (
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/gmail/v1"

	"github.com/cashwatch/cashwatch/pkg/client"
	"github.com/cashwatch/cashwatch/pkg/config"
)

// runSetup handles the Google OAuth setup flow.
func runSetup(logger *slog.Logger, force bool) error {
	fmt.Println("=== Cashwatch Setup ===")
	fmt.Println()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.SecretsFilePath); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", cfg.SecretsFilePath, cfg.SecretsFilePath)
	}

	if !force {
		if _, err := os.Stat(client.TokenFile); err == nil {
			fmt.Printf("Already authenticated! Token file exists: %s\n", client.TokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: cashwatch setup --force")
			return nil
		}
	}

	if force {
		if err := os.Remove(client.TokenFile); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	fmt.Println("This will set up OAuth authentication with Google.")
	fmt.Println()
	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: Read and modify emails (to mark processed notifications as read)")
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	if _, err := client.New(cfg.SecretsFilePath, gmail.GmailReadonlyScope, gmail.GmailModifyScope); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", client.TokenFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set TELEGRAM_TOKEN and TELEGRAM_CHAT_ID (or put them in config.json)")
	fmt.Println("  2. Run 'cashwatch run' to start the watcher")
	fmt.Println()

	return nil
}
