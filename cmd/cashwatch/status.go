package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cashwatch/cashwatch/pkg/client"
	"github.com/cashwatch/cashwatch/pkg/config"
	"github.com/cashwatch/cashwatch/pkg/store"
)

// runStatus checks the configuration and authentication state.
func runStatus() error {
	fmt.Println("=== Cashwatch Status ===")
	fmt.Println()

	allGood := true

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Printf("Configuration: ✗ %v\n", err)
		return err
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration: ✗ %v\n", err)
		allGood = false
	} else {
		fmt.Printf("Configuration: ✓ (store backend: %s)\n", cfg.StoreBackend)
	}

	checkFile("Google credentials", cfg.SecretsFilePath, &allGood)
	checkFile("OAuth token", client.TokenFile, &allGood)

	if cfg.StoreBackend == "json" {
		reportDataFile("Rate table", filepath.Join(cfg.DataDir, store.RatesFileName))
		reportDataFile("Ledger", filepath.Join(cfg.DataDir, store.LedgerFileName))
	}

	fmt.Println()
	if allGood {
		fmt.Println("Everything looks good. Run 'cashwatch run' to start.")
	} else {
		fmt.Println("Some checks failed. Run 'cashwatch setup' and review config.json / environment.")
	}
	return nil
}

func checkFile(label, path string, allGood *bool) {
	fmt.Printf("%s (%s): ", label, path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("✗ Not found")
		*allGood = false
	} else {
		fmt.Println("✓ Found")
	}
}

// reportDataFile is informational only: missing data files are created on
// first use.
func reportDataFile(label, path string) {
	fmt.Printf("%s (%s): ", label, path)
	if info, err := os.Stat(path); err == nil {
		fmt.Printf("✓ %d bytes\n", info.Size())
	} else {
		fmt.Println("— will be created on first transaction")
	}
}
