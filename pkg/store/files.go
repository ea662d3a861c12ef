// Package store persists the rate table and the cashback ledger.
//
// The default backend keeps both as human-readable JSON files that are fully
// rewritten on every mutation. The ledger therefore has O(n) rewrite cost
// per append; acceptable at human-scale event rates.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside the data directory.
const (
	RatesFileName  = "cashback_rates.json"
	LedgerFileName = "ledger.json"
)

// writeFileAtomic writes data to path so that a reader never observes a
// partially written file: the content goes to a temp file in the same
// directory, is synced to stable storage, and is then renamed over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
