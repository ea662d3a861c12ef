package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/cashwatch/cashwatch/pkg/api"
)

// LedgerFile is the JSON-file backed ledger: a mapping of merchant name to
// its ordered list of entries. The whole file is rewritten atomically on
// every append. Entries are never mutated or removed.
type LedgerFile struct {
	path    string
	mu      sync.Mutex
	entries map[string][]api.LedgerEntry
	logger  *slog.Logger
}

// NewLedgerFile opens (or initializes) the ledger at path.
func NewLedgerFile(path string, logger *slog.Logger) (*LedgerFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &LedgerFile{
		path:    path,
		entries: make(map[string][]api.LedgerEntry),
		logger:  logger,
	}
	if err := l.load(); err != nil {
		return nil, err
	}

	logger.Info("ledger loaded", "file", path, "merchants", len(l.entries))
	return l, nil
}

func (l *LedgerFile) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading ledger: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return fmt.Errorf("parsing ledger %s: %w", l.path, err)
	}
	return nil
}

// Append adds an entry to the merchant's sequence, creating the bucket on
// first use, persists the full ledger, and returns the recomputed merchant
// total and grand total.
func (l *LedgerFile) Append(_ context.Context, merchant string, entry api.LedgerEntry) (float64, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[merchant] = append(l.entries[merchant], entry)

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return 0, 0, fmt.Errorf("marshaling ledger: %w", err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		seq := l.entries[merchant]
		l.entries[merchant] = seq[:len(seq)-1]
		return 0, 0, err
	}

	merchantTotals, grandTotal := l.sumTotals()
	l.logger.Debug("ledger entry appended",
		"merchant", merchant,
		"cashback", entry.Cashback,
		"merchant_total", merchantTotals[merchant],
		"grand_total", grandTotal,
	)
	return merchantTotals[merchant], grandTotal, nil
}

// Totals recomputes all totals by summing every entry. Totals are always
// derived from the entries themselves, never carried in running counters.
func (l *LedgerFile) Totals(_ context.Context) (map[string]float64, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merchantTotals, grandTotal := l.sumTotals()
	return merchantTotals, grandTotal, nil
}

// sumTotals visits merchants in sorted order so repeated recomputations of
// the same state sum in the same order and agree exactly.
func (l *LedgerFile) sumTotals() (map[string]float64, float64) {
	merchants := make([]string, 0, len(l.entries))
	for merchant := range l.entries {
		merchants = append(merchants, merchant)
	}
	sort.Strings(merchants)

	merchantTotals := make(map[string]float64, len(l.entries))
	var grandTotal float64
	for _, merchant := range merchants {
		var total float64
		for _, e := range l.entries[merchant] {
			total += e.Cashback
		}
		merchantTotals[merchant] = total
		grandTotal += total
	}
	return merchantTotals, grandTotal
}
