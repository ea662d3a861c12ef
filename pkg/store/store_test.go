package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cashwatch/cashwatch/pkg/api"
)

func TestRateFileFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), RatesFileName)

	s, err := NewRateFile(path, nil)
	if err != nil {
		t.Fatalf("NewRateFile: %v", err)
	}

	if err := s.UpsertIfAbsent(ctx, "ACME", 0.02); err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}
	if err := s.UpsertIfAbsent(ctx, "ACME", 0.05); err != nil {
		t.Fatalf("UpsertIfAbsent second call: %v", err)
	}

	rate, err := s.Lookup(ctx, "ACME")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rate != 0.02 {
		t.Errorf("rate = %v, want first-written 0.02", rate)
	}
}

func TestRateFileLookupIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), RatesFileName)

	s, err := NewRateFile(path, nil)
	if err != nil {
		t.Fatalf("NewRateFile: %v", err)
	}
	if err := s.UpsertIfAbsent(ctx, "ACME", 0.01); err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}

	if _, err := s.Lookup(ctx, "acme"); !errors.Is(err, api.ErrRateNotFound) {
		t.Errorf("Lookup(acme) error = %v, want ErrRateNotFound", err)
	}
	if _, err := s.Lookup(ctx, "UNKNOWN"); !errors.Is(err, api.ErrRateNotFound) {
		t.Errorf("Lookup(UNKNOWN) error = %v, want ErrRateNotFound", err)
	}
}

func TestRateFileSurvivesReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), RatesFileName)

	s, err := NewRateFile(path, nil)
	if err != nil {
		t.Fatalf("NewRateFile: %v", err)
	}
	if err := s.UpsertIfAbsent(ctx, "SUPER 99", 0.05); err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}

	reloaded, err := NewRateFile(path, nil)
	if err != nil {
		t.Fatalf("NewRateFile reload: %v", err)
	}
	rate, err := reloaded.Lookup(ctx, "SUPER 99")
	if err != nil {
		t.Fatalf("Lookup after reload: %v", err)
	}
	if rate != 0.05 {
		t.Errorf("rate after reload = %v, want 0.05", rate)
	}
}

func TestRateFileIsHumanReadable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), RatesFileName)

	s, err := NewRateFile(path, nil)
	if err != nil {
		t.Fatalf("NewRateFile: %v", err)
	}
	if err := s.UpsertIfAbsent(ctx, "ACME", 0.02); err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading rate file: %v", err)
	}
	if !strings.Contains(string(data), `"company": "ACME"`) {
		t.Errorf("rate file missing company record:\n%s", data)
	}
}

func TestLedgerFileAppendTotals(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerFileName)

	l, err := NewLedgerFile(path, nil)
	if err != nil {
		t.Fatalf("NewLedgerFile: %v", err)
	}

	mt, gt, err := l.Append(ctx, "ACME", api.LedgerEntry{Amount: 50, RatePercent: 2, Cashback: 1.00})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if mt != 1.00 || gt != 1.00 {
		t.Errorf("totals after first append = (%v, %v), want (1, 1)", mt, gt)
	}

	mt, gt, err = l.Append(ctx, "SUPER 99", api.LedgerEntry{Amount: 20, RatePercent: 5, Cashback: 1.00})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if mt != 1.00 {
		t.Errorf("merchant total = %v, want 1", mt)
	}
	if gt != 2.00 {
		t.Errorf("grand total = %v, want 2", gt)
	}
}

func TestLedgerFileRecomputationSymmetry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerFileName)

	l, err := NewLedgerFile(path, nil)
	if err != nil {
		t.Fatalf("NewLedgerFile: %v", err)
	}

	entries := []struct {
		merchant string
		cashback float64
	}{
		{"ACME", 0.10}, {"ACME", 0.25}, {"SUPER 99", 1.37},
		{"FARMACIA", 0.01}, {"SUPER 99", 2.22},
	}
	for _, e := range entries {
		if _, _, err := l.Append(ctx, e.merchant, api.LedgerEntry{Cashback: e.cashback}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	firstMerchants, firstGrand, err := l.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	secondMerchants, secondGrand, err := l.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}

	if firstGrand != secondGrand {
		t.Errorf("grand totals differ across recomputations: %v vs %v", firstGrand, secondGrand)
	}
	for merchant, total := range firstMerchants {
		if secondMerchants[merchant] != total {
			t.Errorf("merchant %q totals differ: %v vs %v", merchant, total, secondMerchants[merchant])
		}
	}
}

func TestLedgerFileSurvivesReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerFileName)

	l, err := NewLedgerFile(path, nil)
	if err != nil {
		t.Fatalf("NewLedgerFile: %v", err)
	}
	if _, _, err := l.Append(ctx, "ACME", api.LedgerEntry{Amount: 50, RatePercent: 2, Cashback: 1.00}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := l.Append(ctx, "ACME", api.LedgerEntry{Amount: 10, RatePercent: 2, Cashback: 0.20}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded, err := NewLedgerFile(path, nil)
	if err != nil {
		t.Fatalf("NewLedgerFile reload: %v", err)
	}
	merchantTotals, grandTotal, err := reloaded.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals after reload: %v", err)
	}
	if merchantTotals["ACME"] != 1.20 {
		t.Errorf("merchant total after reload = %v, want 1.20", merchantTotals["ACME"])
	}
	if grandTotal != 1.20 {
		t.Errorf("grand total after reload = %v, want 1.20", grandTotal)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := writeFileAtomic(path, []byte(`{"ok": true}`)); err != nil {
		t.Fatalf("writeFileAtomic: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 || files[0].Name() != "out.json" {
		t.Errorf("unexpected directory contents: %v", files)
	}
}
