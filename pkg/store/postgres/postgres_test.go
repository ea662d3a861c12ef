package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/cashwatch/cashwatch/pkg/api"
)

func TestNewConnectionFailure(t *testing.T) {
	cfg := Config{
		Host:     "nonexistent-host",
		Port:     5432,
		Database: "cashwatch",
		User:     "cashwatch",
		Password: "password",
	}

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err == nil {
		t.Error("expected error when connecting to nonexistent host, got nil")
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("TEST_POSTGRES_HOST not set, skipping integration test")
	}

	cfg := Config{
		Host:     os.Getenv("TEST_POSTGRES_HOST"),
		Database: os.Getenv("TEST_POSTGRES_DB"),
		User:     os.Getenv("TEST_POSTGRES_USER"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
	}

	s, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestFirstWriterWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	merchant := "TEST MERCHANT FWW"
	if err := s.UpsertIfAbsent(ctx, merchant, 0.02); err != nil {
		t.Fatalf("UpsertIfAbsent: %v", err)
	}
	if err := s.UpsertIfAbsent(ctx, merchant, 0.05); err != nil {
		t.Fatalf("UpsertIfAbsent second call: %v", err)
	}

	rate, err := s.Lookup(ctx, merchant)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rate != 0.02 {
		t.Errorf("rate = %v, want first-written 0.02", rate)
	}
}

func TestLookupUnknownMerchant(t *testing.T) {
	s := testStore(t)

	_, err := s.Lookup(context.Background(), "NO SUCH MERCHANT")
	if err != api.ErrRateNotFound {
		t.Errorf("Lookup error = %v, want ErrRateNotFound", err)
	}
}

func TestAppendRecomputesTotals(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	merchant := "TEST MERCHANT TOTALS"
	mt1, _, err := s.Append(ctx, merchant, api.LedgerEntry{Amount: 50, RatePercent: 2, Cashback: 1.00})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	mt2, _, err := s.Append(ctx, merchant, api.LedgerEntry{Amount: 25, RatePercent: 2, Cashback: 0.50})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if mt2 != mt1+0.50 {
		t.Errorf("merchant total = %v, want %v", mt2, mt1+0.50)
	}
}
