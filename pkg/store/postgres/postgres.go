// Package postgres provides a PostgreSQL backend for the rate table and the
// cashback ledger. It is an alternative to the default JSON files for
// deployments that already run a database.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cashwatch/cashwatch/pkg/api"
)

//go:embed migrations.sql
var migrationSQL string

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store implements api.RateStore and api.Ledger on a shared connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL, runs migrations, and returns the store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	return &Store{pool: pool, logger: logger}, nil
}

// Lookup returns the rate for an exact merchant match.
func (s *Store) Lookup(ctx context.Context, merchant string) (float64, error) {
	var rate float64
	err := s.pool.QueryRow(ctx,
		`SELECT rate FROM cashback_rates WHERE company = $1`, merchant,
	).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, api.ErrRateNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up rate for %q: %w", merchant, err)
	}
	return rate, nil
}

// UpsertIfAbsent inserts a rate unless the merchant already has one.
// ON CONFLICT DO NOTHING gives first-writer-wins at the database level.
func (s *Store) UpsertIfAbsent(ctx context.Context, merchant string, rate float64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cashback_rates (company, rate)
		VALUES ($1, $2)
		ON CONFLICT (company) DO NOTHING
	`, merchant, rate)
	if err != nil {
		return fmt.Errorf("inserting rate for %q: %w", merchant, err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("rate recorded", "merchant", merchant, "rate", rate)
	}
	return nil
}

// Append inserts a ledger entry and returns totals recomputed by summation
// inside the same transaction.
func (s *Store) Append(ctx context.Context, merchant string, entry api.LedgerEntry) (float64, float64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (company, amount, rate_percent, cashback)
		VALUES ($1, $2, $3, $4)
	`, merchant, entry.Amount, entry.RatePercent, entry.Cashback); err != nil {
		return 0, 0, fmt.Errorf("inserting ledger entry: %w", err)
	}

	var merchantTotal float64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(cashback), 0) FROM ledger_entries WHERE company = $1`, merchant,
	).Scan(&merchantTotal); err != nil {
		return 0, 0, fmt.Errorf("summing merchant total: %w", err)
	}

	var grandTotal float64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(cashback), 0) FROM ledger_entries`,
	).Scan(&grandTotal); err != nil {
		return 0, 0, fmt.Errorf("summing grand total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing ledger entry: %w", err)
	}

	return merchantTotal, grandTotal, nil
}

// Totals recomputes all totals by summing every entry.
func (s *Store) Totals(ctx context.Context) (map[string]float64, float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company, COALESCE(SUM(cashback), 0)
		FROM ledger_entries
		GROUP BY company
		ORDER BY company
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("querying totals: %w", err)
	}
	defer rows.Close()

	merchantTotals := make(map[string]float64)
	var grandTotal float64
	for rows.Next() {
		var merchant string
		var total float64
		if err := rows.Scan(&merchant, &total); err != nil {
			return nil, 0, fmt.Errorf("scanning totals row: %w", err)
		}
		merchantTotals[merchant] = total
		grandTotal += total
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading totals rows: %w", err)
	}

	return merchantTotals, grandTotal, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
}
