package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cashwatch/cashwatch/pkg/api"
)

type rateRecord struct {
	Company string  `json:"company"`
	Rate    float64 `json:"rate"`
}

// RateFile is the JSON-file backed rate table: an ordered array of
// {company, rate} records, one per merchant, rewritten on every mutation.
type RateFile struct {
	path    string
	mu      sync.Mutex
	records []rateRecord
	logger  *slog.Logger
}

// NewRateFile opens (or initializes) the rate table at path.
func NewRateFile(path string, logger *slog.Logger) (*RateFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &RateFile{path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}

	logger.Info("rate table loaded", "file", path, "merchants", len(s.records))
	return s, nil
}

func (s *RateFile) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading rate table: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("parsing rate table %s: %w", s.path, err)
	}
	return nil
}

// Lookup returns the rate for an exact merchant match.
func (s *RateFile) Lookup(_ context.Context, merchant string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Company == merchant {
			return r.Rate, nil
		}
	}
	return 0, api.ErrRateNotFound
}

// UpsertIfAbsent records a rate for a merchant unless one already exists.
// The first rate recorded for a merchant wins; later calls are no-ops even
// with a different value. The file is rewritten and flushed before return.
func (s *RateFile) UpsertIfAbsent(_ context.Context, merchant string, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Company == merchant {
			return nil
		}
	}

	s.records = append(s.records, rateRecord{Company: merchant, Rate: rate})

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rate table: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		// Roll back the in-memory append so memory matches disk.
		s.records = s.records[:len(s.records)-1]
		return err
	}

	s.logger.Info("rate recorded", "merchant", merchant, "rate", rate)
	return nil
}
