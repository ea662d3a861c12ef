// Package api defines the core types and collaborator interfaces for cashwatch.
package api

import (
	"context"
	"errors"
)

// Transaction holds the facts extracted from a single notification email.
// Immutable once extracted.
type Transaction struct {
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
}

// LedgerEntry is one finalized cashback record for a merchant.
type LedgerEntry struct {
	Amount float64 `json:"amount"`
	// RatePercent is the cashback rate as a percentage (2 for 2%).
	RatePercent float64 `json:"rate_percent"`
	Cashback    float64 `json:"cashback"`
}

// EmailMessage is one unread message pulled from the mail source.
// MessageID is used to mark the message processed after handling.
type EmailMessage struct {
	MessageID string
	Subject   string
	Body      string
}

// ResponseEvent is a button press delivered by the chat interface.
type ResponseEvent struct {
	// CallbackID identifies the button press itself; it must be answered
	// so the chat client stops showing a spinner.
	CallbackID string
	// CorrelationID links the press back to the prompt that offered it.
	CorrelationID string
	// Percent is the chosen rate as sent by the chat surface, e.g. "2".
	Percent string
}

// Notifier delivers human-readable output to the single configured recipient.
// Implementations own the transport; the engine owns the message content.
type Notifier interface {
	// Notify sends a plain confirmation message.
	Notify(ctx context.Context, text string) error
	// Prompt sends a message with one button per offered percent. Each
	// button carries callbackData(percent) as its payload. Returns the
	// sent message's ID.
	Prompt(ctx context.Context, text string, percents []int, callbackData func(percent int) string) (int, error)
	// Edit replaces the text of a previously sent prompt and removes its buttons.
	Edit(ctx context.Context, messageID int, text string) error
	// Ack acknowledges a button press.
	Ack(ctx context.Context, callbackID string) error
}

// RateStore is the durable merchant → cashback rate table.
type RateStore interface {
	// Lookup returns the rate (a fraction in (0,1]) for an exact,
	// case-sensitive merchant match, or ErrRateNotFound.
	Lookup(ctx context.Context, merchant string) (float64, error)
	// UpsertIfAbsent records a rate for a merchant unless one already
	// exists. First writer wins; an existing rate is never overwritten.
	// The write is flushed to stable storage before the call returns.
	UpsertIfAbsent(ctx context.Context, merchant string, rate float64) error
}

// Ledger is the durable append-only per-merchant cashback log.
type Ledger interface {
	// Append adds an entry to the merchant's sequence (creating the
	// bucket on first use) and returns the recomputed merchant total and
	// grand total. The ledger is persisted atomically before returning.
	Append(ctx context.Context, merchant string, entry LedgerEntry) (merchantTotal, grandTotal float64, err error)
	// Totals recomputes all totals by summing every entry.
	Totals(ctx context.Context) (map[string]float64, float64, error)
}

// Extraction failures. Messages that trip these are skipped, never fatal.
var (
	ErrNoMerchantMarker = errors.New("no merchant marker pair in body")
	ErrNoAmountMarker   = errors.New("no amount marker in body")
	ErrMalformedAmount  = errors.New("amount text does not parse")
)

// ErrRateNotFound is returned by RateStore.Lookup for an unknown merchant.
var ErrRateNotFound = errors.New("rate not found")

// ErrInvalidResponse is returned for a chosen rate outside the offered set.
// The pending resolution is kept so a valid choice can still be made.
var ErrInvalidResponse = errors.New("invalid rate response")

// ErrUnknownCorrelation is returned for a response whose correlation id does
// not match any pending resolution (already resolved, or stale after a
// restart). Callers acknowledge and move on; no state is mutated.
var ErrUnknownCorrelation = errors.New("unknown correlation id")
