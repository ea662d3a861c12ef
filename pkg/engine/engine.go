// Package engine resolves cashback rates for extracted transactions and
// records finalized cashback in the ledger.
//
// A transaction whose merchant has a known rate is finalized immediately. An
// unknown merchant produces a pending resolution and an interactive prompt;
// the eventual button press is matched back to the transaction through a
// correlation id carried in the button payload.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cashwatch/cashwatch/pkg/api"
	"github.com/cashwatch/cashwatch/pkg/extract"
)

// SelfMerchantTag is the merchant name that appears when the engine's own
// confirmation messages bounce back through the mailbox. Transactions
// carrying it are discarded so the engine never feeds on its own output.
const SelfMerchantTag = "CASHBACK PANAMA"

// OfferedPercents are the candidate rates offered on a prompt. A response
// outside this set is rejected.
var OfferedPercents = []int{1, 2, 5}

// Pending is a transaction awaiting a rate choice. It lives only in memory;
// a restart abandons unanswered prompts, and any later transaction for the
// same merchant re-triggers one.
type Pending struct {
	ID        string
	Merchant  string
	Amount    float64
	MessageID int
	CreatedAt time.Time
}

// Engine drives rate resolution and finalization. One coarse mutex
// serializes the mail-driven and chat-driven paths; correctness of the
// persisted files matters here, throughput does not.
type Engine struct {
	rates    api.RateStore
	ledger   api.Ledger
	notifier api.Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]Pending
}

// New creates an engine over the given stores and notifier.
func New(rates api.RateStore, ledger api.Ledger, notifier api.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rates:    rates,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		pending:  make(map[string]Pending),
	}
}

// ProcessBody extracts a transaction from a notification email body and
// resolves it. Extraction failures are returned unwrapped so callers can
// distinguish skip-this-message from retry-this-cycle.
func (e *Engine) ProcessBody(ctx context.Context, body string) error {
	txn, err := extract.Extract(body)
	if err != nil {
		return err
	}
	return e.ProcessTransaction(ctx, txn)
}

// ProcessTransaction resolves a freshly extracted transaction: finalize
// immediately when the merchant's rate is known, otherwise create a pending
// resolution and prompt for one.
func (e *Engine) ProcessTransaction(ctx context.Context, txn api.Transaction) error {
	if txn.Merchant == SelfMerchantTag {
		e.logger.Debug("discarding self-referential transaction", "amount", txn.Amount)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rate, err := e.rates.Lookup(ctx, txn.Merchant)
	if err == nil {
		return e.finalize(ctx, txn.Merchant, txn.Amount, rate)
	}
	if !errors.Is(err, api.ErrRateNotFound) {
		return fmt.Errorf("looking up rate: %w", err)
	}

	id := uuid.NewString()
	messageID, err := e.notifier.Prompt(ctx, PromptText(txn.Merchant, txn.Amount), OfferedPercents, func(p int) string {
		return CallbackData(id, p)
	})
	if err != nil {
		return fmt.Errorf("sending rate prompt: %w", err)
	}

	e.pending[id] = Pending{
		ID:        id,
		Merchant:  txn.Merchant,
		Amount:    txn.Amount,
		MessageID: messageID,
		CreatedAt: time.Now(),
	}

	e.logger.Info("awaiting rate choice",
		"merchant", txn.Merchant,
		"amount", txn.Amount,
		"correlation_id", id,
	)
	return nil
}

// HandleResponse consumes a button press. The correlation id selects the
// pending resolution; the pending is removed before any side effect, so a
// duplicate delivery observes an unknown id and mutates nothing. The chosen
// percent is validated before removal, so an out-of-range press leaves the
// prompt answerable.
func (e *Engine) HandleResponse(ctx context.Context, ev api.ResponseEvent) error {
	defer e.ack(ctx, ev.CallbackID)

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[ev.CorrelationID]
	if !ok {
		e.logger.Debug("response for unknown or already-resolved prompt",
			"correlation_id", ev.CorrelationID)
		return api.ErrUnknownCorrelation
	}

	percent, err := parsePercent(ev.Percent)
	if err != nil {
		e.logger.Warn("rejecting rate outside offered set",
			"correlation_id", ev.CorrelationID, "percent", ev.Percent)
		return err
	}

	delete(e.pending, ev.CorrelationID)

	chosen := float64(percent) / 100.0
	if err := e.rates.UpsertIfAbsent(ctx, p.Merchant, chosen); err != nil {
		return fmt.Errorf("recording rate: %w", err)
	}

	// The stored rate wins: a second prompt for the same merchant resolved
	// after the first uses the rate fixed by the first, not its own button.
	rate, err := e.rates.Lookup(ctx, p.Merchant)
	if err != nil {
		return fmt.Errorf("re-reading rate: %w", err)
	}

	if err := e.finalize(ctx, p.Merchant, p.Amount, rate); err != nil {
		return err
	}

	if err := e.notifier.Edit(ctx, p.MessageID, SelectionText(percent, p.Merchant)); err != nil {
		e.logger.Warn("failed to edit prompt message", "message_id", p.MessageID, "error", err)
	}
	return nil
}

// finalize computes the cashback, appends it to the ledger, and emits the
// confirmation and totals messages. Callers hold e.mu.
func (e *Engine) finalize(ctx context.Context, merchant string, amount, rate float64) error {
	cashback := extract.Round2(amount * rate)
	entry := api.LedgerEntry{
		Amount:      amount,
		RatePercent: rate * 100,
		Cashback:    cashback,
	}

	_, grandTotal, err := e.ledger.Append(ctx, merchant, entry)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}

	e.logger.Info("cashback recorded",
		"merchant", merchant,
		"amount", amount,
		"rate_percent", entry.RatePercent,
		"cashback", cashback,
		"grand_total", grandTotal,
	)

	// The entry is already durable at this point; notification failures are
	// logged, never returned.
	if err := e.notifier.Notify(ctx, ConfirmationText(cashback, merchant)); err != nil {
		e.logger.Warn("failed to send confirmation", "error", err)
	}

	_, recomputed, err := e.ledger.Totals(ctx)
	if err != nil {
		e.logger.Warn("failed to recompute totals", "error", err)
		recomputed = grandTotal
	}
	if err := e.notifier.Notify(ctx, TotalsText(grandTotal, recomputed)); err != nil {
		e.logger.Warn("failed to send totals", "error", err)
	}
	return nil
}

func (e *Engine) ack(ctx context.Context, callbackID string) {
	if callbackID == "" {
		return
	}
	if err := e.notifier.Ack(ctx, callbackID); err != nil {
		e.logger.Warn("failed to acknowledge callback", "callback_id", callbackID, "error", err)
	}
}

// PendingCount reports the number of unresolved prompts.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func parsePercent(s string) (int, error) {
	percent, err := strconv.Atoi(s)
	if err != nil {
		return 0, api.ErrInvalidResponse
	}
	for _, offered := range OfferedPercents {
		if percent == offered {
			return percent, nil
		}
	}
	return 0, api.ErrInvalidResponse
}
