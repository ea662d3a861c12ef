package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/cashwatch/cashwatch/pkg/api"
	"github.com/cashwatch/cashwatch/pkg/client"
	"github.com/cashwatch/cashwatch/pkg/config"
	"github.com/cashwatch/cashwatch/pkg/engine"
	"github.com/cashwatch/cashwatch/pkg/notify/telegram"
	gmailreader "github.com/cashwatch/cashwatch/pkg/reader/gmail"
	"github.com/cashwatch/cashwatch/pkg/store"
	"github.com/cashwatch/cashwatch/pkg/store/postgres"
)

// runDaemon wires the stores, engine, mail reader and Telegram listener
// together and runs until SIGINT/SIGTERM.
func runDaemon(logger *slog.Logger) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	rates, ledger, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	notifier, err := telegram.New(cfg.TelegramToken, cfg.TelegramChatID, logger.With("component", "telegram"))
	if err != nil {
		return err
	}

	eng := engine.New(rates, ledger, notifier, logger.With("component", "engine"))

	httpClient, err := client.New(cfg.SecretsFilePath, gmail.GmailReadonlyScope, gmail.GmailModifyScope)
	if err != nil {
		return err
	}

	reader, err := gmailreader.New(httpClient, gmailreader.Config{
		Interval: time.Duration(cfg.MailPollInterval) * time.Second,
	}, logger.With("component", "gmail_reader"))
	if err != nil {
		return err
	}

	// Chat loop: button presses resolve pending prompts.
	go notifier.Listen(ctx, func(ctx context.Context, ev api.ResponseEvent) {
		err := eng.HandleResponse(ctx, ev)
		switch {
		case err == nil,
			errors.Is(err, api.ErrUnknownCorrelation),
			errors.Is(err, api.ErrInvalidResponse):
			// Already acknowledged; nothing to retry.
		default:
			logger.Error("handling rate response", "correlation_id", ev.CorrelationID, "error", err)
		}
	})

	// Mail loop: the reader polls and pushes messages; acknowledged message
	// IDs flow back and get marked as read.
	messages := make(chan *api.EmailMessage, 100)
	acks := make(chan string, 100)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- reader.Read(ctx, messages, acks)
	}()

	logger.Info("cashwatch started",
		"store_backend", cfg.StoreBackend,
		"mail_poll_interval", cfg.MailPollInterval,
	)

	for msg := range messages {
		processEmail(ctx, eng, msg, acks, logger)
	}

	if err := <-readerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reader error", "error", err)
	}

	logger.Info("cashwatch stopped")
	return nil
}

// processEmail runs one message through the engine. Unparsable messages are
// skipped and acknowledged so they are not fetched again; store or prompt
// failures leave the message unacknowledged, and the next poll retries it.
func processEmail(ctx context.Context, eng *engine.Engine, msg *api.EmailMessage, acks chan<- string, logger *slog.Logger) {
	err := eng.ProcessBody(ctx, msg.Body)
	switch {
	case err == nil:
		// handled
	case errors.Is(err, api.ErrNoMerchantMarker),
		errors.Is(err, api.ErrNoAmountMarker),
		errors.Is(err, api.ErrMalformedAmount):
		logger.Warn("skipping unparsable notification",
			"message_id", msg.MessageID,
			"subject", msg.Subject,
			"error", err,
		)
	default:
		logger.Error("processing notification failed, will retry next cycle",
			"message_id", msg.MessageID,
			"error", err,
		)
		return
	}

	select {
	case <-ctx.Done():
	case acks <- msg.MessageID:
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.RateStore, api.Ledger, func(), error) {
	if cfg.StoreBackend == "postgres" {
		pg, err := postgres.New(ctx, postgres.Config{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDatabase,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			SSLMode:  cfg.PostgresSSLMode,
		}, logger.With("component", "postgres_store"))
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, pg.Close, nil
	}

	rates, err := store.NewRateFile(filepath.Join(cfg.DataDir, store.RatesFileName), logger.With("component", "rate_store"))
	if err != nil {
		return nil, nil, nil, err
	}
	ledger, err := store.NewLedgerFile(filepath.Join(cfg.DataDir, store.LedgerFileName), logger.With("component", "ledger_store"))
	if err != nil {
		return nil, nil, nil, err
	}
	return rates, ledger, func() {}, nil
}
