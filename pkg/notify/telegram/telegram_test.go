package telegram

import (
	"context"
	"log/slog"
	"os"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cashwatch/cashwatch/pkg/api"
	"github.com/cashwatch/cashwatch/pkg/engine"
)

func testNotifier() *Notifier {
	return &Notifier{
		chatID: 42,
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}

func callbackUpdate(chatID int64, callbackID, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   callbackID,
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 7,
				Chat:      &tgbotapi.Chat{ID: chatID},
			},
		},
	}
}

func TestHandleUpdateDeliversRateCallback(t *testing.T) {
	n := testNotifier()

	var got []api.ResponseEvent
	handle := func(_ context.Context, ev api.ResponseEvent) {
		got = append(got, ev)
	}

	data := engine.CallbackData("corr-1", 2)
	n.handleUpdate(context.Background(), callbackUpdate(42, "cb-1", data), handle)

	if len(got) != 1 {
		t.Fatalf("handled %d events, want 1", len(got))
	}
	ev := got[0]
	if ev.CallbackID != "cb-1" || ev.CorrelationID != "corr-1" || ev.Percent != "2" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleUpdateIgnoresForeignChat(t *testing.T) {
	n := testNotifier()

	called := false
	handle := func(_ context.Context, _ api.ResponseEvent) { called = true }

	data := engine.CallbackData("corr-1", 2)
	n.handleUpdate(context.Background(), callbackUpdate(99, "cb-1", data), handle)

	if called {
		t.Error("callback from foreign chat was handled")
	}
}

func TestHandleUpdateIgnoresNonRatePayloads(t *testing.T) {
	n := testNotifier()

	called := false
	handle := func(_ context.Context, _ api.ResponseEvent) { called = true }

	n.handleUpdate(context.Background(), callbackUpdate(42, "cb-1", "something else"), handle)
	n.handleUpdate(context.Background(), tgbotapi.Update{}, handle)

	if called {
		t.Error("unrecognized payload was handled")
	}
}
