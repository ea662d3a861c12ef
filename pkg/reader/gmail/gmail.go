// Package gmail polls Gmail for unread transaction notification emails.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/cashwatch/cashwatch/pkg/api"
	"github.com/cashwatch/cashwatch/pkg/extract"
)

// DefaultInterval is the default mail poll cadence.
const DefaultInterval = 45 * time.Second

// errorBackoff is the fixed delay after a failed poll cycle.
const errorBackoff = 5 * time.Second

// Reader reads transaction notification messages from Gmail.
type Reader struct {
	client   *gmail.Service
	query    string
	interval time.Duration
	logger   *slog.Logger
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Interval between polls. Defaults to DefaultInterval.
	Interval time.Duration
}

// New creates a new Gmail reader over an authenticated HTTP client.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	return &Reader{
		client:   client,
		query:    fmt.Sprintf("is:unread subject:%q", extract.SubjectMarker),
		interval: interval,
		logger:   logger,
	}, nil
}

// Read polls for unread notification messages and sends them to out in the
// order Gmail returns them. It runs until the context is canceled. Messages
// are marked as read only after their IDs come back on ackChan, so anything
// handed out but never acknowledged is seen again on the next cycle.
func (r *Reader) Read(ctx context.Context, out chan<- *api.EmailMessage, ackChan <-chan string) error {
	defer close(out)

	go r.handleAcknowledgments(ctx, ackChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Poll immediately on start.
	r.cycle(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx, out)
		}
	}
}

// cycle runs one poll, logging and backing off on failure. Never fatal.
func (r *Reader) cycle(ctx context.Context, out chan<- *api.EmailMessage) {
	if err := r.poll(ctx, out); err != nil && ctx.Err() == nil {
		r.logger.Error("mail poll failed", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(errorBackoff):
		}
	}
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.EmailMessage) error {
	resp, err := r.client.Users.Messages.List("me").Q(r.query).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	if len(resp.Messages) > 0 {
		r.logger.Info("found unread notifications", "count", len(resp.Messages))
	}

	for _, msg := range resp.Messages {
		if err := r.processMessage(ctx, msg.Id, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to fetch message", "message_id", msg.Id, "error", err)
		}
	}
	return nil
}

func (r *Reader) processMessage(ctx context.Context, msgID string, out chan<- *api.EmailMessage) error {
	msg, err := r.client.Users.Messages.Get("me", msgID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	var subject string
	for _, header := range msg.Payload.Headers {
		if header.Name == "Subject" {
			subject = header.Value
			break
		}
	}

	// The query already filters on the marker; this guards against Gmail's
	// looser subject matching.
	if !strings.Contains(subject, extract.SubjectMarker) {
		r.logger.Debug("skipping non-notification message", "message_id", msgID, "subject", subject)
		return nil
	}

	body := extractBody(msg)
	if body == "" {
		r.logger.Warn("empty message body", "message_id", msgID, "subject", subject)
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- &api.EmailMessage{MessageID: msgID, Subject: subject, Body: body}:
	}
	return nil
}

// handleAcknowledgments marks messages as read once they have been handled.
func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			r.markAsRead(ctx, msgID)
		}
	}
}

func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
	} else {
		r.logger.Debug("marked message as read", "message_id", msgID)
	}
}

// extractBody returns the plain-text body of a message, preferring the
// text/plain part the bank notifications carry.
func extractBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}

	for _, part := range msg.Payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil {
			if bodyBytes, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(bodyBytes)
			}
		}
	}

	for _, part := range msg.Payload.Parts {
		if part.MimeType == "text/html" && part.Body != nil {
			if bodyBytes, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(bodyBytes)
			}
		}
	}

	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		if bodyBytes, err := base64.URLEncoding.DecodeString(msg.Payload.Body.Data); err == nil {
			return string(bodyBytes)
		}
	}

	return ""
}
