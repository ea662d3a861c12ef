package gmail

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"

	"github.com/cashwatch/cashwatch/pkg/extract"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<b>html</b>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("Monto ACME USD 50.00")}},
			},
		},
	}

	if got := extractBody(msg); got != "Monto ACME USD 50.00" {
		t.Errorf("extractBody = %q, want the text/plain part", got)
	}
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<b>html</b>")}},
			},
		},
	}

	if got := extractBody(msg); got != "<b>html</b>" {
		t.Errorf("extractBody = %q, want the html part", got)
	}
}

func TestExtractBodyTopLevelBody(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Body: &gmail.MessagePartBody{Data: encode("plain body")},
		},
	}

	if got := extractBody(msg); got != "plain body" {
		t.Errorf("extractBody = %q, want top-level body", got)
	}
}

func TestExtractBodyEmpty(t *testing.T) {
	if got := extractBody(&gmail.Message{}); got != "" {
		t.Errorf("extractBody = %q, want empty", got)
	}
	if got := extractBody(&gmail.Message{Payload: &gmail.MessagePart{}}); got != "" {
		t.Errorf("extractBody = %q, want empty", got)
	}
}

func TestNewBuildsUnreadMarkerQuery(t *testing.T) {
	r, err := New(http.DefaultClient, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !strings.Contains(r.query, "is:unread") {
		t.Errorf("query %q missing unread filter", r.query)
	}
	if !strings.Contains(r.query, extract.SubjectMarker) {
		t.Errorf("query %q missing subject marker", r.query)
	}
	if r.interval != DefaultInterval {
		t.Errorf("interval = %v, want default %v", r.interval, DefaultInterval)
	}
}
