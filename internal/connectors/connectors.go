package connectors

import (
	"bytes"
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"askgive/internal"
)

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

type Headers struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
}

// ReadHeaders pulls the envelope fields of a raw RFC 822 message. ReceivedAt
// falls back to now when the Date header is missing or malformed.
func ReadHeaders(raw []byte) Headers {
	h := Headers{ReceivedAt: time.Now().UTC().Format(time.RFC3339)}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return h
	}
	h.MessageID = strings.TrimSpace(env.GetHeader("Message-ID"))
	h.Subject = env.GetHeader("Subject")
	h.From = env.GetHeader("From")
	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			h.ReceivedAt = t.UTC().Format(time.RFC3339)
		}
	}
	return h
}
