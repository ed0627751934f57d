package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"shadeqc/internal"
	"shadeqc/internal/config"
)

const provider = "gmail"

// reportQuery narrows the listing to mail that can carry an inspection table.
const reportQuery = "has:attachment OR subject:(inspection OR shade OR qc)"

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ name, value string }{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req.name, req.value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ctx := context.Background()
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokens))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc}, nil
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	list, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q(reportQuery).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %s: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, fromRaw(ref.Id, msg.InternalDate, raw))
	}
	return out, nil
}

// fromRaw reads the envelope headers out of the raw message itself, so one
// API call per message is enough.
func fromRaw(gmailID string, internalDateMs int64, raw []byte) internal.FetchedMailMessage {
	msg := internal.FetchedMailMessage{Provider: provider, MessageID: gmailID, Raw: raw}

	received := time.Now().UTC()
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs).UTC()
	}
	if env, err := enmime.ReadEnvelope(bytes.NewReader(raw)); err == nil {
		if id := strings.TrimSpace(env.GetHeader("Message-ID")); id != "" {
			msg.MessageID = id
		}
		msg.Subject = env.GetHeader("Subject")
		msg.From = env.GetHeader("From")
		if internalDateMs <= 0 {
			if t, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
				received = t.UTC()
			}
		}
	}
	msg.ReceivedAt = received.Format(time.RFC3339)
	return msg
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
