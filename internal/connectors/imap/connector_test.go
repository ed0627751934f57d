package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func TestToFetched(t *testing.T) {
	msg := &imap.Message{
		Uid:          42,
		InternalDate: time.Date(2026, 1, 5, 8, 0, 0, 0, time.FixedZone("IST", 19800)),
		Envelope: &imap.Envelope{
			Subject: "Shade inspection",
			From:    []*imap.Address{{PersonalName: "QC Desk", MailboxName: "qc", HostName: "mill.example"}},
		},
	}
	got := toFetched(msg, []byte("raw"))
	if got.MessageID != "imap-42" {
		t.Fatalf("message id fallback: %q", got.MessageID)
	}
	if got.From != "QC Desk <qc@mill.example>" || got.Subject != "Shade inspection" {
		t.Fatalf("envelope: %+v", got)
	}
	if got.ReceivedAt != "2026-01-05T02:30:00Z" || got.Provider != "imap" {
		t.Fatalf("received: %+v", got)
	}
}

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{MailboxName: "a", HostName: "x.example"},
		nil,
		{PersonalName: "B", MailboxName: "b", HostName: "y.example"},
	})
	if got != "a@x.example, B <b@y.example>" {
		t.Fatalf("got %q", got)
	}
	if formatAddresses(nil) != "" {
		t.Fatal("expected empty")
	}
}
