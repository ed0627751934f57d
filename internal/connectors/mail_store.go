package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"shadeqc/internal"
	"shadeqc/internal/storage"
)

// MailStoreService keeps fetched messages in the session store. A message
// already seen under the same provider and message id is not stored again.
type MailStoreService struct {
	db *storage.DB
}

func NewMailStoreService(db *storage.DB) *MailStoreService {
	return &MailStoreService{db: db}
}

// Store returns the stored row and whether the message was new.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	if len(msg.Raw) == 0 {
		return internal.EmailRow{}, false, fmt.Errorf("empty message %s/%s", msg.Provider, msg.MessageID)
	}
	existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	sum := sha256.Sum256(msg.Raw)
	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hex.EncodeToString(sum[:]), msg.Raw, "fetched")
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	return row, true, nil
}
