package connectors

import (
	"context"
	"log/slog"

	"shadeqc/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, connector MailConnector, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db),
		log:       logger.With(slog.String("component", "mail-fetch")),
	}
}

// FetchAndStore pulls up to max messages from label. Stored counts only
// messages not seen before.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		_, created, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if created {
			res.Stored++
		} else {
			s.log.Debug("message already stored", slog.String("provider", msg.Provider), slog.String("message_id", msg.MessageID))
		}
	}
	return res, nil
}
