package journal

import (
	"context"

	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
)

const defaultLimit = 20

// Service holds the logic of reading journal entries
type Service struct {
	store domain.JournalStore
}

// NewService creates a journal service from a JournalStore
func NewService(store domain.JournalStore) *Service {
	return &Service{
		store: store,
	}
}

// GetUserJournal returns the last `limit` journal entries for a user
// If limit <= 0, a reasonable default value is used.
func (s *Service) GetUserJournal(
	ctx context.Context,
	userID domain.UserID,
	limit int,
) ([]*domain.JournalEntry, error) {

	if s.store == nil {
		return []*domain.JournalEntry{}, nil
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	entries, err := s.store.ListJournalEntriesByUser(ctx, userID, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list journal entries",
			"user_id", userID,
			"error", err)
		return nil, err
	}
	return entries, nil
}
