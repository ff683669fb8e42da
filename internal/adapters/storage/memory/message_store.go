package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

// MessageStore keeps transcripts in memory. It implements both
// domain.MessageStore and domain.TranscriptStore.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]*domain.Message
	saves    int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.SessionID][]*domain.Message),
	}
}

func (s *MessageStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg.Clone())
	return nil
}

// GetMessagesBySession returns the last `limit` messages, all when limit <= 0.
func (s *MessageStore) GetMessagesBySession(_ context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return out, nil
}

// SaveTranscript upserts msgs by ID; unknown messages are appended in order.
func (s *MessageStore) SaveTranscript(_ context.Context, _ domain.UserID, sessionID domain.SessionID, msgs []*domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.messages[sessionID]
	for _, m := range msgs {
		if _, i := domain.FindMessage(current, m.ID); i >= 0 {
			current[i] = m.Clone()
			continue
		}
		current = append(current, m.Clone())
	}
	s.messages[sessionID] = current
	s.saves++
	return nil
}

// Saves reports how many transcript saves completed.
func (s *MessageStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
