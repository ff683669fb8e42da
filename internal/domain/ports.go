package domain

import "context"

// LLMClient streams the coach's reply. onChunk receives each piece of text as it
// arrives; returning an error from it aborts the stream. The full reply text is
// returned once the stream completes.
type LLMClient interface {
	StreamReply(ctx context.Context, userMessage string, convCtx ConversationContext, onChunk func(chunk string) error) (string, error)
}

// ConversationContext gives the LLM minimal context about the conversation.
type ConversationContext struct {
	SessionID SessionID
	UserID    UserID
	Mode      InteractionMode
	History   []*Message // last N interactions
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*Session, error)
}

// MessageStore defines message's persistence
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
}

// TranscriptStore persists a mutated transcript. Implementations upsert by
// message ID so a retried save is harmless.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, userID UserID, sessionID SessionID, msgs []*Message) error
}

// AuthProvider yields the credential used for backend calls.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
}

// RecordBackend creates and lists records confirmed from cards.
type RecordBackend interface {
	CreateRecord(ctx context.Context, token string, rec Record) (Record, error)
	ListRecords(ctx context.Context, token string, userID UserID, kind RecordKind) ([]Record, error)
}
