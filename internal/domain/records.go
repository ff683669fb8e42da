package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordKind names a backend collection created from a card.
type RecordKind string

const (
	RecordCommitment RecordKind = "commitment"
	RecordSession    RecordKind = "session"
)

// Record is a backend object created when a card is confirmed.
type Record struct {
	ID        string
	Kind      RecordKind
	UserID    UserID
	SessionID SessionID
	MessageID MessageID

	Title       string
	Description string
	// Type is the commitment type for commitments and the duration for sessions.
	Type string

	Frequency   string
	ScheduledAt *time.Time
	CreatedAt   time.Time
}

// SameAs is the duplicate check applied before creating a record: exact
// equality of kind, title, description and type.
func (r Record) SameAs(o Record) bool {
	return r.Kind == o.Kind &&
		r.Title == o.Title &&
		r.Description == o.Description &&
		r.Type == o.Type
}

// NewRecordID returns a backend-issued identifier for kind.
func NewRecordID(kind RecordKind) string {
	prefix := "rec_"
	switch kind {
	case RecordCommitment:
		prefix = "cmt_"
	case RecordSession:
		prefix = "ses_"
	}
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
