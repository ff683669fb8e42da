package domain

import (
	"context"
	"time"
)

// JournalEntryID identifies a journal entry
type JournalEntryID string

// ActionStatus represents the status of an action in the plan
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusDone    ActionStatus = "done"
)

// JournalAction represents a concrete step within an action plan
type JournalAction struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	Notes       string       `json:"notes,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// JournalEntry is the summary recorded when a coaching session reaches its
// completion block.
type JournalEntry struct {
	ID        JournalEntryID `json:"id"`
	SessionID SessionID      `json:"session_id"`
	UserID    UserID         `json:"user_id"`
	MessageID MessageID      `json:"message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Title and summary from the sessionEnd component
	Title   string `json:"title"`
	Summary string `json:"summary"`

	// Commitments mentioned in the completion block
	ActionPlan []JournalAction `json:"action_plan"`

	// Insights from the completion block, one per line
	Reflection string `json:"reflection"`
}

// JournalStore defines the minimum operations to persist the journal
type JournalStore interface {
	AppendJournalEntry(ctx context.Context, entry *JournalEntry) error
	ListJournalEntriesByUser(ctx context.Context, userID UserID, limit int) ([]*JournalEntry, error)
}
