package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string
type UserID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type InteractionMode string

const (
	ModeCheckIn    InteractionMode = "check_in"    // Short conversation, Emotional Status
	ModeDeepDive   InteractionMode = "deep_dive"   // Deeper Exploration
	ModeActionPlan InteractionMode = "action_plan" // Goal-Oriented
)

type Timestamp = time.Time

// NewID returns a random identifier for sessions, messages and journal entries.
func NewID() string {
	return uuid.NewString()
}
