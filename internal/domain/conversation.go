package domain

// Message represents any message in a timeline (user or assistant).
//
// Content is the raw text, including card tokens and the completion block.
// Once a message is handed to the transcript coordinator it is treated as
// immutable: content changes produce a new *Message with the same ID.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Role
	Content   string
	CreatedAt Timestamp
	UpdatedAt Timestamp

	// Metadata holds additional information about the message
	Tags        []string
	Mode        InteractionMode
	ReplyTo     *MessageID
	ContentType string // e.g., "text", "coaching"
}

// HasCards reports whether the message is scanned for tokens at all.
func (m *Message) HasCards() bool {
	return m != nil && m.Author == RoleAssistant
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	return &cp
}

// FindMessage returns the message with id and its position, or -1.
func FindMessage(msgs []*Message, id MessageID) (*Message, int) {
	for i, m := range msgs {
		if m.ID == id {
			return m, i
		}
	}
	return nil, -1
}

// Session represent a concrete "relationship" between a user and the agent (could last days)
type Session struct {
	ID        SessionID
	UserID    UserID
	CreatedAt Timestamp
	UpdatedAt Timestamp

	// Basic session's config
	PreferredMode InteractionMode
	Title         string
}
