package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
)

// JournalTool uses a domain.JournalStore to save the wrap-up of a session
// when the coach closes it with a completion block.
type JournalTool struct {
	store domain.JournalStore
	now   func() time.Time
}

// NewJournalTool creates a new JournalTool.
// store can be an in-memory, SQLite or Firestore implementation.
func NewJournalTool(store domain.JournalStore) *JournalTool {
	return &JournalTool{
		store: store,
		now:   time.Now,
	}
}

func (t *JournalTool) Name() string {
	return "journal_store"
}

// Call expects an input with this shape:
//
//	{
//	  "title": "Wrap up",
//	  "summary": "texto...",
//	  "reflection": "texto...",
//	  "actions": [
//	    {
//	      "description": "Walk 20 minutes",
//	      "status": "pending",
//	      "notes": "daily"
//	    }
//	  ]
//	}
//
// UserID, SessionID and MessageID come in ToolContext.
func (t *JournalTool) Call(
	ctx context.Context,
	tctx ToolContext,
	input map[string]any,
) (map[string]any, error) {

	if tctx.UserID == "" || tctx.SessionID == "" {
		return nil, fmt.Errorf("journal_store: missing UserID or SessionID in ToolContext")
	}

	now := t.now()

	entry := &domain.JournalEntry{
		ID:         domain.JournalEntryID(uuid.NewString()),
		SessionID:  domain.SessionID(tctx.SessionID),
		UserID:     domain.UserID(tctx.UserID),
		MessageID:  domain.MessageID(tctx.MessageID),
		CreatedAt:  now,
		UpdatedAt:  now,
		Title:      getString(input, "title"),
		Summary:    getString(input, "summary"),
		Reflection: getString(input, "reflection"),
		ActionPlan: parseActions(input["actions"], now),
	}

	if err := t.store.AppendJournalEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("journal_store: append failed: %w", err)
	}

	return map[string]any{
		"status":        "ok",
		"entry_id":      string(entry.ID),
		"session_id":    string(entry.SessionID),
		"user_id":       string(entry.UserID),
		"created_at":    entry.CreatedAt,
		"actions_count": len(entry.ActionPlan),
	}, nil
}

// CompletionInput builds the JournalTool input from the cards of a completion
// block. It returns nil when the block holds nothing worth journaling.
func CompletionInput(cs []cards.Card) map[string]any {
	var (
		title, summary string
		insights       []string
		actions        []any
	)

	for _, c := range cs {
		switch p := c.Props.(type) {
		case cards.SessionEndProps:
			title, summary = p.Title, p.Summary
		case cards.InsightProps:
			if p.Text != "" {
				insights = append(insights, p.Text)
			}
		case cards.CommitmentProps:
			if p.State == cards.StateRejected {
				continue
			}
			desc := p.Title
			if p.Description != "" {
				desc += ": " + p.Description
			}
			actions = append(actions, map[string]any{
				"description": desc,
				"status":      string(domain.ActionStatusPending),
				"notes":       p.Frequency,
			})
		}
	}

	if title == "" && len(insights) == 0 && len(actions) == 0 {
		return nil
	}
	return map[string]any{
		"title":      title,
		"summary":    summary,
		"reflection": strings.Join(insights, "\n"),
		"actions":    actions,
	}
}

// --- internal helpers --- //

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func parseActions(raw any, now time.Time) []domain.JournalAction {
	if raw == nil {
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	var actions []domain.JournalAction
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		desc := getString(obj, "description")
		if desc == "" {
			continue
		}

		statusStr := getString(obj, "status")
		if statusStr == "" {
			statusStr = string(domain.ActionStatusPending)
		}

		actions = append(actions, domain.JournalAction{
			ID:          uuid.NewString(),
			Description: desc,
			Status:      domain.ActionStatus(statusStr),
			Notes:       getString(obj, "notes"),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return actions
}
