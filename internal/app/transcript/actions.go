package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

// CardAction addresses one card of one message on behalf of a user.
type CardAction struct {
	UserID    domain.UserID
	SessionID domain.SessionID
	MessageID domain.MessageID
	Index     int
}

func (a CardAction) key(typ string) cards.Key {
	return cards.Key{MessageID: string(a.MessageID), Type: typ, Index: a.Index}
}

// Action names accepted by Act.
const (
	ActionAccept   = "accept"
	ActionReject   = "reject"
	ActionSchedule = "schedule"
	ActionDismiss  = "dismiss"
	ActionAnswer   = "answer"
)

// localStates lists the transitions SetCardState may apply per card type.
// Positive transitions of commitments and session suggestions create backend
// records and are only reachable through their own operations.
var localStates = map[string][]string{
	cards.TypeCommitment:        {cards.StateRejected},
	cards.TypeSessionSuggestion: {cards.StateDismissed},
	cards.TypeJournalingPrompt:  {cards.StateAnswered, cards.StateDismissed},
	cards.TypeCheckin:           {cards.StateAccepted, cards.StateDismissed},
}

// Act dispatches a UI action on a card. when is only read by schedule.
func (c *Coordinator) Act(ctx context.Context, a CardAction, typ, action, when string) (*domain.Message, error) {
	switch {
	case typ == cards.TypeCommitment && action == ActionAccept:
		return c.AcceptCommitment(ctx, a)
	case typ == cards.TypeCommitment && action == ActionReject:
		return c.RejectCommitment(ctx, a)
	case typ == cards.TypeSessionSuggestion && action == ActionSchedule:
		return c.ScheduleSession(ctx, a, when)
	case typ == cards.TypeSessionSuggestion && action == ActionDismiss:
		return c.DismissSession(ctx, a)
	}

	state := action
	switch action {
	case ActionAccept:
		state = cards.StateAccepted
	case ActionReject:
		state = cards.StateRejected
	case ActionDismiss:
		state = cards.StateDismissed
	case ActionAnswer:
		state = cards.StateAnswered
	}
	return c.SetCardState(ctx, a, typ, state)
}

// AcceptCommitment records the commitment on the backend, reusing an equal
// existing record, and folds its id into the card.
func (c *Coordinator) AcceptCommitment(ctx context.Context, a CardAction) (*domain.Message, error) {
	done, err := c.begin(a, cards.TypeCommitment)
	if err != nil {
		return nil, err
	}
	defer done()

	card, err := c.pending(ctx, a, cards.TypeCommitment)
	if err != nil {
		return nil, err
	}
	p := card.Props.(cards.CommitmentProps)

	rec, created, err := c.ensureRecord(ctx, domain.Record{
		Kind:        domain.RecordCommitment,
		UserID:      a.UserID,
		SessionID:   a.SessionID,
		MessageID:   a.MessageID,
		Title:       p.Title,
		Description: p.Description,
		Type:        p.CommitmentType,
		Frequency:   p.Frequency,
	}, cards.CommitmentIDPrefix)
	if err != nil {
		return nil, err
	}

	msg, err := c.commit(ctx, a, cards.TypeCommitment, cards.StateAccepted,
		tokens.Pair{Key: "commitmentId", Value: rec.ID})
	if err != nil {
		c.orphaned(ctx, a, rec, created)
		return nil, err
	}
	return msg, nil
}

func (c *Coordinator) RejectCommitment(ctx context.Context, a CardAction) (*domain.Message, error) {
	return c.transition(ctx, a, cards.TypeCommitment, cards.StateRejected)
}

// ScheduleSession books the suggested session. when is the user's requested
// date, absolute or relative ("tomorrow 9am"); empty uses the suggestion's own
// date or a day from now.
func (c *Coordinator) ScheduleSession(ctx context.Context, a CardAction, when string) (*domain.Message, error) {
	done, err := c.begin(a, cards.TypeSessionSuggestion)
	if err != nil {
		return nil, err
	}
	defer done()

	card, err := c.pending(ctx, a, cards.TypeSessionSuggestion)
	if err != nil {
		return nil, err
	}
	p := card.Props.(cards.SessionSuggestionProps)

	at, err := c.resolveDate(when, p.SuggestedDate)
	if err != nil {
		return nil, domain.NewActionError(domain.KindUsage, "resolve session date", err)
	}

	rec, created, err := c.ensureRecord(ctx, domain.Record{
		Kind:        domain.RecordSession,
		UserID:      a.UserID,
		SessionID:   a.SessionID,
		MessageID:   a.MessageID,
		Title:       p.Title,
		Description: p.Reason,
		Type:        p.Duration,
		ScheduledAt: &at,
	}, cards.SessionIDPrefix)
	if err != nil {
		return nil, err
	}
	if rec.ScheduledAt != nil {
		at = *rec.ScheduledAt
	}

	msg, err := c.commit(ctx, a, cards.TypeSessionSuggestion, cards.StateScheduled,
		tokens.Pair{Key: "sessionId", Value: rec.ID},
		tokens.Pair{Key: "scheduledDate", Value: at.Format(time.RFC3339)})
	if err != nil {
		c.orphaned(ctx, a, rec, created)
		return nil, err
	}
	return msg, nil
}

func (c *Coordinator) DismissSession(ctx context.Context, a CardAction) (*domain.Message, error) {
	return c.transition(ctx, a, cards.TypeSessionSuggestion, cards.StateDismissed)
}

// SetCardState applies a local, non-creating transition to a stateful card.
func (c *Coordinator) SetCardState(ctx context.Context, a CardAction, typ, state string) (*domain.Message, error) {
	if !cards.Known(typ) {
		return nil, domain.NewActionError(domain.KindUsage, "set card state",
			fmt.Errorf("unknown card type %q", typ))
	}
	allowed, ok := localStates[typ]
	if !ok {
		return nil, domain.NewActionError(domain.KindUsage, "set card state",
			fmt.Errorf("%s cards have no state", typ))
	}
	for _, s := range allowed {
		if s == state {
			return c.transition(ctx, a, typ, state)
		}
	}
	return nil, domain.NewActionError(domain.KindUsage, "set card state",
		fmt.Errorf("state %q not allowed for %s", state, typ))
}

func (c *Coordinator) transition(ctx context.Context, a CardAction, typ, state string) (*domain.Message, error) {
	done, err := c.begin(a, typ)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := c.pending(ctx, a, typ); err != nil {
		return nil, err
	}
	return c.commit(ctx, a, typ, state)
}

// pending returns the addressed card if it still awaits a decision.
func (c *Coordinator) pending(ctx context.Context, a CardAction, typ string) (cards.Card, error) {
	card, err := c.Card(ctx, a, typ)
	if err != nil {
		return cards.Card{}, err
	}
	if card.Type != typ {
		return cards.Card{}, domain.ErrCardNotFound
	}
	if card.State() != cards.StateNone {
		return cards.Card{}, domain.ErrAlreadyConfirmed
	}
	return card, nil
}

// ensureRecord returns the backend record equal to rec, creating it when none
// exists. created reports whether this call created it.
func (c *Coordinator) ensureRecord(ctx context.Context, rec domain.Record, prefix string) (domain.Record, bool, error) {
	log := observability.LoggerFromContext(ctx).With(
		"kind", rec.Kind,
		"session_id", rec.SessionID,
		"message_id", rec.MessageID,
	)

	token, err := c.token(ctx)
	if err != nil {
		return domain.Record{}, false, err
	}

	existing, err := c.records.ListRecords(ctx, token, rec.UserID, rec.Kind)
	if err != nil {
		return domain.Record{}, false, domain.NewActionError(domain.KindBackend, "list records", err)
	}
	for _, e := range existing {
		if e.SameAs(rec) {
			log.Info("reusing existing record", "record_id", e.ID)
			return e, false, nil
		}
	}

	created, err := c.records.CreateRecord(ctx, token, rec)
	if err != nil {
		return domain.Record{}, false, domain.NewActionError(domain.KindBackend, "create record", err)
	}
	if !cards.TrustedID(created.ID, prefix) {
		return domain.Record{}, false, domain.NewActionError(domain.KindBackend, "create record",
			fmt.Errorf("backend returned malformed id %q", created.ID))
	}
	log.Info("record created", "record_id", created.ID)
	return created, true, nil
}

func (c *Coordinator) token(ctx context.Context) (string, error) {
	token, err := c.auth.Token(ctx)
	if err == nil && token == "" {
		err = domain.ErrUnauthenticated
	}
	if err != nil {
		return "", domain.NewActionError(domain.KindAuth, "get auth token", err)
	}
	return token, nil
}

// orphaned logs a record this call created that the transcript does not
// reference because the save failed. It is not reconciled.
func (c *Coordinator) orphaned(ctx context.Context, a CardAction, rec domain.Record, created bool) {
	if !created {
		return
	}
	observability.LoggerFromContext(ctx).Warn("orphaned backend record",
		"record_id", rec.ID,
		"kind", rec.Kind,
		"user_id", a.UserID,
		"session_id", a.SessionID,
		"message_id", a.MessageID,
	)
}
