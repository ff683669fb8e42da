// Package transcript owns the canonical in-memory transcript of each coaching
// session and is the only writer of message content changes.
//
// Card interactions flow through the Coordinator: it re-reads the latest
// transcript, performs any backend side effect, folds the result into the
// addressed token and persists the transcript. Two cards of the same message
// actioned at once are applied one after the other on the cached transcript,
// but whichever save runs last wins on the store.
package transcript

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/olebedev/when"
	"golang.org/x/sync/singleflight"

	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

type Coordinator struct {
	sessions    domain.SessionStore
	messages    domain.MessageStore
	transcripts domain.TranscriptStore
	records     domain.RecordBackend
	auth        domain.AuthProvider

	guard *SaveGuard
	now   func() time.Time
	dates *when.Parser

	loads singleflight.Group

	mu       sync.Mutex
	cache    map[domain.SessionID]*transcript
	inflight map[string]struct{}
}

type transcript struct {
	mu       sync.Mutex
	messages []*domain.Message
}

func (t *transcript) snapshot() []*domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

type Option func(*Coordinator)

// WithClock overrides time.Now, used to resolve relative session dates.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSaveGuard shares a guard between coordinators.
func WithSaveGuard(g *SaveGuard) Option {
	return func(c *Coordinator) { c.guard = g }
}

func NewCoordinator(
	sessions domain.SessionStore,
	messages domain.MessageStore,
	transcripts domain.TranscriptStore,
	records domain.RecordBackend,
	auth domain.AuthProvider,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		sessions:    sessions,
		messages:    messages,
		transcripts: transcripts,
		records:     records,
		auth:        auth,
		guard:       NewSaveGuard(),
		now:         time.Now,
		dates:       newDateParser(),
		cache:       make(map[domain.SessionID]*transcript),
		inflight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the session's transcript, reading it from the store on first use.
// Concurrent first loads of one session share a single store read, which is not
// canceled when one of the waiting callers gives up.
func (c *Coordinator) Load(ctx context.Context, sessionID domain.SessionID) ([]*domain.Message, error) {
	t, err := c.transcript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return t.snapshot(), nil
}

// Forget drops the cached transcript so the next Load reads the store again.
func (c *Coordinator) Forget(sessionID domain.SessionID) {
	c.mu.Lock()
	delete(c.cache, sessionID)
	c.mu.Unlock()
}

func (c *Coordinator) cached(sessionID domain.SessionID) (*transcript, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.cache[sessionID]
	return t, ok
}

func (c *Coordinator) transcript(ctx context.Context, sessionID domain.SessionID) (*transcript, error) {
	if t, ok := c.cached(sessionID); ok {
		return t, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(string(sessionID), func() (any, error) {
		if t, ok := c.cached(sessionID); ok {
			return t, nil
		}

		msgs, err := c.messages.GetMessagesBySession(loadCtx, sessionID, 0)
		if err != nil {
			return nil, fmt.Errorf("load transcript %s: %w", sessionID, err)
		}
		// Only sessions that exist are cached.
		if len(msgs) == 0 {
			if _, err := c.sessions.GetSession(loadCtx, sessionID); err != nil {
				return nil, fmt.Errorf("load transcript %s: %w", sessionID, err)
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		t := &transcript{messages: msgs}
		c.cache[sessionID] = t
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transcript), nil
	}
}

// Append stores new messages of one session and adds them to the cached
// transcript. Appends are not subject to the save guard.
func (c *Coordinator) Append(ctx context.Context, msgs ...*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	t, err := c.transcript(ctx, msgs[0].SessionID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		if m.SessionID != msgs[0].SessionID {
			return fmt.Errorf("append message %s: session mismatch", m.ID)
		}
		if err := c.messages.AppendMessage(ctx, m); err != nil {
			return fmt.Errorf("append message %s: %w", m.ID, err)
		}
		t.messages = append(t.messages, m.Clone())
	}
	return nil
}

// Card returns the current card addressed by the action. A session owned by
// another user is reported as not found.
func (c *Coordinator) Card(ctx context.Context, a CardAction, typ string) (cards.Card, error) {
	session, err := c.sessions.GetSession(ctx, a.SessionID)
	if err != nil {
		return cards.Card{}, err
	}
	if session.UserID != a.UserID {
		return cards.Card{}, domain.ErrSessionNotFound
	}

	msgs, err := c.Load(ctx, a.SessionID)
	if err != nil {
		return cards.Card{}, err
	}

	msg, _ := domain.FindMessage(msgs, a.MessageID)
	if msg == nil {
		return cards.Card{}, domain.ErrMessageNotFound
	}
	if !msg.HasCards() {
		return cards.Card{}, domain.ErrCardNotFound
	}

	card, ok := cards.Find(cards.MaterializeAll(string(msg.ID), msg.Content), a.key(typ))
	if !ok {
		return cards.Card{}, domain.ErrCardNotFound
	}
	return card, nil
}

// commit rewrites the addressed token on the latest cached transcript and
// persists it. If the save fails the cached message is restored, unless
// another change replaced it in the meantime.
func (c *Coordinator) commit(ctx context.Context, a CardAction, typ, state string, extra ...tokens.Pair) (*domain.Message, error) {
	t, err := c.transcript(ctx, a.SessionID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	prev, _ := domain.FindMessage(t.messages, a.MessageID)
	t.messages = ApplyCardStateChange(t.messages, a.MessageID, typ, a.Index, state, extra...)
	updated, _ := domain.FindMessage(t.messages, a.MessageID)
	snapshot := slices.Clone(t.messages)
	t.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With(
		"session_id", a.SessionID,
		"card", a.key(typ).String(),
	)

	if updated == nil {
		return nil, domain.ErrMessageNotFound
	}
	if updated == prev {
		log.Info("card state unchanged, nothing to save", "state", state)
		return updated, nil
	}

	saved, err := c.persist(ctx, a.UserID, a.SessionID, snapshot)
	if err != nil {
		t.mu.Lock()
		if cur, i := domain.FindMessage(t.messages, a.MessageID); cur == updated {
			t.messages[i] = prev
		}
		t.mu.Unlock()

		log.Error("failed to save transcript", "error", err)
		return nil, domain.NewActionError(domain.KindPersist, "save transcript", err)
	}
	if !saved {
		log.Debug("transcript save already in flight, dropped", "user_id", a.UserID)
	}
	return updated, nil
}

// persist writes msgs unless a save for the same user is in flight, in which
// case it reports false and writes nothing.
func (c *Coordinator) persist(ctx context.Context, userID domain.UserID, sessionID domain.SessionID, msgs []*domain.Message) (bool, error) {
	if !c.guard.TryAcquire(userID) {
		return false, nil
	}
	defer c.guard.Release(userID)

	if err := c.transcripts.SaveTranscript(ctx, userID, sessionID, msgs); err != nil {
		return false, err
	}
	return true, nil
}

// begin marks a card action in flight; the returned func clears the mark.
func (c *Coordinator) begin(a CardAction, typ string) (func(), error) {
	k := string(a.SessionID) + "|" + a.key(typ).String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[k]; busy {
		return nil, domain.ErrActionInFlight
	}
	c.inflight[k] = struct{}{}

	return func() {
		c.mu.Lock()
		delete(c.inflight, k)
		c.mu.Unlock()
	}, nil
}
