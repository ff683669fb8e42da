package transcript_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/farum-coach/internal/adapters/auth"
	"github.com/PabloGalante/farum-coach/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-coach/internal/app/transcript"
	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	userID    = domain.UserID("u1")
	sessionID = domain.SessionID("s1")

	replyWithCards = `Here is the plan. [commitmentDetected:title="Walk",description="20 minutes after lunch",type="recurring"] ` +
		`[sessionSuggestion:title="Follow-up",reason="See how the walks went",duration="30m",suggestedDate="2024-05-03T09:00:00Z"] ` +
		`[checkin:question="How do you feel?"] [focus:focus="Rest"]`
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	sessions *memory.SessionStore
	messages *memory.MessageStore
	records  *memory.RecordStore
	coord    *transcript.Coordinator
}

func seed(t *testing.T, store *memory.MessageStore, msgs ...*domain.Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, store.AppendMessage(context.Background(), m))
	}
}

// ownedSessions holds session s1 owned by u1.
func ownedSessions(t *testing.T) *memory.SessionStore {
	t.Helper()
	store := memory.NewSessionStore()
	require.NoError(t, store.CreateSession(context.Background(), &domain.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}))
	return store
}

func assistant(id, content string) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(id),
		SessionID: sessionID,
		Author:    domain.RoleAssistant,
		Content:   content,
		CreatedAt: fixedNow,
	}
}

func newFixture(t *testing.T, opts ...transcript.Option) *fixture {
	t.Helper()
	f := &fixture{
		sessions: ownedSessions(t),
		messages: memory.NewMessageStore(),
		records:  memory.NewRecordStore(),
	}
	seed(t, f.messages,
		&domain.Message{ID: "m0", SessionID: sessionID, Author: domain.RoleUser, Content: `[commitmentDetected:title="user typed this"]`},
		assistant("m1", replyWithCards),
	)
	opts = append([]transcript.Option{transcript.WithClock(func() time.Time { return fixedNow })}, opts...)
	f.coord = transcript.NewCoordinator(f.sessions, f.messages, f.messages, f.records, auth.StaticProvider("tok"), opts...)
	return f
}

func action(msgID string, index int) transcript.CardAction {
	return transcript.CardAction{UserID: userID, SessionID: sessionID, MessageID: domain.MessageID(msgID), Index: index}
}

func storedCard(t *testing.T, store *memory.MessageStore, msgID, typ string, index int) cards.Card {
	t.Helper()
	msgs, err := store.GetMessagesBySession(context.Background(), sessionID, 0)
	require.NoError(t, err)
	msg, _ := domain.FindMessage(msgs, domain.MessageID(msgID))
	require.NotNil(t, msg)
	card, ok := cards.Find(cards.MaterializeAll(msgID, msg.Content), cards.Key{MessageID: msgID, Type: typ, Index: index})
	require.True(t, ok)
	return card
}

func TestAcceptCommitment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.coord.AcceptCommitment(ctx, action("m1", 0))
	require.NoError(t, err)

	card := cards.MaterializeAll("m1", msg.Content)[0]
	p := card.Props.(cards.CommitmentProps)
	assert.Equal(t, cards.StateAccepted, p.State)
	assert.True(t, cards.TrustedID(p.CommitmentID, cards.CommitmentIDPrefix))
	assert.True(t, card.Confirmed())

	recs, err := f.records.ListRecords(ctx, "tok", userID, domain.RecordCommitment)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, p.CommitmentID, recs[0].ID)
	assert.Equal(t, "Walk", recs[0].Title)
	assert.Equal(t, cards.CommitmentRecurring, recs[0].Type)

	assert.Equal(t, p.CommitmentID, storedCard(t, f.messages, "m1", cards.TypeCommitment, 0).Props.(cards.CommitmentProps).CommitmentID)
	assert.Equal(t, 1, f.messages.Saves())

	_, err = f.coord.AcceptCommitment(ctx, action("m1", 0))
	require.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestAcceptCommitmentReusesEqualRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f.messages, assistant("m2", `Again: [commitmentDetected:title="Walk",description="20 minutes after lunch",type="recurring"]`))

	first, err := f.coord.AcceptCommitment(ctx, action("m1", 0))
	require.NoError(t, err)
	second, err := f.coord.AcceptCommitment(ctx, action("m2", 0))
	require.NoError(t, err)

	recs, err := f.records.ListRecords(ctx, "tok", userID, domain.RecordCommitment)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	firstID := cards.MaterializeAll("m1", first.Content)[0].Props.(cards.CommitmentProps).CommitmentID
	secondID := cards.MaterializeAll("m2", second.Content)[0].Props.(cards.CommitmentProps).CommitmentID
	assert.Equal(t, recs[0].ID, firstID)
	assert.Equal(t, firstID, secondID)
}

func TestRejectCommitmentIsLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.coord.RejectCommitment(ctx, action("m1", 0))
	require.NoError(t, err)
	assert.Equal(t, cards.StateRejected, cards.MaterializeAll("m1", msg.Content)[0].State())

	recs, err := f.records.ListRecords(ctx, "tok", userID, domain.RecordCommitment)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = f.coord.AcceptCommitment(ctx, action("m1", 0))
	require.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestUserMessagesAreNotCards(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.AcceptCommitment(context.Background(), action("m0", 0))
	require.ErrorIs(t, err, domain.ErrCardNotFound)

	_, err = f.coord.AcceptCommitment(context.Background(), action("m1", 5))
	require.ErrorIs(t, err, domain.ErrCardNotFound)

	_, err = f.coord.AcceptCommitment(context.Background(), action("nope", 0))
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
}

type failingRecords struct{ err error }

func (r failingRecords) CreateRecord(context.Context, string, domain.Record) (domain.Record, error) {
	return domain.Record{}, r.err
}

func (r failingRecords) ListRecords(context.Context, string, domain.UserID, domain.RecordKind) ([]domain.Record, error) {
	return nil, r.err
}

type failingTranscripts struct{ err error }

func (s failingTranscripts) SaveTranscript(context.Context, domain.UserID, domain.SessionID, []*domain.Message) error {
	return s.err
}

func TestFailuresLeaveCardUnchanged(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		records     func(*memory.RecordStore) domain.RecordBackend
		transcripts func(*memory.MessageStore) domain.TranscriptStore
		auth        domain.AuthProvider
		kind        domain.ErrorKind
		orphans     int
	}{
		{
			name:        "auth",
			records:     func(r *memory.RecordStore) domain.RecordBackend { return r },
			transcripts: func(m *memory.MessageStore) domain.TranscriptStore { return m },
			auth:        auth.StaticProvider(""),
			kind:        domain.KindAuth,
		},
		{
			name:        "backend",
			records:     func(*memory.RecordStore) domain.RecordBackend { return failingRecords{err: boom} },
			transcripts: func(m *memory.MessageStore) domain.TranscriptStore { return m },
			auth:        auth.StaticProvider("tok"),
			kind:        domain.KindBackend,
		},
		{
			name:        "persist",
			records:     func(r *memory.RecordStore) domain.RecordBackend { return r },
			transcripts: func(*memory.MessageStore) domain.TranscriptStore { return failingTranscripts{err: boom} },
			auth:        auth.StaticProvider("tok"),
			kind:        domain.KindPersist,
			orphans:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			messages := memory.NewMessageStore()
			records := memory.NewRecordStore()
			seed(t, messages, assistant("m1", replyWithCards))

			coord := transcript.NewCoordinator(ownedSessions(t), messages, tt.transcripts(messages), tt.records(records), tt.auth,
				transcript.WithClock(func() time.Time { return fixedNow }))

			_, err := coord.AcceptCommitment(ctx, action("m1", 0))
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))

			msgs, err := coord.Load(ctx, sessionID)
			require.NoError(t, err)
			assert.Equal(t, replyWithCards, msgs[0].Content)
			assert.Equal(t, cards.StateNone, storedCard(t, messages, "m1", cards.TypeCommitment, 0).State())

			recs, err := records.ListRecords(ctx, "tok", userID, domain.RecordCommitment)
			require.NoError(t, err)
			assert.Len(t, recs, tt.orphans)
		})
	}
}

type blockingRecords struct {
	*memory.RecordStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecords) ListRecords(ctx context.Context, token string, userID domain.UserID, kind domain.RecordKind) ([]domain.Record, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.RecordStore.ListRecords(ctx, token, userID, kind)
}

func TestActionInFlight(t *testing.T) {
	ctx := context.Background()
	messages := memory.NewMessageStore()
	seed(t, messages, assistant("m1", replyWithCards))
	records := &blockingRecords{
		RecordStore: memory.NewRecordStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	coord := transcript.NewCoordinator(ownedSessions(t), messages, messages, records, auth.StaticProvider("tok"))

	errCh := make(chan error, 1)
	go func() {
		_, err := coord.AcceptCommitment(ctx, action("m1", 0))
		errCh <- err
	}()
	<-records.entered

	_, err := coord.AcceptCommitment(ctx, action("m1", 0))
	require.ErrorIs(t, err, domain.ErrActionInFlight)
	_, err = coord.RejectCommitment(ctx, action("m1", 0))
	require.ErrorIs(t, err, domain.ErrActionInFlight)

	// Other cards of the same message are not blocked.
	_, err = coord.SetCardState(ctx, action("m1", 0), cards.TypeCheckin, cards.StateAccepted)
	require.NoError(t, err)

	close(records.release)
	require.NoError(t, <-errCh)

	msgs, err := coord.Load(ctx, sessionID)
	require.NoError(t, err)
	all := cards.MaterializeAll("m1", msgs[0].Content)
	assert.Equal(t, cards.StateAccepted, all[0].State())
	assert.Equal(t, cards.StateAccepted, all[2].State())
}

func TestSaveGuardDropsConcurrentSave(t *testing.T) {
	ctx := context.Background()
	guard := transcript.NewSaveGuard()
	f := newFixture(t, transcript.WithSaveGuard(guard))

	require.True(t, guard.TryAcquire(userID))
	msg, err := f.coord.DismissSession(ctx, action("m1", 0))
	require.NoError(t, err)
	assert.Equal(t, cards.StateDismissed, cards.MaterializeAll("m1", msg.Content)[1].State())
	assert.Equal(t, 0, f.messages.Saves())

	msgs, err := f.coord.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, msgs[1].Content)

	guard.Release(userID)
	assert.False(t, guard.Active(userID))
	_, err = f.coord.RejectCommitment(ctx, action("m1", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, f.messages.Saves())
	assert.Equal(t, cards.StateDismissed, storedCard(t, f.messages, "m1", cards.TypeSessionSuggestion, 0).State())
}

func TestScheduleSession(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		when     string
		expected time.Time
		dayOnly  bool
	}{
		{
			name:     "requested date",
			content:  replyWithCards,
			when:     "2024-06-03T09:00:00Z",
			expected: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "suggested date",
			content:  replyWithCards,
			expected: time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "unreadable suggestion falls back",
			content:  `[sessionSuggestion:title="Later",suggestedDate="whenever suits"]`,
			expected: fixedNow.Add(24 * time.Hour),
		},
		{
			name:     "relative request",
			content:  replyWithCards,
			when:     "tomorrow",
			expected: fixedNow.Add(24 * time.Hour),
			dayOnly:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			messages := memory.NewMessageStore()
			records := memory.NewRecordStore()
			seed(t, messages, assistant("m1", tt.content))
			coord := transcript.NewCoordinator(ownedSessions(t), messages, messages, records, auth.StaticProvider("tok"),
				transcript.WithClock(func() time.Time { return fixedNow }))

			msg, err := coord.ScheduleSession(ctx, action("m1", 0), tt.when)
			require.NoError(t, err)

			var p cards.SessionSuggestionProps
			for _, c := range cards.MaterializeAll("m1", msg.Content) {
				if c.Type == cards.TypeSessionSuggestion {
					p = c.Props.(cards.SessionSuggestionProps)
				}
			}
			assert.Equal(t, cards.StateScheduled, p.State)
			assert.True(t, cards.TrustedID(p.SessionID, cards.SessionIDPrefix))

			got, err := time.Parse(time.RFC3339, p.ScheduledDate)
			require.NoError(t, err)
			if tt.dayOnly {
				assert.Equal(t, tt.expected.Format(time.DateOnly), got.In(time.UTC).Format(time.DateOnly))
			} else {
				assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
			}

			recs, err := records.ListRecords(ctx, "tok", userID, domain.RecordSession)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			require.NotNil(t, recs[0].ScheduledAt)
			assert.True(t, got.Equal(*recs[0].ScheduledAt))
		})
	}
}

func TestScheduleSessionRejectsUnreadableDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.ScheduleSession(context.Background(), action("m1", 0), "when pigs fly")
	require.Error(t, err)
	assert.Equal(t, domain.KindUsage, domain.KindOf(err))
	assert.Equal(t, 0, f.messages.Saves())
}

func TestSetCardState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.coord.SetCardState(ctx, action("m1", 0), cards.TypeFocus, cards.StateAccepted)
	assert.Equal(t, domain.KindUsage, domain.KindOf(err))
	assert.ErrorContains(t, err, "focus cards have no state")

	_, err = f.coord.SetCardState(ctx, action("m1", 0), "mood", cards.StateAccepted)
	assert.Equal(t, domain.KindUsage, domain.KindOf(err))
	assert.ErrorContains(t, err, `unknown card type "mood"`)

	_, err = f.coord.SetCardState(ctx, action("m1", 0), cards.TypeCommitment, cards.StateAccepted)
	assert.Equal(t, domain.KindUsage, domain.KindOf(err))

	msg, err := f.coord.Act(ctx, action("m1", 0), cards.TypeCheckin, transcript.ActionDismiss, "")
	require.NoError(t, err)
	assert.Equal(t, cards.StateDismissed, cards.MaterializeAll("m1", msg.Content)[2].State())
}

func TestActDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.coord.Act(ctx, action("m1", 0), cards.TypeCommitment, transcript.ActionAccept, "")
	require.NoError(t, err)
	_, err = f.coord.Act(ctx, action("m1", 0), cards.TypeSessionSuggestion, transcript.ActionSchedule, "")
	require.NoError(t, err)

	commitments, err := f.records.ListRecords(ctx, "tok", userID, domain.RecordCommitment)
	require.NoError(t, err)
	sessions, err := f.records.ListRecords(ctx, "tok", userID, domain.RecordSession)
	require.NoError(t, err)
	assert.Len(t, commitments, 1)
	assert.Len(t, sessions, 1)

	all := cards.MaterializeAll("m1", storedContent(t, f.messages, "m1"))
	assert.True(t, all[0].Confirmed())
	assert.True(t, all[1].Confirmed())
	assert.False(t, all[2].Confirmed())
}

func storedContent(t *testing.T, store *memory.MessageStore, msgID string) string {
	t.Helper()
	msgs, err := store.GetMessagesBySession(context.Background(), sessionID, 0)
	require.NoError(t, err)
	msg, _ := domain.FindMessage(msgs, domain.MessageID(msgID))
	require.NotNil(t, msg)
	return msg.Content
}

type countingMessages struct {
	*memory.MessageStore
	reads atomic.Int32
}

func (c *countingMessages) GetMessagesBySession(ctx context.Context, id domain.SessionID, limit int) ([]*domain.Message, error) {
	c.reads.Add(1)
	return c.MessageStore.GetMessagesBySession(ctx, id, limit)
}

func TestLoadReadsStoreOnce(t *testing.T) {
	store := &countingMessages{MessageStore: memory.NewMessageStore()}
	seed(t, store.MessageStore, assistant("m1", replyWithCards))
	coord := transcript.NewCoordinator(ownedSessions(t), store, store, memory.NewRecordStore(), auth.StaticProvider("tok"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := coord.Load(context.Background(), sessionID)
			assert.NoError(t, err)
			assert.Len(t, msgs, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.reads.Load())

	coord.Forget(sessionID)
	_, err := coord.Load(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.reads.Load())
}

func TestAppendExtendsCachedTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.coord.Load(ctx, sessionID)
	require.NoError(t, err)
	require.NoError(t, f.coord.Append(ctx, assistant("m2", `[insight:text="new"]`)))

	msgs, err := f.coord.Load(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.MessageID("m2"), msgs[2].ID)

	err = f.coord.Append(ctx, assistant("m3", "a"), &domain.Message{ID: "m4", SessionID: "other"})
	require.Error(t, err)
}

func TestActionsOnAnotherUsersSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mallory := action("m1", 0)
	mallory.UserID = "mallory"

	_, err := f.coord.AcceptCommitment(ctx, mallory)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.coord.RejectCommitment(ctx, mallory)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.coord.Act(ctx, mallory, cards.TypeCheckin, transcript.ActionDismiss, "")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.coord.Card(ctx, mallory, cards.TypeCommitment)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	recs, err := f.records.ListRecords(ctx, "tok", "mallory", domain.RecordCommitment)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, f.messages.Saves())
	assert.Equal(t, cards.StateNone, storedCard(t, f.messages, "m1", cards.TypeCommitment, 0).State())

	_, err = f.coord.AcceptCommitment(ctx, action("m1", 0))
	require.NoError(t, err)
}

func TestUnknownSessionIsNotCached(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	store := &countingMessages{MessageStore: memory.NewMessageStore()}
	coord := transcript.NewCoordinator(sessions, store, store, memory.NewRecordStore(), auth.StaticProvider("tok"))

	for i := 0; i < 3; i++ {
		_, err := coord.Load(ctx, "ghost")
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
	}
	assert.Equal(t, int32(3), store.reads.Load())

	// An existing session without messages yet is cached like any other.
	require.NoError(t, sessions.CreateSession(ctx, &domain.Session{ID: "ghost", UserID: userID}))
	for i := 0; i < 2; i++ {
		msgs, err := coord.Load(ctx, "ghost")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	}
	assert.Equal(t, int32(4), store.reads.Load())
}

type gatedMessages struct {
	*memory.MessageStore
	reads   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMessages) GetMessagesBySession(ctx context.Context, id domain.SessionID, limit int) ([]*domain.Message, error) {
	g.reads.Add(1)
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.MessageStore.GetMessagesBySession(ctx, id, limit)
}

func TestCanceledLoadDoesNotFailOtherCallers(t *testing.T) {
	store := &gatedMessages{
		MessageStore: memory.NewMessageStore(),
		entered:      make(chan struct{}, 4),
		release:      make(chan struct{}),
	}
	seed(t, store.MessageStore, assistant("m1", replyWithCards))
	coord := transcript.NewCoordinator(ownedSessions(t), store, store, memory.NewRecordStore(), auth.StaticProvider("tok"))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := coord.Load(ctx, sessionID)
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		msgs, err := coord.Load(context.Background(), sessionID)
		if err == nil && len(msgs) != 1 {
			err = fmt.Errorf("got %d messages", len(msgs))
		}
		second <- err
	}()

	cancel()
	select {
	case err := <-first:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		close(store.release)
		t.Fatal("canceled caller still waiting on the shared load")
	}

	close(store.release)
	require.NoError(t, <-second)
	assert.Equal(t, int32(1), store.reads.Load())
}
