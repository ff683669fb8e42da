package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

// Store implements every persistence port on Firestore:
//
//	sessions/{sessionID}
//	sessions/{sessionID}/messages/{messageID}
//	users/{userID}/journal/{entryID}
//	users/{userID}/records/{recordID}
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

func (s *Store) userDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(userID))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID        string    `firestore:"user_id"`
	Title         string    `firestore:"title"`
	PreferredMode string    `firestore:"preferred_mode"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID   string    `firestore:"session_id"`
	Author      string    `firestore:"author"`
	Content     string    `firestore:"content"`
	Mode        string    `firestore:"mode"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
	Tags        []string  `firestore:"tags"`
	ReplyTo     *string   `firestore:"reply_to"`
	ContentType string    `firestore:"content_type"`
}

type journalDoc struct {
	SessionID  string                 `firestore:"session_id"`
	MessageID  string                 `firestore:"message_id"`
	Title      string                 `firestore:"title"`
	Summary    string                 `firestore:"summary"`
	Reflection string                 `firestore:"reflection"`
	ActionPlan []domain.JournalAction `firestore:"action_plan"`
	CreatedAt  time.Time              `firestore:"created_at"`
	UpdatedAt  time.Time              `firestore:"updated_at"`
}

type recordDoc struct {
	Kind        string     `firestore:"kind"`
	SessionID   string     `firestore:"session_id"`
	MessageID   string     `firestore:"message_id"`
	Title       string     `firestore:"title"`
	Description string     `firestore:"description"`
	Type        string     `firestore:"type"`
	Frequency   string     `firestore:"frequency"`
	ScheduledAt *time.Time `firestore:"scheduled_at"`
	CreatedAt   time.Time  `firestore:"created_at"`
}

func toMessageDoc(msg *domain.Message) messageDoc {
	var replyTo *string
	if msg.ReplyTo != nil {
		v := string(*msg.ReplyTo)
		replyTo = &v
	}

	return messageDoc{
		SessionID:   string(msg.SessionID),
		Author:      string(msg.Author),
		Content:     msg.Content,
		Mode:        string(msg.Mode),
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
		Tags:        msg.Tags,
		ReplyTo:     replyTo,
		ContentType: msg.ContentType,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc := sessionDoc{
		UserID:        string(session.UserID),
		Title:         session.Title,
		PreferredMode: string(session.PreferredMode),
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}

	_, err := s.sessionDoc(session.ID).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	doc := map[string]interface{}{
		"user_id":        string(session.UserID),
		"title":          session.Title,
		"preferred_mode": string(session.PreferredMode),
		"created_at":     session.CreatedAt,
		"updated_at":     session.UpdatedAt,
	}

	_, err := s.sessionDoc(session.ID).Set(ctx, doc, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	return &domain.Session{
		ID:            id,
		UserID:        domain.UserID(doc.UserID),
		Title:         doc.Title,
		PreferredMode: domain.InteractionMode(doc.PreferredMode),
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		out = append(out, &domain.Session{
			ID:            domain.SessionID(snap.Ref.ID),
			UserID:        domain.UserID(doc.UserID),
			Title:         doc.Title,
			PreferredMode: domain.InteractionMode(doc.PreferredMode),
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore / TranscriptStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.messageDoc(msg.SessionID, msg.ID).Set(ctx, toMessageDoc(msg))
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns the last `limit` messages in order, all when limit <= 0.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		var replyTo *domain.MessageID
		if doc.ReplyTo != nil {
			id := domain.MessageID(*doc.ReplyTo)
			replyTo = &id
		}

		out = append(out, &domain.Message{
			ID:          domain.MessageID(snap.Ref.ID),
			SessionID:   sessionID,
			Author:      domain.Role(doc.Author),
			Content:     doc.Content,
			Mode:        domain.InteractionMode(doc.Mode),
			CreatedAt:   doc.CreatedAt,
			UpdatedAt:   doc.UpdatedAt,
			Tags:        doc.Tags,
			ReplyTo:     replyTo,
			ContentType: doc.ContentType,
		})
	}
	return out, nil
}

// SaveTranscript upserts every message of the transcript in one bulk write.
// Documents are keyed by message ID, so a retried save rewrites the same docs.
func (s *Store) SaveTranscript(ctx context.Context, _ domain.UserID, sessionID domain.SessionID, msgs []*domain.Message) error {
	bw := s.client.BulkWriter(ctx)

	jobs := make([]*firestore.BulkWriterJob, 0, len(msgs))
	for _, m := range msgs {
		job, err := bw.Set(s.messageDoc(sessionID, m.ID), toMessageDoc(m))
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore SaveTranscript enqueue %s: %w", m.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("firestore SaveTranscript: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────
// JournalStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.JournalEntryID(domain.NewID())
	}

	doc := journalDoc{
		SessionID:  string(entry.SessionID),
		MessageID:  string(entry.MessageID),
		Title:      entry.Title,
		Summary:    entry.Summary,
		Reflection: entry.Reflection,
		ActionPlan: entry.ActionPlan,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
	}

	_, err := s.userDoc(entry.UserID).Collection("journal").Doc(string(entry.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendJournalEntry: %w", err)
	}
	return nil
}

// ListJournalEntriesByUser returns the last `limit` entries, oldest first.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	q := s.userDoc(userID).Collection("journal").OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*domain.JournalEntry{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListJournalEntriesByUser: %w", err)
		}

		var doc journalDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode journalDoc: %w", err)
		}

		out = append(out, &domain.JournalEntry{
			ID:         domain.JournalEntryID(snap.Ref.ID),
			SessionID:  domain.SessionID(doc.SessionID),
			UserID:     userID,
			MessageID:  domain.MessageID(doc.MessageID),
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
			Title:      doc.Title,
			Summary:    doc.Summary,
			ActionPlan: doc.ActionPlan,
			Reflection: doc.Reflection,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────
// RecordBackend implementation
// ─────────────────────────────────────────

// CreateRecord stores rec under a new backend-issued ID. The token is checked
// for presence only; the service account performs the write.
func (s *Store) CreateRecord(ctx context.Context, token string, rec domain.Record) (domain.Record, error) {
	if token == "" {
		return domain.Record{}, domain.ErrUnauthenticated
	}

	rec.ID = domain.NewRecordID(rec.Kind)
	rec.CreatedAt = s.now()

	doc := recordDoc{
		Kind:        string(rec.Kind),
		SessionID:   string(rec.SessionID),
		MessageID:   string(rec.MessageID),
		Title:       rec.Title,
		Description: rec.Description,
		Type:        rec.Type,
		Frequency:   rec.Frequency,
		ScheduledAt: rec.ScheduledAt,
		CreatedAt:   rec.CreatedAt,
	}

	if _, err := s.userDoc(rec.UserID).Collection("records").Doc(rec.ID).Create(ctx, doc); err != nil {
		return domain.Record{}, fmt.Errorf("firestore CreateRecord: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, token string, userID domain.UserID, kind domain.RecordKind) ([]domain.Record, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	iter := s.userDoc(userID).Collection("records").Where("kind", "==", string(kind)).Documents(ctx)
	defer iter.Stop()

	var out []domain.Record
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListRecords: %w", err)
		}

		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode recordDoc: %w", err)
		}

		out = append(out, domain.Record{
			ID:          snap.Ref.ID,
			Kind:        domain.RecordKind(doc.Kind),
			UserID:      userID,
			SessionID:   domain.SessionID(doc.SessionID),
			MessageID:   domain.MessageID(doc.MessageID),
			Title:       doc.Title,
			Description: doc.Description,
			Type:        doc.Type,
			Frequency:   doc.Frequency,
			ScheduledAt: doc.ScheduledAt,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return out, nil
}
