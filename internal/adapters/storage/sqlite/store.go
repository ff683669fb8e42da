// Package sqlite is a single-file local store implementing every persistence
// port. It backs local mode when transcripts should survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{conn: conn, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ─────────────────────────────────────────
// SessionStore
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, title, preferred_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(session.ID), string(session.UserID), session.Title, string(session.PreferredMode),
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE sessions
		SET user_id = ?, title = ?, preferred_mode = ?, updated_at = ?
		WHERE id = ?
	`, string(session.UserID), session.Title, string(session.PreferredMode), formatTime(session.UpdatedAt), string(session.ID))
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess             domain.Session
		id, userID, mode string
		created, updated string
	)
	if err := row.Scan(&id, &userID, &sess.Title, &mode, &created, &updated); err != nil {
		return nil, err
	}
	sess.ID = domain.SessionID(id)
	sess.UserID = domain.UserID(userID)
	sess.PreferredMode = domain.InteractionMode(mode)

	var err error
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sess, nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, user_id, title, preferred_mode, created_at, updated_at
		FROM sessions WHERE id = ?
	`, string(id))

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite GetSession: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, title, preferred_mode, created_at, updated_at
		FROM sessions WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSessionsByUser: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite ListSessionsByUser scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────
// MessageStore / TranscriptStore
// ─────────────────────────────────────────

const upsertMessage = `
	INSERT INTO messages (id, session_id, author, content, mode, tags, reply_to, content_type, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, id) DO UPDATE SET
		content = excluded.content,
		tags = excluded.tags,
		updated_at = excluded.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeMessage(ctx context.Context, db execer, sessionID domain.SessionID, m *domain.Message) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	var replyTo sql.NullString
	if m.ReplyTo != nil {
		replyTo = sql.NullString{String: string(*m.ReplyTo), Valid: true}
	}
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = m.CreatedAt
	}

	_, err = db.ExecContext(ctx, upsertMessage,
		string(m.ID), string(sessionID), string(m.Author), m.Content, string(m.Mode), string(tags), replyTo, m.ContentType,
		formatTime(m.CreatedAt), formatTime(updated))
	return err
}

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if err := writeMessage(ctx, s.conn, msg.SessionID, msg); err != nil {
		return fmt.Errorf("sqlite AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns the last `limit` messages in order, all when limit <= 0.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, author, content, mode, tags, reply_to, content_type, created_at, updated_at
		FROM (
			SELECT * FROM messages WHERE session_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite GetMessagesBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			m                      domain.Message
			id, author, mode, tags string
			replyTo                sql.NullString
			created, updated       string
		)
		if err := rows.Scan(&id, &author, &m.Content, &mode, &tags, &replyTo, &m.ContentType, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite GetMessagesBySession scan: %w", err)
		}

		m.ID = domain.MessageID(id)
		m.SessionID = sessionID
		m.Author = domain.Role(author)
		m.Mode = domain.InteractionMode(mode)
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", id, err)
		}
		if replyTo.Valid {
			r := domain.MessageID(replyTo.String)
			m.ReplyTo = &r
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", id, err)
		}
		if m.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("parse updated_at of %s: %w", id, err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// SaveTranscript upserts msgs by ID in one transaction.
func (s *Store) SaveTranscript(ctx context.Context, _ domain.UserID, sessionID domain.SessionID, msgs []*domain.Message) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if err := writeMessage(ctx, tx, sessionID, m); err != nil {
			return fmt.Errorf("sqlite SaveTranscript %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ─────────────────────────────────────────
// JournalStore
// ─────────────────────────────────────────

func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.JournalEntryID(domain.NewID())
	}

	plan, err := json.Marshal(entry.ActionPlan)
	if err != nil {
		return fmt.Errorf("encode action plan: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO journal_entries
			(id, user_id, session_id, message_id, title, summary, reflection, action_plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(entry.ID), string(entry.UserID), string(entry.SessionID), string(entry.MessageID), entry.Title, entry.Summary,
		entry.Reflection, string(plan), formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite AppendJournalEntry: %w", err)
	}
	return nil
}

// ListJournalEntriesByUser returns the last `limit` entries, oldest first.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, message_id, title, summary, reflection, action_plan, created_at, updated_at
		FROM (
			SELECT * FROM journal_entries WHERE user_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListJournalEntriesByUser: %w", err)
	}
	defer rows.Close()

	out := []*domain.JournalEntry{}
	for rows.Next() {
		var (
			e                        domain.JournalEntry
			id, sessionID, messageID string
			plan, created, updated   string
		)
		if err := rows.Scan(&id, &sessionID, &messageID, &e.Title, &e.Summary, &e.Reflection, &plan, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite ListJournalEntriesByUser scan: %w", err)
		}
		e.ID = domain.JournalEntryID(id)
		e.UserID = userID
		e.SessionID = domain.SessionID(sessionID)
		e.MessageID = domain.MessageID(messageID)
		if err := json.Unmarshal([]byte(plan), &e.ActionPlan); err != nil {
			return nil, fmt.Errorf("decode action plan of %s: %w", id, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────
// RecordBackend
// ─────────────────────────────────────────

func (s *Store) CreateRecord(ctx context.Context, token string, rec domain.Record) (domain.Record, error) {
	if token == "" {
		return domain.Record{}, domain.ErrUnauthenticated
	}

	rec.ID = domain.NewRecordID(rec.Kind)
	rec.CreatedAt = s.now()

	var scheduled sql.NullString
	if rec.ScheduledAt != nil {
		scheduled = sql.NullString{String: formatTime(*rec.ScheduledAt), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO records
			(id, kind, user_id, session_id, message_id, title, description, type, frequency, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Kind), string(rec.UserID), string(rec.SessionID), string(rec.MessageID), rec.Title, rec.Description,
		rec.Type, rec.Frequency, scheduled, formatTime(rec.CreatedAt))
	if err != nil {
		return domain.Record{}, fmt.Errorf("sqlite CreateRecord: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, token string, userID domain.UserID, kind domain.RecordKind) ([]domain.Record, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, message_id, title, description, type, frequency, scheduled_at, created_at
		FROM records WHERE user_id = ? AND kind = ?
		ORDER BY created_at
	`, string(userID), string(kind))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListRecords: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r                    domain.Record
			sessionID, messageID string
			scheduled            sql.NullString
			created              string
		)
		if err := rows.Scan(&r.ID, &sessionID, &messageID, &r.Title, &r.Description, &r.Type, &r.Frequency, &scheduled, &created); err != nil {
			return nil, fmt.Errorf("sqlite ListRecords scan: %w", err)
		}
		r.Kind = kind
		r.UserID = userID
		r.SessionID = domain.SessionID(sessionID)
		r.MessageID = domain.MessageID(messageID)
		if scheduled.Valid {
			at, err := parseTime(scheduled.String)
			if err != nil {
				return nil, err
			}
			r.ScheduledAt = &at
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
