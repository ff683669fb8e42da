package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-coach/internal/app/tools"
	"github.com/PabloGalante/farum-coach/internal/app/transcript"
	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

const historyLimit = 20

const welcomeText = "Hi, I'm Farum. What would you like to work on today?"

type Service struct {
	llm          domain.LLMClient
	sessionStore domain.SessionStore
	transcripts  *transcript.Coordinator
	now          func() time.Time

	journalTool tools.Tool
}

func NewService(
	llm domain.LLMClient,
	sessionStore domain.SessionStore,
	transcripts *transcript.Coordinator,
	journalTool *tools.JournalTool,
) *Service {
	s := &Service{
		llm:          llm,
		sessionStore: sessionStore,
		transcripts:  transcripts,
		now:          time.Now,
	}
	if journalTool != nil {
		s.journalTool = journalTool
	}
	return s
}

type StartSessionInput struct {
	UserID        domain.UserID
	PreferredMode domain.InteractionMode
	Title         string
}

type StartSessionOutput struct {
	Session *domain.Session
	Welcome *domain.Message
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	now := s.now()

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"preferred_mode", in.PreferredMode,
	)
	log.Info("starting new session")

	if in.PreferredMode == "" {
		in.PreferredMode = domain.ModeCheckIn
	}

	session := &domain.Session{
		ID:            domain.SessionID(domain.NewID()),
		UserID:        in.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
		PreferredMode: in.PreferredMode,
		Title:         in.Title,
	}

	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	welcome := &domain.Message{
		ID:          domain.MessageID(domain.NewID()),
		SessionID:   session.ID,
		Author:      domain.RoleAssistant,
		Content:     welcomeText,
		CreatedAt:   now,
		UpdatedAt:   now,
		Mode:        session.PreferredMode,
		ContentType: "text",
	}

	if err := s.transcripts.Append(ctx, welcome); err != nil {
		log.Error("failed to append welcome message", "error", err)
		return nil, err
	}

	log.Info("session started", "session_id", session.ID)

	return &StartSessionOutput{
		Session: session,
		Welcome: welcome,
	}, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Text      string

	// OnUpdate, if set, receives a parsed snapshot of the reply after every
	// streamed chunk.
	OnUpdate func(tokens.Snapshot)
}

type SendMessageOutput struct {
	UserMessage  *domain.Message
	AgentMessage *domain.Message

	// JournalEntryID is set when the reply closed the session and a journal
	// entry was written for it.
	JournalEntryID string
}

// SendMessage streams the coach's reply to in.Text. Both messages are stored
// only once the reply completed; a canceled ctx leaves the transcript as it was.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	session, err := s.sessionStore.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if in.UserID != "" && in.UserID != session.UserID {
		return nil, domain.ErrSessionNotFound
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"user_id", session.UserID,
		"mode", session.PreferredMode,
	)
	log.Info("sending message", "length", len(in.Text))

	history, err := s.transcripts.Load(ctx, session.ID)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, err
	}
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	now := s.now()
	userMsg := &domain.Message{
		ID:          domain.MessageID(domain.NewID()),
		SessionID:   session.ID,
		Author:      domain.RoleUser,
		Content:     in.Text,
		CreatedAt:   now,
		UpdatedAt:   now,
		Mode:        session.PreferredMode,
		ContentType: "text",
	}

	convCtx := domain.ConversationContext{
		SessionID: session.ID,
		UserID:    session.UserID,
		Mode:      session.PreferredMode,
		History:   history,
	}

	replyText, err := s.stream(ctx, in, convCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Info("reply aborted, nothing stored", "reason", err)
		} else {
			log.Error("llm stream failed", "error", err)
		}
		return nil, err
	}

	done := s.now()
	agentMsg := &domain.Message{
		ID:          domain.MessageID(domain.NewID()),
		SessionID:   session.ID,
		Author:      domain.RoleAssistant,
		Content:     replyText,
		CreatedAt:   done,
		UpdatedAt:   done,
		Mode:        session.PreferredMode,
		ReplyTo:     &userMsg.ID,
		ContentType: "coaching",
	}

	if err := s.transcripts.Append(ctx, userMsg, agentMsg); err != nil {
		log.Error("failed to append messages", "error", err)
		return nil, err
	}

	session.UpdatedAt = done
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error("failed to update session", "error", err)
		return nil, err
	}

	out := &SendMessageOutput{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
	}
	if tokens.IsComplete(replyText) {
		out.JournalEntryID = s.journal(ctx, session, agentMsg)
	}

	log.Info("send message completed", "message_id", agentMsg.ID)

	return out, nil
}

func (s *Service) stream(ctx context.Context, in SendMessageInput, convCtx domain.ConversationContext) (string, error) {
	acc := tokens.NewAccumulator()
	defer acc.Close()

	full, err := s.llm.StreamReply(ctx, in.Text, convCtx, func(chunk string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !acc.Write(chunk) {
			return context.Canceled
		}
		if in.OnUpdate != nil {
			in.OnUpdate(acc.Snapshot())
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if full == "" {
		full = acc.Text()
	}
	if full == "" {
		return "", fmt.Errorf("llm returned an empty reply")
	}
	return full, nil
}

// journal records the completion block of msg. Failures are logged; the reply
// itself is already stored.
func (s *Service) journal(ctx context.Context, session *domain.Session, msg *domain.Message) string {
	if s.journalTool == nil {
		return ""
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"message_id", msg.ID,
		"tool", s.journalTool.Name(),
	)

	input := tools.CompletionInput(cards.MaterializeCompletion(string(msg.ID), msg.Content))
	if input == nil {
		log.Debug("completion block has nothing to journal")
		return ""
	}

	res, err := s.journalTool.Call(ctx, tools.ToolContext{
		UserID:    string(session.UserID),
		SessionID: string(session.ID),
		MessageID: string(msg.ID),
		RequestID: observability.RequestID(ctx),
	}, input)
	if err != nil {
		log.Error("failed to journal completion", "error", err)
		return ""
	}

	id, _ := res["entry_id"].(string)
	log.Info("completion journaled", "entry_id", id)
	return id
}

func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"limit", limit,
	)

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to get session", "error", err)
		return nil, nil, err
	}

	msgs, err := s.transcripts.Load(ctx, sessionID)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	log.Info("fetched session timeline", "message_count", len(msgs))

	return session, msgs, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	return s.sessionStore.ListSessionsByUser(ctx, userID, limit)
}
