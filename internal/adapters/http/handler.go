package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/farum-coach/internal/app/conversation"
	journalapp "github.com/PabloGalante/farum-coach/internal/app/journal"
	"github.com/PabloGalante/farum-coach/internal/app/transcript"
	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/observability"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

type Server struct {
	svc         *conversation.Service
	journal     *journalapp.Service
	transcripts *transcript.Coordinator
}

func NewServer(svc *conversation.Service, journal *journalapp.Service, transcripts *transcript.Coordinator) http.Handler {
	s := &Server{svc: svc, journal: journal, transcripts: transcripts}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /sessions → create session (POST), list a user's sessions (GET)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/{id}                                         → GET: session + messages
	// /sessions/{id}/messages                                → POST: send message
	// /sessions/{id}/messages/{msgID}/cards/{type}/{index}  → POST: card action
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	// /users/{id}/journal → GET: journal entries
	mux.HandleFunc("/users/", s.handleUsers)

	// /tokens/preview → POST: parse arbitrary content
	mux.HandleFunc("/tokens/preview", s.handleTokensPreview)

	return chainMiddlewares(mux, withLogging, withAuth, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID        string `json:"user_id"`
	PreferredMode string `json:"preferred_mode,omitempty"`
	Title         string `json:"title,omitempty"`
}

type createSessionResponse struct {
	Session sessionResponse  `json:"session"`
	Welcome *messageResponse `json:"welcome_message,omitempty"`
}

type sessionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	PreferredMode string    `json:"preferred_mode"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Author      string       `json:"author"`
	Content     string       `json:"content"`
	DisplayText string       `json:"display_text"`
	Cards       []cards.Card `json:"cards,omitempty"`
	Completion  []cards.Card `json:"completion,omitempty"`
	Mode        string       `json:"mode"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage    messageResponse `json:"user_message"`
	AgentMessage   messageResponse `json:"agent_message"`
	JournalEntryID string          `json:"journal_entry_id,omitempty"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type cardActionRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
	When   string `json:"when,omitempty"`
}

type cardActionResponse struct {
	Message messageResponse `json:"message"`
}

type previewRequest struct {
	Content string `json:"content"`
}

type previewResponse struct {
	DisplayText string         `json:"display_text"`
	Tokens      []tokens.Token `json:"tokens"`
	Cards       []cards.Card   `json:"cards"`
	Completion  []cards.Card   `json:"completion"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id}[/messages[/{msgID}/cards/{type}/{index}]]
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.SessionID(parts[0])

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetSession(w, r, id)

	case len(parts) == 2 && parts[1] == "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSendMessage(w, r, id)

	case len(parts) == 6 && parts[1] == "messages" && parts[3] == "cards":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		index, err := strconv.Atoi(parts[5])
		if err != nil || index < 0 || parts[2] == "" || parts[4] == "" {
			http.NotFound(w, r)
			return
		}
		s.handleCardAction(w, r, transcript.CardAction{
			SessionID: id,
			MessageID: domain.MessageID(parts[2]),
			Index:     index,
		}, parts[4])

	default:
		http.NotFound(w, r)
	}
}

// /users/{id}/journal
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "journal" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.handleGetJournal(w, r, domain.UserID(parts[0]))
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.svc.StartSession(
		r.Context(),
		conversation.StartSessionInput{
			UserID:        domain.UserID(req.UserID),
			PreferredMode: parseInteractionMode(req.PreferredMode),
			Title:         req.Title,
		},
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := createSessionResponse{
		Session: toSessionResponse(out.Session),
	}
	if out.Welcome != nil {
		m := toMessageResponse(out.Welcome)
		resp.Welcome = &m
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	sessions, err := s.svc.ListSessions(r.Context(), domain.UserID(userID), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	session, msgs, err := s.svc.GetSessionTimeline(r.Context(), id, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	in := conversation.SendMessageInput{
		SessionID: sessionID,
		UserID:    domain.UserID(req.UserID),
		Text:      req.Text,
	}

	if wantsEventStream(r) {
		s.streamSendMessage(w, r, in)
		return
	}

	out, err := s.svc.SendMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSendMessageResponse(out))
}

// streamSendMessage answers with server-sent events: one "snapshot" event per
// streamed chunk, then "done" with the stored messages or "error".
func (s *Server) streamSendMessage(w http.ResponseWriter, r *http.Request, in conversation.SendMessageInput) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			observability.LoggerFromContext(r.Context()).Error("failed to encode event", "event", event, "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		_ = rc.Flush()
	}

	in.OnUpdate = func(snap tokens.Snapshot) {
		send("snapshot", snap)
	}

	out, err := s.svc.SendMessage(r.Context(), in)
	if err != nil {
		status, msg := errorStatus(err)
		send("error", map[string]any{"status": status, "error": msg})
		return
	}
	send("done", toSendMessageResponse(out))
}

func (s *Server) handleCardAction(w http.ResponseWriter, r *http.Request, a transcript.CardAction, typ string) {
	var req cardActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if req.Action == "" {
		badRequest(w, "action is required")
		return
	}
	a.UserID = domain.UserID(req.UserID)

	msg, err := s.transcripts.Act(r.Context(), a, typ, req.Action, req.When)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cardActionResponse{Message: toMessageResponse(msg)})
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	entries, err := s.journal.GetUserJournal(r.Context(), userID, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleTokensPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	const previewID = "preview"
	writeJSON(w, http.StatusOK, previewResponse{
		DisplayText: tokens.DisplayText(req.Content),
		Tokens:      tokens.Parse(req.Content),
		Cards:       cards.MaterializeAll(previewID, req.Content),
		Completion:  cards.MaterializeCompletion(previewID, req.Content),
	})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            string(s.ID),
		UserID:        string(s.UserID),
		Title:         s.Title,
		PreferredMode: string(s.PreferredMode),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	resp := messageResponse{
		ID:          string(m.ID),
		SessionID:   string(m.SessionID),
		Author:      string(m.Author),
		Content:     m.Content,
		DisplayText: m.Content,
		Mode:        string(m.Mode),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ReplyTo != nil {
		resp.ReplyTo = string(*m.ReplyTo)
	}
	if m.HasCards() {
		resp.DisplayText = tokens.DisplayText(m.Content)
		resp.Cards = cards.MaterializeAll(string(m.ID), m.Content)
		resp.Completion = cards.MaterializeCompletion(string(m.ID), m.Content)
	}
	return resp
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toSendMessageResponse(out *conversation.SendMessageOutput) sendMessageResponse {
	return sendMessageResponse{
		UserMessage:    toMessageResponse(out.UserMessage),
		AgentMessage:   toMessageResponse(out.AgentMessage),
		JournalEntryID: out.JournalEntryID,
	}
}

func parseInteractionMode(s string) domain.InteractionMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "check_in", "checkin":
		return domain.ModeCheckIn
	case "deep_dive", "deep":
		return domain.ModeDeepDive
	case "action_plan", "action":
		return domain.ModeActionPlan
	default:
		return domain.ModeCheckIn
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// errorStatus maps domain errors to a status code and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrCardNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrActionInFlight),
		errors.Is(err, domain.ErrAlreadyConfirmed),
		errors.Is(err, domain.ErrSessionExists):
		return http.StatusConflict, err.Error()
	}

	var ae *domain.ActionError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case domain.KindAuth:
			return http.StatusUnauthorized, "unauthenticated"
		case domain.KindUsage:
			return http.StatusBadRequest, ae.Error()
		case domain.KindBackend:
			return http.StatusBadGateway, "backend request failed"
		case domain.KindPersist:
			return http.StatusServiceUnavailable, "could not save the transcript, try again"
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err)
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
