package cards

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/farum-coach/internal/tokens"
)

// Backend-issued identifiers carry a kind prefix and a random suffix. The coach
// sometimes invents plausible ids; anything else is not trusted as confirmed.
const (
	CommitmentIDPrefix = "cmt_"
	SessionIDPrefix    = "ses_"

	minBackendIDLen = 20
)

// TrustedID reports whether id has the shape of a backend-issued identifier.
func TrustedID(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) >= minBackendIDLen
}

func buildFocus(p *tokens.Props) (Props, []Slot, []string) {
	focus := p.First("focus", "headline")
	if focus == "" {
		focus = "Focus on what matters most today"
	}
	return FocusProps{
		Focus:   focus,
		Context: p.First("context", "explanation"),
	}, []Slot{SlotDiscuss}, nil
}

func buildList(kind string) builder {
	return func(p *tokens.Props) (Props, []Slot, []string) {
		return ListProps{Kind: kind, Items: splitItems(p.Get("items"))}, nil, nil
	}
}

func buildCommitment(p *tokens.Props) (Props, []Slot, []string) {
	c := CommitmentProps{
		Title:          orDefault(p.First("title"), "Commitment"),
		Description:    p.First("description"),
		CommitmentType: oneOf(p.First("type", "commitmentType"), CommitmentOneTime, CommitmentRecurring),
		Frequency:      p.First("frequency"),
		Deadline:       p.First("deadline"),
		State:          oneOf(p.First("state"), StateNone, StateAccepted, StateRejected),
		CommitmentID:   p.First("commitmentId"),
	}

	var notes []string
	switch {
	case c.CommitmentID != "" && !TrustedID(c.CommitmentID, CommitmentIDPrefix):
		notes = append(notes, fmt.Sprintf("untrusted commitmentId %q discarded, state %q reset", c.CommitmentID, c.State))
		c.CommitmentID = ""
		c.State = StateNone
	case c.State == StateAccepted && c.CommitmentID == "":
		notes = append(notes, "accepted commitment without commitmentId reset")
		c.State = StateNone
	}

	if c.State != StateNone {
		return c, nil, notes
	}
	return c, []Slot{SlotAccept, SlotReject}, notes
}

func buildSessionSuggestion(p *tokens.Props) (Props, []Slot, []string) {
	s := SessionSuggestionProps{
		Title:         orDefault(p.First("title"), "Coaching session"),
		Reason:        p.First("reason", "description"),
		Duration:      orDefault(p.First("duration"), DefaultSessionDuration),
		SuggestedDate: p.First("suggestedDate", "date"),
		ScheduledDate: p.First("scheduledDate"),
		State:         oneOf(p.First("state"), StateNone, StateScheduled, StateDismissed),
		SessionID:     p.First("sessionId"),
	}

	var notes []string
	switch {
	case s.SessionID != "" && !TrustedID(s.SessionID, SessionIDPrefix):
		notes = append(notes, fmt.Sprintf("untrusted sessionId %q discarded, state %q reset", s.SessionID, s.State))
		s.SessionID = ""
		s.State = StateNone
	case s.State == StateScheduled && s.SessionID == "":
		notes = append(notes, "scheduled session without sessionId reset")
		s.State = StateNone
	}

	if s.State != StateNone {
		return s, nil, notes
	}
	return s, []Slot{SlotSchedule, SlotDismiss}, notes
}

func buildMeditation(p *tokens.Props) (Props, []Slot, []string) {
	return MeditationProps{
		Title:       orDefault(p.First("title"), "Guided meditation"),
		Description: p.First("description"),
		Duration:    orDefault(p.First("duration"), "5m"),
		Style:       p.First("type", "style"),
	}, []Slot{SlotStart}, nil
}

func buildInsight(p *tokens.Props) (Props, []Slot, []string) {
	return InsightProps{
		Title: orDefault(p.First("title"), "Insight"),
		Text:  p.First("text", "insight", "content"),
	}, []Slot{SlotDiscuss}, nil
}

func buildSession(kind string) builder {
	return func(p *tokens.Props) (Props, []Slot, []string) {
		return SessionProps{
			Kind:     kind,
			Title:    orDefault(p.First("title"), "Session"),
			Summary:  p.First("summary", "description"),
			Date:     p.First("date"),
			Duration: p.First("duration"),
		}, []Slot{SlotDiscuss}, nil
	}
}

func buildJournalingPrompt(p *tokens.Props) (Props, []Slot, []string) {
	j := JournalingPromptProps{
		Prompt:  orDefault(p.First("prompt", "question"), "What stood out to you today?"),
		Context: p.First("context"),
		State:   oneOf(p.First("state"), StateNone, StateAnswered, StateDismissed),
	}
	if j.State != StateNone {
		return j, nil, nil
	}
	return j, []Slot{SlotDiscuss, SlotDismiss}, nil
}

func buildLifeCompass(p *tokens.Props) (Props, []Slot, []string) {
	return LifeCompassProps{
		Area:     p.First("area"),
		Headline: orDefault(p.First("headline", "title"), "Life compass updated"),
		Summary:  p.First("summary", "description"),
	}, nil, nil
}

func buildSessionEnd(p *tokens.Props) (Props, []Slot, []string) {
	return SessionEndProps{
		Title:   orDefault(p.First("title"), "Session complete"),
		Summary: p.First("summary", "description"),
	}, nil, nil
}

func buildCheckin(p *tokens.Props) (Props, []Slot, []string) {
	c := CheckinProps{
		Question:  orDefault(p.First("question", "title"), "How are you feeling right now?"),
		Frequency: p.First("frequency"),
		Time:      p.First("time"),
		State:     oneOf(p.First("state"), StateNone, StateAccepted, StateDismissed),
	}
	if c.State != StateNone {
		return c, nil, nil
	}
	return c, []Slot{SlotAccept, SlotDismiss}, nil
}

// splitItems splits a |-delimited value, dropping blank entries.
func splitItems(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, "|") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// oneOf returns v when it is among allowed, otherwise allowed[0].
func oneOf(v string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}
