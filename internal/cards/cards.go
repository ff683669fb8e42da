// Package cards turns parsed tokens into typed, UI-ready card descriptors.
//
// Materialize is a pure dispatch over the token type. It normalizes and
// defaults properties, decides which callback slots the UI must wire, and never
// fails: an unknown type becomes an UnknownProps card.
package cards

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PabloGalante/farum-coach/internal/observability"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

// Token types understood by the coach.
const (
	TypeFocus             = "focus"
	TypeBlockers          = "blockers"
	TypeActions           = "actions"
	TypeCommitment        = "commitmentDetected"
	TypeSessionSuggestion = "sessionSuggestion"
	TypeMeditation        = "meditation"
	TypeInsight           = "insight"
	TypeSession           = "session"
	TypeSessionCard       = "sessionCard"
	TypeJournalingPrompt  = "journalingPrompt"
	TypeLifeCompass       = "lifeCompassUpdated"
	TypeSessionEnd        = "sessionEnd"
	TypeCheckin           = "checkin"

	TypeUnknown = "unknown"
)

// Card states.
const (
	StateNone      = "none"
	StateAccepted  = "accepted"
	StateRejected  = "rejected"
	StateScheduled = "scheduled"
	StateDismissed = "dismissed"
	StateAnswered  = "answered"
)

const (
	CommitmentOneTime   = "one-time"
	CommitmentRecurring = "recurring"

	DefaultSessionDuration = "60m"
)

// Slot names a UI callback a card needs.
type Slot string

const (
	SlotAccept   Slot = "accept"
	SlotReject   Slot = "reject"
	SlotSchedule Slot = "schedule"
	SlotDismiss  Slot = "dismiss"
	SlotDiscuss  Slot = "discuss"
	SlotStart    Slot = "start"
)

// Key addresses a card across re-renders: tokens carry no identity until the
// backend assigns one, so the occurrence index within the message stands in.
type Key struct {
	MessageID string
	Type      string
	Index     int
}

func (k Key) String() string {
	return k.MessageID + "/" + k.Type + "/" + strconv.Itoa(k.Index)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return Key{}, fmt.Errorf("invalid card key %q", s)
	}
	j := strings.LastIndex(s[:i], "/")
	if j <= 0 {
		return Key{}, fmt.Errorf("invalid card key %q", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return Key{}, fmt.Errorf("invalid card index in %q", s)
	}
	return Key{MessageID: s[:j], Type: s[j+1 : i], Index: idx}, nil
}

// Card is the materialized form of one token occurrence.
type Card struct {
	Key   Key    `json:"key" yaml:"key"`
	Type  string `json:"type" yaml:"type"`
	Slots []Slot `json:"slots" yaml:"slots"`
	Props Props  `json:"props" yaml:"props"`
	// Notes records data-quality corrections applied while normalizing.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Confirmed reports whether the card reached a terminal state and renders read-only.
func (c Card) Confirmed() bool {
	return len(c.Slots) == 0 && c.State() != ""
}

// State returns the interaction state of stateful cards, "" otherwise.
func (c Card) State() string {
	switch p := c.Props.(type) {
	case CommitmentProps:
		return p.State
	case SessionSuggestionProps:
		return p.State
	case JournalingPromptProps:
		return p.State
	case CheckinProps:
		return p.State
	}
	return ""
}

type builder func(p *tokens.Props) (Props, []Slot, []string)

type entry struct {
	build   builder
	example string
}

var registry = map[string]entry{
	TypeFocus: {buildFocus,
		`[focus:focus="Deep work before noon",context="You said mornings are when you think best"]`},
	TypeBlockers: {buildList(TypeBlockers),
		`[blockers:items="Late meetings|Phone notifications"]`},
	TypeActions: {buildList(TypeActions),
		`[actions:items="Block 9-11am|Silence phone"]`},
	TypeCommitment: {buildCommitment,
		`[commitmentDetected:title="Morning walk",description="Walk 20 minutes before work",type="recurring",frequency="daily",state="none"]`},
	TypeSessionSuggestion: {buildSessionSuggestion,
		`[sessionSuggestion:title="Follow-up on boundaries",reason="Check how the new routine went",duration="30m",suggestedDate="next monday 9am",state="none"]`},
	TypeMeditation: {buildMeditation,
		`[meditation:title="Box breathing",description="Four counts in, hold, out, hold",duration="5m",type="breathing"]`},
	TypeInsight: {buildInsight,
		`[insight:title="Pattern",text="Stress peaks when plans change last minute"]`},
	TypeSession: {buildSession(TypeSession),
		`[session:title="Career clarity",summary="Explored next steps",date="2024-05-01"]`},
	TypeSessionCard: {buildSession(TypeSessionCard),
		`[sessionCard:title="Career clarity",summary="Explored next steps",duration="45m"]`},
	TypeJournalingPrompt: {buildJournalingPrompt,
		`[journalingPrompt:prompt="What gave you energy this week?"]`},
	TypeLifeCompass: {buildLifeCompass,
		`[lifeCompassUpdated:area="health",headline="Sleep comes first",summary="Protect 8 hours"]`},
	TypeSessionEnd: {buildSessionEnd,
		`[sessionEnd:title="Wrap up",summary="You chose one small step for tomorrow"]`},
	TypeCheckin: {buildCheckin,
		`[checkin:question="How did the walk feel?",frequency="daily",time="20:00",state="none"]`},
}

// Materialize converts one token occurrence into a card. It has no side effects.
func Materialize(tok tokens.Token, messageID string) Card {
	key := Key{MessageID: messageID, Type: tok.Type, Index: tok.Index}

	e, ok := registry[tok.Type]
	if !ok {
		return Card{
			Key:   key,
			Type:  TypeUnknown,
			Slots: []Slot{},
			Props: UnknownProps{RawType: tok.Type, Raw: tok.Props.Clone()},
		}
	}

	props, slots, notes := e.build(tok.Props)
	if slots == nil {
		slots = []Slot{}
	}
	return Card{Key: key, Type: tok.Type, Slots: slots, Props: props, Notes: notes}
}

// MaterializeAll materializes every body token of an assistant message.
// Cards demoted for untrusted identifiers are logged as a data-quality signal.
func MaterializeAll(messageID, content string) []Card {
	toks := tokens.Parse(content)
	out := make([]Card, 0, len(toks))
	for _, tok := range toks {
		card := Materialize(tok, messageID)
		for _, note := range card.Notes {
			observability.Logger().Warn("card normalized",
				"card", card.Key.String(),
				"note", note)
		}
		out = append(out, card)
	}
	return out
}

// MaterializeCompletion materializes the components of the completion block.
func MaterializeCompletion(messageID, content string) []Card {
	c := tokens.ExtractCompletion(content)
	out := make([]Card, 0, len(c.Components))
	for _, tok := range c.Components {
		out = append(out, Materialize(tok, messageID))
	}
	return out
}

// Find returns the card addressed by key.
func Find(cs []Card, key Key) (Card, bool) {
	for _, c := range cs {
		if c.Key == key {
			return c, true
		}
	}
	return Card{}, false
}

// TypeInfo describes a supported token type.
type TypeInfo struct {
	Type    string
	Example string
}

// Registry lists the supported token types sorted by name.
func Registry() []TypeInfo {
	out := make([]TypeInfo, 0, len(registry))
	for typ, e := range registry {
		out = append(out, TypeInfo{Type: typ, Example: e.example})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Known reports whether typ has a card.
func Known(typ string) bool {
	_, ok := registry[typ]
	return ok
}
