package cards

import "github.com/PabloGalante/farum-coach/internal/tokens"

// Props is the normalized, typed payload of a card.
type Props interface {
	cardType() string
}

type FocusProps struct {
	Focus   string `json:"focus" yaml:"focus"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

// ListProps backs the blockers and actions cards.
type ListProps struct {
	Kind  string   `json:"kind" yaml:"kind"`
	Items []string `json:"items" yaml:"items"`
}

type CommitmentProps struct {
	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	CommitmentType string `json:"commitment_type" yaml:"commitment_type"`
	Frequency      string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Deadline       string `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	State          string `json:"state" yaml:"state"`
	CommitmentID   string `json:"commitment_id,omitempty" yaml:"commitment_id,omitempty"`
}

type SessionSuggestionProps struct {
	Title         string `json:"title" yaml:"title"`
	Reason        string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration      string `json:"duration" yaml:"duration"`
	SuggestedDate string `json:"suggested_date,omitempty" yaml:"suggested_date,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty" yaml:"scheduled_date,omitempty"`
	State         string `json:"state" yaml:"state"`
	SessionID     string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

type MeditationProps struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Duration    string `json:"duration" yaml:"duration"`
	Style       string `json:"style,omitempty" yaml:"style,omitempty"`
}

type InsightProps struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
}

// SessionProps backs both the session and sessionCard cards.
type SessionProps struct {
	Kind     string `json:"kind" yaml:"kind"`
	Title    string `json:"title" yaml:"title"`
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type JournalingPromptProps struct {
	Prompt  string `json:"prompt" yaml:"prompt"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	State   string `json:"state" yaml:"state"`
}

type LifeCompassProps struct {
	Area     string `json:"area,omitempty" yaml:"area,omitempty"`
	Headline string `json:"headline" yaml:"headline"`
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type SessionEndProps struct {
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type CheckinProps struct {
	Question  string `json:"question" yaml:"question"`
	Frequency string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Time      string `json:"time,omitempty" yaml:"time,omitempty"`
	State     string `json:"state" yaml:"state"`
}

// UnknownProps carries a token whose type has no card.
type UnknownProps struct {
	RawType string        `json:"raw_type" yaml:"raw_type"`
	Raw     *tokens.Props `json:"raw" yaml:"-"`
}

func (p FocusProps) cardType() string             { return TypeFocus }
func (p ListProps) cardType() string              { return p.Kind }
func (p CommitmentProps) cardType() string        { return TypeCommitment }
func (p SessionSuggestionProps) cardType() string { return TypeSessionSuggestion }
func (p MeditationProps) cardType() string        { return TypeMeditation }
func (p InsightProps) cardType() string           { return TypeInsight }
func (p SessionProps) cardType() string           { return p.Kind }
func (p JournalingPromptProps) cardType() string  { return TypeJournalingPrompt }
func (p LifeCompassProps) cardType() string       { return TypeLifeCompass }
func (p SessionEndProps) cardType() string        { return TypeSessionEnd }
func (p CheckinProps) cardType() string           { return TypeCheckin }
func (p UnknownProps) cardType() string           { return TypeUnknown }
