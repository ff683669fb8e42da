package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

const defaultChunkSize = 24

var farewells = []string{"bye", "goodbye", "that's all", "see you", "chau", "adios"}

// MockLLM streams canned coaching replies that carry card tokens. It is used
// in local mode and in tests.
type MockLLM struct {
	ChunkSize int
	Delay     time.Duration
}

func NewMockLLM() *MockLLM {
	return &MockLLM{ChunkSize: defaultChunkSize}
}

func (m *MockLLM) StreamReply(
	ctx context.Context,
	userMessage string,
	convCtx domain.ConversationContext,
	onChunk func(string) error,
) (string, error) {
	reply := mockReply(userMessage, convCtx.Mode)

	size := m.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}

	var sent strings.Builder
	for rest := []rune(reply); len(rest) > 0; {
		n := min(size, len(rest))
		chunk := string(rest[:n])
		rest = rest[n:]

		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onChunk(chunk); err != nil {
			return "", err
		}
		sent.WriteString(chunk)
	}
	return sent.String(), nil
}

func mockReply(userMessage string, mode domain.InteractionMode) string {
	topic := strings.TrimSpace(strings.ReplaceAll(userMessage, `"`, "'"))
	if r := []rune(topic); len(r) > 60 {
		topic = string(r[:60])
	}

	lower := strings.ToLower(topic)
	for _, f := range farewells {
		if strings.Contains(lower, f) {
			return fmt.Sprintf("Thanks for sharing today. Take care of yourself.\n\n"+
				`[finish-start][sessionEnd:title="Wrap up",summary="We talked about %s"]`+
				`[insight:text="Naming what you feel makes it lighter"][finish-end]`, topic)
		}
	}

	switch mode {
	case domain.ModeActionPlan:
		return fmt.Sprintf("Let's turn %q into one small step.\n\n"+
			`[actions:items="Pick one task|Block 30 minutes|Tell someone your plan"]`+"\n"+
			`[commitmentDetected:title="First small step",description="Spend 30 minutes on %s",type="one-time",state="none"]`+"\n"+
			`[sessionSuggestion:title="Follow-up",reason="Check how the first step went",duration="30m",suggestedDate="tomorrow 9am",state="none"]`,
			topic, topic)
	case domain.ModeDeepDive:
		return fmt.Sprintf("I hear you. You said %q. What usually happens right before you feel this way?\n\n"+
			`[insight:title="Pattern",text="This seems to come back when things feel out of control"]`+"\n"+
			`[journalingPrompt:prompt="When did you last feel calm about %s?"]`, topic, topic)
	default:
		return fmt.Sprintf("I hear you. You said %q. How does that sit with you right now?\n\n"+
			`[focus:focus="%s",context="One thing at a time"]`+"\n"+
			`[checkin:question="How are you feeling after naming it?",frequency="daily",time="20:00"]`, topic, topic)
	}
}
