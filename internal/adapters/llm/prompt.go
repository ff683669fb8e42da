package llm

import (
	"fmt"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

const baseSystemPrompt = `
You are "Farum", an AI companion and coach focused on mental well-being and personal growth.

Your role:
- You listen with empathy and without judgment.
- You help the user clarify what they feel, what they need, and what they can do next.
- You are NOT a therapist, doctor, or emergency service and you do NOT give medical or psychiatric diagnoses.

General style guidelines:
- Answer in the SAME LANGUAGE as the user.
- Be concise: 3-8 short paragraphs or bullet points max.
- Reflect back what you understood before giving suggestions.
- Ask 1 or 2 good follow-up questions, not more.
- Invite the user to take small, realistic steps rather than big changes.

Boundaries and safety:
- If the user mentions self-harm, suicide, or that they might hurt someone, encourage them to seek immediate help from local emergency services or a trusted person.
- Never give instructions on how to self-harm or harm others.

Cards:
The app turns bracketed tokens in your reply into interactive cards. Write a
token on its own line, exactly as [type:key="value",...], with double-quoted
values that never contain a double quote. Use | to separate list items.
Never invent commitmentId or sessionId values; the app fills them in.
Available cards:
{{#cards}}
- {{type}}: {{{example}}}
{{/cards}}

When the user wants to end the session, close your reply with a summary block:
[finish-start][sessionEnd:title="...",summary="..."] optional insight and commitmentDetected tokens [finish-end]
Nothing may follow [finish-end].

{{{mode_instructions}}}
`

const checkInInstructions = `
Mode: check_in

Focus:
- Short check-in on how the user is feeling right now.
- Help them name emotions and normalize what they feel.
- Offer 1 or 2 simple ideas for self-care or regulation for today.
- Prefer focus and checkin cards.
`

const deepDiveInstructions = `
Mode: deep_dive

Focus:
- Explore the situation with curiosity.
- Ask about context, history, and patterns.
- Avoid overwhelming the user: go one layer deeper, not ten.
- Prefer insight and journalingPrompt cards.
`

const actionPlanInstructions = `
Mode: action_plan

Focus:
- Co-create a simple plan with the user: 1-3 small, concrete actions.
- Include at least one "very small" action they could do today or tomorrow.
- Prefer actions, commitmentDetected and sessionSuggestion cards.
`

// BuildSystemPrompt renders the coach's system instruction for mode, listing
// every card the app understands.
func BuildSystemPrompt(mode domain.InteractionMode) (string, error) {
	var cardList []map[string]string
	for _, info := range cards.Registry() {
		cardList = append(cardList, map[string]string{
			"type":    info.Type,
			"example": info.Example,
		})
	}

	out, err := mustache.Render(baseSystemPrompt, map[string]any{
		"cards":             cardList,
		"mode_instructions": modeInstructions(mode),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func modeInstructions(mode domain.InteractionMode) string {
	switch mode {
	case domain.ModeDeepDive:
		return deepDiveInstructions
	case domain.ModeActionPlan:
		return actionPlanInstructions
	case domain.ModeCheckIn:
		fallthrough
	default:
		return checkInInstructions
	}
}

// historyText renders the message content the model sees for m: the display
// text plus the state of cards the user already acted on.
func historyText(m *domain.Message) string {
	if !m.HasCards() {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(tokens.DisplayText(m.Content))
	for _, c := range cards.MaterializeAll(string(m.ID), m.Content) {
		if c.Confirmed() {
			fmt.Fprintf(&b, "\n(%s card %d: %s)", c.Type, c.Key.Index, c.State())
		}
	}
	return b.String()
}
