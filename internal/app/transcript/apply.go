package transcript

import (
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

// ApplyCardStateChange returns messages with one card's token rewritten. The
// changed message is copied; every other element is shared with the input.
// User messages, unknown message IDs and out-of-range occurrences leave the
// list as it was.
func ApplyCardStateChange(
	messages []*domain.Message,
	messageID domain.MessageID,
	typ string,
	index int,
	newState string,
	extra ...tokens.Pair,
) []*domain.Message {
	out := make([]*domain.Message, len(messages))
	copy(out, messages)

	msg, i := domain.FindMessage(out, messageID)
	if msg == nil || !msg.HasCards() {
		return out
	}

	content := tokens.Mutate(msg.Content, typ, index, newState, extra...)
	if content == msg.Content {
		return out
	}

	cp := msg.Clone()
	cp.Content = content
	out[i] = cp
	return out
}
