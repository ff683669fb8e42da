package tokens

import (
	"regexp"
	"strings"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// DisplayText derives the text a chat bubble shows: the completion block and
// every well-formed token are removed, runs of blank lines collapse to one and
// the result is trimmed. An unterminated [finish-start] truncates the text since
// the rest has not streamed yet. Partial token syntax stays literal.
//
// The rules are applied until the text stops changing, so
// DisplayText(DisplayText(x)) == DisplayText(x).
func DisplayText(text string) string {
	out := sanitize(text)
	for {
		next := sanitize(out)
		if next == out {
			return out
		}
		out = next
	}
}

// sanitize never lengthens its input unless it is already a fixed point, which
// bounds the loop in DisplayText.
func sanitize(text string) string {
	start := strings.Index(text, FinishStart)
	end := strings.Index(text, FinishEnd)

	switch {
	case start >= 0 && end > start:
		before := strings.TrimSpace(text[:start])
		after := strings.TrimSpace(text[end+len(FinishEnd):])
		switch {
		case before != "" && after != "":
			text = before + "\n\n" + after
		case before != "":
			text = before
		default:
			text = after
		}
	case start >= 0:
		text = text[:start]
	}

	text = strings.ReplaceAll(text, FinishEnd, "")
	text = tokenPattern.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
