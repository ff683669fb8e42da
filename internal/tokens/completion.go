package tokens

import "strings"

// Completion is the content of a [finish-start] ... [finish-end] block.
type Completion struct {
	Components []Token `json:"components" yaml:"components"`
	Raw        string  `json:"raw" yaml:"raw"`
}

// Found reports whether the message carried a completion block.
func (c Completion) Found() bool {
	return c.Raw != "" || len(c.Components) > 0
}

// ExtractCompletion scans only the trimmed slice between the first [finish-start]
// and the first [finish-end]. A missing marker, or an end marker that comes first,
// yields an empty Completion.
func ExtractCompletion(text string) Completion {
	return Scanner{}.ExtractCompletion(text)
}

func (s Scanner) ExtractCompletion(text string) Completion {
	start := strings.Index(text, FinishStart)
	end := strings.Index(text, FinishEnd)
	if start < 0 || end < 0 || end < start {
		return Completion{}
	}

	raw := strings.TrimSpace(text[start+len(FinishStart) : end])
	return Completion{
		Components: s.Scan(raw),
		Raw:        raw,
	}
}

// HasFinishStart reports whether the coach has begun streaming a completion block.
func HasFinishStart(text string) bool {
	return strings.Contains(text, FinishStart)
}

// IsComplete reports whether text holds a terminated completion block.
func IsComplete(text string) bool {
	start := strings.Index(text, FinishStart)
	end := strings.Index(text, FinishEnd)
	return start >= 0 && end > start
}
