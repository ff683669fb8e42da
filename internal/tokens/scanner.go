// Package tokens implements the inline card token protocol the coach emits in
// its replies:
//
//	[type:key1="value1",key2="value2"]
//
// plus the [finish-start] ... [finish-end] completion block. Every function in
// this package is pure and never panics on malformed input: bad syntax is
// skipped and left as literal text.
package tokens

import (
	"regexp"
	"strings"

	"github.com/PabloGalante/farum-coach/internal/observability"
)

const (
	FinishStart = "[finish-start]"
	FinishEnd   = "[finish-end]"

	// StateKey is the property carrying a card's interaction state.
	StateKey = "state"

	DefaultMaxTokens = 50
	DefaultMaxProps  = 20
)

var (
	tokenPattern = regexp.MustCompile(`\[(\w+)\s*:\s*((?:\w+\s*=\s*"[^"]*"\s*,?\s*)+)\]`)
	propPattern  = regexp.MustCompile(`(\w+)\s*=\s*"([^"]*)"`)
	keyPattern   = regexp.MustCompile(`^\w+$`)
)

// Token is one occurrence of a token in a text.
type Token struct {
	Type  string `json:"type" yaml:"type"`
	Props *Props `json:"props" yaml:"props"`
	// Index is the zero-based rank among tokens of the same Type.
	Index int `json:"index" yaml:"index"`
	// Start and End are byte offsets of Raw in the scanned text.
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
	Raw   string `json:"raw" yaml:"raw"`
}

// Scanner finds tokens with explicit ceilings. The zero value uses the defaults.
type Scanner struct {
	MaxTokens int
	MaxProps  int
}

// Scan runs the default Scanner over text.
func Scan(text string) []Token {
	return Scanner{}.Scan(text)
}

// Scan returns every well-formed token in text, left to right and non-overlapping.
// Tokens beyond MaxTokens and properties beyond MaxProps are dropped with a warning.
func (s Scanner) Scan(text string) []Token {
	maxTokens, maxProps := s.limits()

	matches := tokenPattern.FindAllStringSubmatchIndex(text, maxTokens+1)
	if len(matches) > maxTokens {
		observability.Logger().Warn("token ceiling reached, dropping remaining tokens",
			"limit", maxTokens)
		matches = matches[:maxTokens]
	}

	counts := make(map[string]int)
	out := make([]Token, 0, len(matches))
	for _, m := range matches {
		typ := text[m[2]:m[3]]
		out = append(out, Token{
			Type:  typ,
			Props: parseProps(text[m[4]:m[5]], typ, maxProps),
			Index: counts[typ],
			Start: m[0],
			End:   m[1],
			Raw:   text[m[0]:m[1]],
		})
		counts[typ]++
	}
	return out
}

func (s Scanner) limits() (int, int) {
	maxTokens, maxProps := s.MaxTokens, s.MaxProps
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxProps <= 0 {
		maxProps = DefaultMaxProps
	}
	return maxTokens, maxProps
}

// parseProps reads a token's property list. A negative maxProps reads every
// property.
func parseProps(list, typ string, maxProps int) *Props {
	n := -1
	if maxProps >= 0 {
		n = maxProps + 1
	}
	found := propPattern.FindAllStringSubmatch(list, n)
	if maxProps >= 0 && len(found) > maxProps {
		observability.Logger().Warn("property ceiling reached, dropping remaining properties",
			"type", typ, "limit", maxProps)
		found = found[:maxProps]
	}
	props := NewProps()
	for _, f := range found {
		props.Set(f[1], f[2])
	}
	return props
}

// Parse returns the body tokens of a message: tokens inside the completion block,
// or after an unterminated [finish-start], are left out. Occurrence indices are
// counted over the body only, which is how cards and mutations address tokens.
func Parse(content string) []Token {
	return Scanner{}.Parse(content)
}

func (s Scanner) Parse(content string) []Token {
	all := s.Scan(content)
	from, to, ok := blockSpan(content)
	if !ok {
		return all
	}

	counts := make(map[string]int)
	out := make([]Token, 0, len(all))
	for _, tok := range all {
		if tok.Start < to && tok.End > from {
			continue
		}
		tok.Index = counts[tok.Type]
		counts[tok.Type]++
		out = append(out, tok)
	}
	return out
}

// OfType filters toks down to a single type, keeping order.
func OfType(toks []Token, typ string) []Token {
	var out []Token
	for _, tok := range toks {
		if tok.Type == typ {
			out = append(out, tok)
		}
	}
	return out
}

// blockSpan returns the byte range hidden from the body: the whole completion
// block, or everything from an unterminated [finish-start] to the end.
func blockSpan(text string) (int, int, bool) {
	start := strings.Index(text, FinishStart)
	if start < 0 {
		return 0, 0, false
	}
	if end := strings.Index(text, FinishEnd); end > start {
		return start, end + len(FinishEnd), true
	}
	return start, len(text), true
}
