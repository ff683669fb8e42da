package tokens

import (
	"strings"
	"sync"
)

// Snapshot is the parsed view of a partially streamed reply.
type Snapshot struct {
	Text          string  `json:"-"`
	Display       string  `json:"display_text"`
	Tokens        []Token `json:"tokens"`
	FinishStarted bool    `json:"finish_started"`
	Complete      bool    `json:"complete"`
}

// Accumulator collects streamed chunks of one reply. After Close further writes
// are ignored, which is how an aborted stream stops accumulating.
type Accumulator struct {
	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Write appends chunk and reports whether it was accepted.
func (a *Accumulator) Write(chunk string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.buf.WriteString(chunk)
	return true
}

func (a *Accumulator) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func (a *Accumulator) Snapshot() Snapshot {
	text := a.Text()
	return Snapshot{
		Text:          text,
		Display:       DisplayText(text),
		Tokens:        Parse(text),
		FinishStarted: HasFinishStart(text),
		Complete:      IsComplete(text),
	}
}
