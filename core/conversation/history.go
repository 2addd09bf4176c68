package conversation

import (
	"strings"
	"sync"

	"github.com/siherrmann/ragbot/model"
)

// History is the in memory log of conversation turns. It is never trimmed
// and is lost on restart.
type History struct {
	mu    sync.Mutex
	turns []model.Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{turns: []model.Turn{}}
}

// Append adds a turn at the end.
func (h *History) Append(turn model.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Turns returns a copy of all turns in order.
func (h *History) Turns() []model.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := make([]model.Turn, len(h.turns))
	copy(turns, h.turns)
	return turns
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Render formats the turns as "Human:" and assistant lines.
func (h *History) Render(assistant string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	for i, t := range h.turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: ")
		b.WriteString(t.Human)
		b.WriteString("\n")
		b.WriteString(assistant)
		b.WriteString(": ")
		b.WriteString(t.Assistant)
	}
	return b.String()
}
