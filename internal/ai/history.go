package ai

import (
	"strings"
	"sync"
)

// history: последние реплики ведущего, чтобы LLM не повторялся.
type history struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func newHistory(limit int) *history {
	limit = max(0, limit)
	return &history{lines: make([]string, 0, limit), limit: limit}
}

// add добавляет реплику; при переполнении остаются последние limit.
func (h *history) add(line string) {
	if h.limit == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > h.limit {
		h.lines = h.lines[len(h.lines)-h.limit:]
	}
}

// prompt: блок для запроса; пустой, пока истории нет.
func (h *history) prompt() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Lines you already said tonight (do not repeat them):")
	for _, l := range h.lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
	return b.String()
}
