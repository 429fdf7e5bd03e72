package worker

import (
	"sync"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
)

// HistorySize is how many processed messages a Runner remembers.
const HistorySize = 100

// Processed records one handled delivery.
type Processed struct {
	ID          string        `json:"id"`
	Type        envelope.Type `json:"type"`
	ProcessedAt time.Time     `json:"processedAt"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

// history is a fixed-size ring buffer, newest entry last in the buffer.
type history struct {
	mu    sync.Mutex
	buf   []Processed
	next  int
	count int
}

func newHistory(size int) *history { return &history{buf: make([]Processed, size)} }

func (h *history) add(p Processed) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = p
	h.next = (h.next + 1) % len(h.buf)
	h.count = min(h.count+1, len(h.buf))
}

// recent returns up to n entries, newest first. n <= 0 returns everything.
func (h *history) recent(n int) []Processed {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > h.count {
		n = h.count
	}

	out := make([]Processed, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.buf[(h.next-i+len(h.buf))%len(h.buf)])
	}

	return out
}

func (h *history) clear() {
	h.mu.Lock()
	h.next, h.count = 0, 0
	h.mu.Unlock()
}
