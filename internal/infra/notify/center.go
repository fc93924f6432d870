package notify

import (
	"log"
	"sync"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// Notice is one user-visible message kept for the extension to poll.
type Notice struct {
	ID      int64          `json:"id"`
	Level   analysis.Level `json:"level"`
	Message string         `json:"message"`
	At      time.Time      `json:"at"`
}

// Center is a bounded ring of recent notices. The daemon cannot pop up
// editor toasts itself; it logs every notice and keeps the tail so the
// extension surfaces retry waits and quota errors to the user.
type Center struct {
	mu    sync.Mutex
	next  int64
	items []Notice
	cap   int
}

func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = 100
	}
	return &Center{cap: capacity}
}

func (c *Center) Notify(level analysis.Level, message string) {
	log.Printf("notice level=%s msg=%q", level, message)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.items = append(c.items, Notice{ID: c.next, Level: level, Message: message, At: time.Now()})
	if len(c.items) > c.cap {
		c.items = c.items[len(c.items)-c.cap:]
	}
}

// Since returns notices with ID greater than afterID, oldest first.
func (c *Center) Since(afterID int64) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notice
	for _, n := range c.items {
		if n.ID > afterID {
			out = append(out, n)
		}
	}
	return out
}
