package transcript

import (
	"sync"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

// SaveGuard marks users with a transcript save in flight. It is a set, not a
// queue: a second save for the same user is refused rather than waiting.
type SaveGuard struct {
	mu     sync.Mutex
	active map[domain.UserID]struct{}
}

func NewSaveGuard() *SaveGuard {
	return &SaveGuard{active: make(map[domain.UserID]struct{})}
}

// TryAcquire marks userID busy and reports whether it was free.
func (g *SaveGuard) TryAcquire(userID domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[userID]; busy {
		return false
	}
	g.active[userID] = struct{}{}
	return true
}

func (g *SaveGuard) Release(userID domain.UserID) {
	g.mu.Lock()
	delete(g.active, userID)
	g.mu.Unlock()
}

func (g *SaveGuard) Active(userID domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[userID]
	return busy
}
