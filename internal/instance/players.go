package instance

import (
	"sort"
	"sync"
)

// PresenceSet tracks which players are online right now. It grows only on
// join events, shrinks only on leave events, and is cleared on shutdown.
type PresenceSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{names: make(map[string]struct{})}
}

// Add records a player as online. Adding an already-present name is a no-op.
// Returns true if the set changed.
func (p *PresenceSet) Add(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.names[name]; ok {
		return false
	}
	p.names[name] = struct{}{}
	return true
}

// Remove records a player as offline. Removing an absent name is a no-op.
// Returns true if the set changed.
func (p *PresenceSet) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.names[name]; !ok {
		return false
	}
	delete(p.names, name)
	return true
}

// Count returns the number of online players.
func (p *PresenceSet) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}

// List returns the online player names, sorted.
func (p *PresenceSet) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.names))
	for name := range p.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clear empties the set.
func (p *PresenceSet) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = make(map[string]struct{})
}
