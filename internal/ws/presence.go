package ws

import (
	"sort"
	"strconv"
	"sync"
)

// Transition is the externally observable effect of a connect or disconnect.
// Only the 0<->1 boundary crossings of a user's live-connection count are
// visible outside the registry; extra tabs and devices stay silent.
type Transition int

const (
	StillOffline Transition = iota
	BecameOnline
	StillOnline
	BecameOffline
)

func (t Transition) String() string {
	switch t {
	case BecameOnline:
		return "became_online"
	case StillOnline:
		return "still_online"
	case BecameOffline:
		return "became_offline"
	default:
		return "still_offline"
	}
}

// Presence tracks live-connection counts per user. It is process-scoped
// state created at startup and injected wherever needed; it is never
// persisted, so after a restart everyone appears offline until they
// reconnect. An entry is removed when its count reaches zero, which keeps
// the key set equal to the online-user set at all times.
type Presence struct {
	mu     sync.Mutex
	counts map[int]int
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{counts: make(map[int]int)}
}

// Register counts a new live connection for the user.
func (p *Presence) Register(userID int) Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	if p.counts[userID] == 1 {
		return BecameOnline
	}
	return StillOnline
}

// Deregister counts a closed connection for the user.
func (p *Presence) Deregister(userID int) Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	count, ok := p.counts[userID]
	if !ok {
		return StillOffline
	}
	if count <= 1 {
		delete(p.counts, userID)
		return BecameOffline
	}
	p.counts[userID] = count - 1
	return StillOnline
}

// Online reports whether the user has at least one live connection.
func (p *Presence) Online(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0
}

// Count returns the number of distinct online users.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}

// Snapshot returns the online-user set as sorted, string-normalized ids,
// ready for an "online users" roster broadcast.
func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	ids := make([]int, 0, len(p.counts))
	for id := range p.counts {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}
