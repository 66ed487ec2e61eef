package client

import (
	"sync"

	"github.com/google/uuid"

	"messenger-service/internal/models"
)

// Pending tracks optimistic sends. A message rendered before the server acks
// it is keyed by a client-generated temporary id; the ack resolves it, a
// failed send rolls it back. Either way the entry is consumed exactly once.
type Pending struct {
	mu     sync.Mutex
	byTemp map[string]models.Message
}

// NewPending returns an empty table.
func NewPending() *Pending {
	return &Pending{byTemp: map[string]models.Message{}}
}

// Add stores an optimistic message and returns its temporary id.
func (p *Pending) Add(message models.Message) string {
	tempID := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTemp[tempID] = message
	return tempID
}

// Resolve consumes a pending entry after the server acked the send. The
// second return is false when the id is unknown or already consumed.
func (p *Pending) Resolve(tempID string) (models.Message, bool) {
	return p.take(tempID)
}

// Rollback consumes a pending entry after a failed send so the caller can
// un-render it.
func (p *Pending) Rollback(tempID string) (models.Message, bool) {
	return p.take(tempID)
}

// Len returns the number of in-flight sends.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byTemp)
}

func (p *Pending) take(tempID string) (models.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	message, ok := p.byTemp[tempID]
	if ok {
		delete(p.byTemp, tempID)
	}
	return message, ok
}
