package wsbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/wlyh514/discord-llmvc-bot/runtime/identity"
)

// Roster is the set of participants announced by gateways. It resolves
// speaker identities for every bridged connection.
type Roster struct {
	mu      sync.RWMutex
	members map[string]identity.Participant
}

var _ identity.Resolver = (*Roster)(nil)

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[string]identity.Participant)}
}

// Update adds or replaces the given participants.
func (r *Roster) Update(participants []Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range participants {
		if p.ID == "" {
			continue
		}
		r.members[p.ID] = identity.Participant{ID: p.ID, Username: p.Username, Bot: p.Bot}
	}
}

// Resolve returns the participant announced under id.
func (r *Roster) Resolve(_ context.Context, id string) (identity.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[id]
	if !ok {
		return identity.Participant{}, fmt.Errorf("%w: %s", identity.ErrUnknownParticipant, id)
	}
	return p, nil
}

// Len returns the number of known participants.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
