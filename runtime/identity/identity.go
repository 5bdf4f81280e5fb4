// Package identity classifies voice participants as humans or automated
// accounts and provides their display names for transcripts.
package identity

import (
	"context"
	"errors"
)

// ErrUnknownParticipant is returned when the transport has no record of a
// participant id.
var ErrUnknownParticipant = errors.New("unknown participant")

// Participant describes a voice channel member.
type Participant struct {
	ID       string
	Username string
	Bot      bool
}

// Resolver looks up a participant by id. Lookups may take a network round
// trip and must honor context cancellation.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Participant, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id string) (Participant, error)

// Resolve calls f(ctx, id).
func (f ResolverFunc) Resolve(ctx context.Context, id string) (Participant, error) {
	return f(ctx, id)
}

// Static is a fixed in-memory roster, mostly useful in tests.
type Static map[string]Participant

// Resolve returns the roster entry for id.
func (s Static) Resolve(_ context.Context, id string) (Participant, error) {
	p, ok := s[id]
	if !ok {
		return Participant{}, ErrUnknownParticipant
	}
	return p, nil
}
