// Package conversation derives stable conversation identities from
// participant pairs. The derivation is pure: no clock, no randomness, no
// I/O, so any two processes resolving the same pair get the same id and
// creation converges on one row via upsert-on-conflict.
package conversation

import (
	"errors"

	"github.com/google/uuid"
)

// Namespace for derived conversation ids. Fixed forever; changing it would
// orphan every existing conversation.
var namespace = uuid.MustParse("b1c52c8e-6f3a-4a9b-9d1e-52a04fbe77d3")

var ErrSameParticipant = errors.New("conversation requires two distinct participants")

// Identity is the canonical identity of a conversation between two accounts.
// Initiator is always the lexicographically smaller raw identifier.
type Identity struct {
	ConversationID string
	InitiatorID    string
	RecipientID    string
}

// Resolve derives the conversation identity for an unordered participant
// pair. Resolve(a, b) == Resolve(b, a) for all a, b.
func Resolve(a, b string) (Identity, error) {
	if a == b {
		return Identity{}, ErrSameParticipant
	}

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	id := uuid.NewSHA1(namespace, []byte(lo+":"+hi))

	return Identity{
		ConversationID: id.String(),
		InitiatorID:    lo,
		RecipientID:    hi,
	}, nil
}

// Counterpart returns the other participant of a resolved identity.
func (i Identity) Counterpart(userID string) (string, bool) {
	switch userID {
	case i.InitiatorID:
		return i.RecipientID, true
	case i.RecipientID:
		return i.InitiatorID, true
	default:
		return "", false
	}
}
