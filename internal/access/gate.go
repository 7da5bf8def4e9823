// Package access decides whether a sender may message a recipient or must
// first pay the recipient's DM fee.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paypadm/core/pkg/logging"
)

var ErrRecipientNotFound = errors.New("recipient account not found")

// Decision is the outcome of an access check.
type Decision struct {
	HasAccess        bool
	RequiredFeeCents int64
}

// Gate evaluates messaging access between account pairs.
type Gate struct {
	db     *sql.DB
	logger logging.Logger
}

// NewGate creates an access gate.
func NewGate(db *sql.DB, logger logging.Logger) *Gate {
	return &Gate{db: db, logger: logger}
}

// Check reports whether from may message to. An explicit grant takes
// precedence over the recipient's current policy, so a grant bought at an
// old price survives a later fee change. Without a grant the recipient's
// policy decides: payment required means denied with the current fee.
func (g *Gate) Check(ctx context.Context, fromID, toID string) (Decision, error) {
	if fromID == toID {
		return Decision{HasAccess: true}, nil
	}

	var hasAccess bool
	err := g.db.QueryRowContext(ctx, `
		SELECT has_access FROM dm_access WHERE from_id = $1 AND to_id = $2
	`, fromID, toID).Scan(&hasAccess)
	if err == nil && hasAccess {
		return Decision{HasAccess: true}, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Decision{}, fmt.Errorf("query access grant: %w", err)
	}

	var paymentRequired bool
	var feeCents int64
	err = g.db.QueryRowContext(ctx, `
		SELECT dm_payment_required, dm_fee_cents FROM accounts WHERE id = $1
	`, toID).Scan(&paymentRequired, &feeCents)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, ErrRecipientNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("query recipient policy: %w", err)
	}

	if paymentRequired {
		return Decision{HasAccess: false, RequiredFeeCents: feeCents}, nil
	}
	return Decision{HasAccess: true}, nil
}
