// Package ledger moves balance between accounts for priced actions. Every
// charge runs inside a single database transaction: idempotency check,
// debit, credit, and grant upsert either all apply or none do.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/models"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSelfCharge          = errors.New("payer and payee must differ")
	ErrUnknownTxType       = errors.New("unknown transaction type")
)

// ChargeParams describes one priced action.
type ChargeParams struct {
	PayerID     string
	PayeeID     string
	AmountCents int64
	TxType      string
	ReferenceID string
	// PostID is recorded on the access grant for content unlocks.
	PostID *string
	// Tier and PeriodDays apply to subscription charges.
	Tier       string
	PeriodDays int
}

// ChargeResult reports the outcome of a charge.
type ChargeResult struct {
	Success        bool
	AlreadyApplied bool
	FeeCents       int64
	NetCents       int64
}

// Coordinator applies charges against the wallet ledger.
type Coordinator struct {
	db     *sql.DB
	logger logging.Logger
}

// NewCoordinator creates a ledger coordinator.
func NewCoordinator(db *sql.DB, logger logging.Logger) *Coordinator {
	return &Coordinator{db: db, logger: logger}
}

// Charge debits the payer by AmountCents, credits the payee with the net
// after the platform fee, records the ledger row, and upserts the grant for
// the reference type. At most one charge applies per (payer, payee, type,
// reference) tuple; replays return AlreadyApplied with balances untouched.
func (c *Coordinator) Charge(ctx context.Context, p ChargeParams) (ChargeResult, error) {
	if p.AmountCents <= 0 {
		return ChargeResult{}, ErrInvalidAmount
	}
	if p.PayerID == p.PayeeID {
		return ChargeResult{}, ErrSelfCharge
	}
	switch p.TxType {
	case models.TxTypeDMAccess, models.TxTypeContentUnlock, models.TxTypeSubscription:
	default:
		return ChargeResult{}, fmt.Errorf("%w: %s", ErrUnknownTxType, p.TxType)
	}

	feeCents := models.FeeCents(p.AmountCents)
	netCents := p.AmountCents - feeCents

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("begin charge transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	// The unique index on (payer, payee, type, reference) is the idempotency
	// key; xmax = 0 distinguishes a fresh insert from a conflicting replay.
	// The RETURNING values come from the stored row, so a replay reports the
	// figures of the charge that actually applied, not the request's.
	var inserted bool
	var storedAmount, storedFee int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO monetization_transactions (payer_id, payee_id, tx_type, amount_cents, fee_cents, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payer_id, payee_id, tx_type, reference_id) DO UPDATE
		SET amount_cents = monetization_transactions.amount_cents
		RETURNING (xmax = 0) AS inserted, amount_cents, fee_cents
	`, p.PayerID, p.PayeeID, p.TxType, p.AmountCents, feeCents, p.ReferenceID).Scan(&inserted, &storedAmount, &storedFee)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("record ledger entry: %w", err)
	}

	if !inserted {
		if err := tx.Commit(); err != nil {
			return ChargeResult{}, fmt.Errorf("commit idempotent replay: %w", err)
		}
		c.logger.WithFields(logging.Fields{
			"payer_id":     p.PayerID,
			"payee_id":     p.PayeeID,
			"tx_type":      p.TxType,
			"reference_id": p.ReferenceID,
		}).Info("Charge already applied, skipping")
		return ChargeResult{Success: true, AlreadyApplied: true, FeeCents: storedFee, NetCents: storedAmount - storedFee}, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance_cents = balance_cents - $1, updated_at = NOW()
		WHERE id = $2 AND balance_cents >= $1
	`, p.AmountCents, p.PayerID)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("debit payer: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, p.PayerID).Scan(&exists); err != nil {
			return ChargeResult{}, fmt.Errorf("check payer account: %w", err)
		}
		if !exists {
			return ChargeResult{}, ErrAccountNotFound
		}
		return ChargeResult{}, ErrInsufficientBalance
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance_cents = balance_cents + $1,
		    total_earned_cents = total_earned_cents + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, netCents, p.PayeeID)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("credit payee: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ChargeResult{}, ErrAccountNotFound
	}

	if err := c.upsertGrant(ctx, tx, p); err != nil {
		return ChargeResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return ChargeResult{}, fmt.Errorf("commit charge: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"payer_id":     p.PayerID,
		"payee_id":     p.PayeeID,
		"tx_type":      p.TxType,
		"amount_cents": p.AmountCents,
		"fee_cents":    feeCents,
		"reference_id": p.ReferenceID,
	}).Info("Charge applied")

	return ChargeResult{Success: true, FeeCents: feeCents, NetCents: netCents}, nil
}

func (c *Coordinator) upsertGrant(ctx context.Context, tx *sql.Tx, p ChargeParams) error {
	switch p.TxType {
	case models.TxTypeDMAccess, models.TxTypeContentUnlock:
		// Access is sticky: a later price change on the recipient side does
		// not revoke an existing grant.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dm_access (from_id, to_id, has_access, paid_cents, post_id)
			VALUES ($1, $2, TRUE, $3, $4)
			ON CONFLICT (from_id, to_id) DO UPDATE
			SET has_access = TRUE,
			    paid_cents = EXCLUDED.paid_cents,
			    post_id = COALESCE(EXCLUDED.post_id, dm_access.post_id),
			    updated_at = NOW()
		`, p.PayerID, p.PayeeID, p.AmountCents, p.PostID)
		if err != nil {
			return fmt.Errorf("upsert access grant: %w", err)
		}
	case models.TxTypeSubscription:
		period := p.PeriodDays
		if period <= 0 {
			period = 30
		}
		// Renewals extend the existing row rather than creating a second one.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (subscriber_id, creator_id, amount_cents, tier, starts_at, ends_at, active)
			VALUES ($1, $2, $3, $4, NOW(), NOW() + $5 * INTERVAL '1 day', TRUE)
			ON CONFLICT (subscriber_id, creator_id) DO UPDATE
			SET amount_cents = EXCLUDED.amount_cents,
			    tier = EXCLUDED.tier,
			    ends_at = GREATEST(subscriptions.ends_at, NOW()) + $5 * INTERVAL '1 day',
			    active = TRUE,
			    updated_at = NOW()
		`, p.PayerID, p.PayeeID, p.AmountCents, p.Tier, period)
		if err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}
	}
	return nil
}
