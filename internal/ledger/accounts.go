package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paypadm/core/pkg/models"
)

// Balance returns the wallet state of one account.
func (c *Coordinator) Balance(ctx context.Context, accountID string) (models.Account, error) {
	var acct models.Account
	err := c.db.QueryRowContext(ctx, `
		SELECT id, username, balance_cents, total_earned_cents, dm_fee_cents, dm_payment_required
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&acct.ID, &acct.Username, &acct.BalanceCents,
		&acct.TotalEarnedCents, &acct.DMFeeCents, &acct.DMPaymentRequired)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("query account: %w", err)
	}
	return acct, nil
}

// CreateAccount provisions an account row and returns its id.
func (c *Coordinator) CreateAccount(ctx context.Context, username, displayName string, balanceCents, dmFeeCents int64, dmPaymentRequired bool) (string, error) {
	if balanceCents < 0 {
		return "", ErrInvalidAmount
	}
	var id string
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO accounts (username, display_name, balance_cents, dm_fee_cents, dm_payment_required)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, username, displayName, balanceCents, dmFeeCents, dmPaymentRequired).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	return id, nil
}

// Credit tops up an account balance outside the charge path (ops and test
// rail, not part of monetized flows).
func (c *Coordinator) Credit(ctx context.Context, accountID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	var newBalance int64
	err := c.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance_cents = balance_cents + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance_cents
	`, amountCents, accountID).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	return newBalance, nil
}
