package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBalanceReturnsAccount(t *testing.T) {
	c, mock := newTestCoordinator(t)

	rows := sqlmock.NewRows([]string{"id", "username", "balance_cents", "total_earned_cents", "dm_fee_cents", "dm_payment_required"}).
		AddRow("acct-1", "alice", int64(8000), int64(1700), int64(2000), true)
	mock.ExpectQuery("SELECT id, username, balance_cents").
		WithArgs("acct-1").
		WillReturnRows(rows)

	acct, err := c.Balance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if acct.BalanceCents != 8000 || acct.TotalEarnedCents != 1700 {
		t.Errorf("balance/earned = %d/%d, want 8000/1700", acct.BalanceCents, acct.TotalEarnedCents)
	}
}

func TestBalanceUnknownAccount(t *testing.T) {
	c, mock := newTestCoordinator(t)

	mock.ExpectQuery("SELECT id, username, balance_cents").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := c.Balance(context.Background(), "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestCreditTopsUpBalance(t *testing.T) {
	c, mock := newTestCoordinator(t)

	mock.ExpectQuery("UPDATE accounts").
		WithArgs(int64(500), "acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(10500)))

	newBalance, err := c.Credit(context.Background(), "acct-1", 500)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if newBalance != 10500 {
		t.Errorf("balance = %d, want 10500", newBalance)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := c.Credit(context.Background(), "acct-1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestCreateAccountReturnsID(t *testing.T) {
	c, mock := newTestCoordinator(t)

	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("alice", "Alice", int64(10000), int64(2000), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acct-1"))

	id, err := c.CreateAccount(context.Background(), "alice", "Alice", 10000, 2000, true)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id != "acct-1" {
		t.Errorf("id = %q, want acct-1", id)
	}
}
