package access

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
)

func newTestGate(t *testing.T) (*Gate, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewGate(mockDB, logrus.New()), mock
}

func TestCheckExplicitGrantWins(t *testing.T) {
	g, mock := newTestGate(t)

	mock.ExpectQuery("SELECT has_access FROM dm_access").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}).AddRow(true))

	d, err := g.Check(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !d.HasAccess || d.RequiredFeeCents != 0 {
		t.Errorf("decision = %+v, want granted with no fee", d)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckFallsBackToRecipientPolicyPaid(t *testing.T) {
	g, mock := newTestGate(t)

	mock.ExpectQuery("SELECT has_access FROM dm_access").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectQuery("SELECT dm_payment_required, dm_fee_cents FROM accounts").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"dm_payment_required", "dm_fee_cents"}).AddRow(true, int64(2000)))

	d, err := g.Check(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.HasAccess || d.RequiredFeeCents != 2000 {
		t.Errorf("decision = %+v, want denied with fee 2000", d)
	}
}

func TestCheckFallsBackToRecipientPolicyFree(t *testing.T) {
	g, mock := newTestGate(t)

	mock.ExpectQuery("SELECT has_access FROM dm_access").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectQuery("SELECT dm_payment_required, dm_fee_cents FROM accounts").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"dm_payment_required", "dm_fee_cents"}).AddRow(false, int64(0)))

	d, err := g.Check(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !d.HasAccess {
		t.Errorf("decision = %+v, want granted", d)
	}
}

func TestCheckRevokedGrantStillConsultsPolicy(t *testing.T) {
	g, mock := newTestGate(t)

	mock.ExpectQuery("SELECT has_access FROM dm_access").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}).AddRow(false))
	mock.ExpectQuery("SELECT dm_payment_required, dm_fee_cents FROM accounts").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"dm_payment_required", "dm_fee_cents"}).AddRow(true, int64(500)))

	d, err := g.Check(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.HasAccess || d.RequiredFeeCents != 500 {
		t.Errorf("decision = %+v, want denied with fee 500", d)
	}
}

func TestCheckUnknownRecipient(t *testing.T) {
	g, mock := newTestGate(t)

	mock.ExpectQuery("SELECT has_access FROM dm_access").
		WithArgs("u1", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectQuery("SELECT dm_payment_required, dm_fee_cents FROM accounts").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"dm_payment_required"}))

	if _, err := g.Check(context.Background(), "u1", "ghost"); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("err = %v, want ErrRecipientNotFound", err)
	}
}

func TestCheckSelfMessagingAlwaysAllowed(t *testing.T) {
	g, _ := newTestGate(t)

	d, err := g.Check(context.Background(), "u1", "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !d.HasAccess {
		t.Error("self messaging should be allowed")
	}
}
