// Package loyalty owns the customer points ledger. Balance adjustments are
// serialized per customer with a row lock so concurrent triggers targeting
// the same customer cannot produce lost updates.
package loyalty

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Ledger appends loyalty transactions and maintains the customer balance.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Adjust applies balance += delta inside one transaction. A debit that would
// drive the balance negative fails with InsufficientBalance and leaves both
// the balance and the ledger unchanged.
func (l *Ledger) Adjust(ctx context.Context, customerID uuid.UUID, delta int, reason string, ruleID *uuid.UUID) (newBalance int, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.NewStoreError("loyalty.begin", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT loyalty_points FROM store_customers WHERE id = $1 FOR UPDATE`,
		customerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, domain.NewNotFound("customer", customerID.String())
	}
	if err != nil {
		return 0, domain.NewStoreError("loyalty.lock", err)
	}

	newBalance = balance + delta
	if newBalance < 0 {
		return balance, &domain.InsufficientBalanceError{
			CustomerID: customerID.String(),
			Balance:    balance,
			Requested:  delta,
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE store_customers SET loyalty_points = $2 WHERE id = $1`,
		customerID, newBalance); err != nil {
		return balance, domain.NewStoreError("loyalty.update", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, points_delta, balance_after, reason, rule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New(), customerID, delta, newBalance, reason, ruleID); err != nil {
		return balance, domain.NewStoreError("loyalty.append", err)
	}

	if err := tx.Commit(); err != nil {
		return balance, domain.NewStoreError("loyalty.commit", err)
	}
	return newBalance, nil
}

// Balance returns the current points balance for a customer.
func (l *Ledger) Balance(ctx context.Context, customerID uuid.UUID) (int, error) {
	var balance int
	err := l.db.QueryRowContext(ctx,
		`SELECT loyalty_points FROM store_customers WHERE id = $1`, customerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, domain.NewNotFound("customer", customerID.String())
	}
	if err != nil {
		return 0, domain.NewStoreError("loyalty.balance", err)
	}
	return balance, nil
}
