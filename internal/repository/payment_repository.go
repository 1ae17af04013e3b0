package repository

import (
	"context"
	"database/sql"
	"fmt"

	"retail-backoffice/internal/domain"

	"github.com/google/uuid"
)

// PaymentRepository persists the payment records appended to an order
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)

	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sql.Tx) PaymentRepository
}

type paymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new instance of PaymentRepository
func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *sql.Tx) PaymentRepository {
	return &paymentRepository{db: tx}
}

// Create inserts a payment record
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, client_id, paid_on, amount, method, full_payment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		payment.ID,
		payment.OrderID,
		payment.ClientID,
		payment.PaidOn,
		payment.Amount,
		payment.Method,
		payment.FullPayment,
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// ListByOrder retrieves the payments applied to an order, oldest first
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	query := `
		SELECT id, order_id, client_id, paid_on, amount, method, full_payment, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []*domain.Payment{}
	for rows.Next() {
		payment := &domain.Payment{}
		err := rows.Scan(
			&payment.ID,
			&payment.OrderID,
			&payment.ClientID,
			&payment.PaidOn,
			&payment.Amount,
			&payment.Method,
			&payment.FullPayment,
			&payment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}
