package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-backoffice/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository persists order headers and their line snapshots. Line
// snapshots are only ever written as a whole set; ReplaceLines deletes the
// previous set and inserts the new one.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	UpdateHeader(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context) ([]*domain.Order, error)
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error

	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sql.Tx) OrderRepository
}

type orderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *sql.Tx) OrderRepository {
	return &orderRepository{db: tx}
}

// Create inserts an order header and its line snapshots
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, client_id, total, amount_paid, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.ClientID,
		order.Total,
		order.AmountPaid,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return r.insertLines(ctx, order.ID, order.Lines)
}

// UpdateHeader updates the mutable header columns of an order
func (r *orderRepository) UpdateHeader(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET client_id = $2, total = $3, amount_paid = $4, status = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.ClientID,
		order.Total,
		order.AmountPaid,
		order.Status,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// Delete removes an order; its line snapshots go with it via ON DELETE CASCADE
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// FindByID retrieves an order together with its line snapshots
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT id, client_id, total, amount_paid, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.ClientID,
		&order.Total,
		&order.AmountPaid,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	lines, err := r.findLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

// List retrieves all orders, newest first, without their lines
func (r *orderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT id, client_id, total, amount_paid, status, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		err := rows.Scan(
			&order.ID,
			&order.ClientID,
			&order.Total,
			&order.AmountPaid,
			&order.Status,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// ReplaceLines swaps the whole snapshot set of an order
func (r *orderRepository) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to delete order lines: %w", err)
	}
	return r.insertLines(ctx, orderID, lines)
}

func (r *orderRepository) insertLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error {
	query := `
		INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, tax_rate, subtotal, tax_amount, total_with_tax)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, line := range lines {
		_, err := r.db.ExecContext(
			ctx,
			query,
			line.ID,
			orderID,
			line.ProductID,
			line.Quantity,
			line.UnitPrice,
			line.TaxRate,
			line.Subtotal,
			line.TaxAmount,
			line.TotalWithTax,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) findLines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price, tax_rate, subtotal, tax_amount, total_with_tax
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		line := domain.OrderLine{}
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPrice,
			&line.TaxRate,
			&line.Subtotal,
			&line.TaxAmount,
			&line.TotalWithTax,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order lines: %w", err)
	}

	return lines, nil
}
