package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"retail-backoffice/internal/domain"
	"retail-backoffice/internal/pricing"
	"retail-backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ValidationError reports an invalid field in an order request. It is
// recovered at the boundary and never leaves partial state behind.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LineInput is one requested product line. The unit price is caller
// supplied; the tax rate is read from the product at reconciliation time.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// OrderService is the order reconciliation engine. Every mutating
// operation computes totals, derives the order status, moves stock through
// the ledger, and persists the result as one failure-atomic unit.
type OrderService interface {
	CreateOrder(ctx context.Context, clientID uuid.UUID, lines []LineInput, amountPaid decimal.Decimal) (*domain.Order, error)
	UpdateOrder(ctx context.Context, orderID, clientID uuid.UUID, lines []LineInput, amountPaid decimal.Decimal) (*domain.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	RecordPayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
}

type orderService struct {
	txm      repository.TxManager
	orders   repository.OrderRepository
	products repository.ProductRepository
	clients  repository.ClientRepository
	payments repository.PaymentRepository
	logger   *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	txm repository.TxManager,
	orders repository.OrderRepository,
	products repository.ProductRepository,
	clients repository.ClientRepository,
	payments repository.PaymentRepository,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		txm:      txm,
		orders:   orders,
		products: products,
		clients:  clients,
		payments: payments,
		logger:   logger,
	}
}

// undoStack collects compensating actions built up as reservations succeed.
// It is run in reverse before returning any error, so the net stock effect
// of a failed reconciliation is zero even outside a real transaction (the
// enclosing transaction rollback covers the persisted side).
type undoStack []func(ctx context.Context)

func (u undoStack) run(ctx context.Context) {
	for i := len(u) - 1; i >= 0; i-- {
		u[i](ctx)
	}
}

// CreateOrder validates the request, prices the lines, reserves stock, and
// persists the order with its line snapshots in one transaction.
func (s *orderService) CreateOrder(ctx context.Context, clientID uuid.UUID, lines []LineInput, amountPaid decimal.Decimal) (*domain.Order, error) {
	if err := s.validateRequest(ctx, clientID, lines, amountPaid); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := s.txm.RunInTx(ctx, func(tx *sql.Tx) error {
		orders, products := s.orders.WithTx(tx), s.products.WithTx(tx)

		now := time.Now()
		orderID := uuid.New()

		snapshots, total, err := s.priceLines(ctx, products, orderID, lines)
		if err != nil {
			return err
		}

		var undo undoStack
		if err := s.reserveLines(ctx, products, snapshots, &undo); err != nil {
			return err
		}

		order = &domain.Order{
			ID:         orderID,
			ClientID:   clientID,
			Total:      total,
			AmountPaid: amountPaid,
			Status:     domain.DeriveStatus(amountPaid, total),
			Lines:      snapshots,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := orders.Create(ctx, order); err != nil {
			undo.run(ctx)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.Total.String()),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

// UpdateOrder replaces an order's line set. The old reservations are
// released first so the new list is checked against the restored baseline;
// if any new reservation fails, the old reservations are put back exactly.
func (s *orderService) UpdateOrder(ctx context.Context, orderID, clientID uuid.UUID, lines []LineInput, amountPaid decimal.Decimal) (*domain.Order, error) {
	if err := s.validateRequest(ctx, clientID, lines, amountPaid); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := s.txm.RunInTx(ctx, func(tx *sql.Tx) error {
		orders, products := s.orders.WithTx(tx), s.products.WithTx(tx)

		existing, err := orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		var undo undoStack

		// Restore the pre-update stock baseline. The compensating
		// re-reserve cannot run short: it only runs after every newer
		// reservation has been undone, which puts stock back at or above
		// this release's level.
		for _, old := range existing.Lines {
			if _, err := products.Release(ctx, old.ProductID, old.Quantity); err != nil {
				undo.run(ctx)
				return err
			}
			undo = append(undo, func(ctx context.Context) {
				if _, err := products.Reserve(ctx, old.ProductID, old.Quantity); err != nil {
					s.logger.Error("Failed to restore reservation during rollback",
						zap.String("product_id", old.ProductID.String()),
						zap.Error(err),
					)
				}
			})
		}

		snapshots, total, err := s.priceLines(ctx, products, orderID, lines)
		if err != nil {
			undo.run(ctx)
			return err
		}

		if err := s.reserveLines(ctx, products, snapshots, &undo); err != nil {
			return err
		}

		if err := orders.ReplaceLines(ctx, orderID, snapshots); err != nil {
			undo.run(ctx)
			return err
		}

		order = &domain.Order{
			ID:         orderID,
			ClientID:   clientID,
			Total:      total,
			AmountPaid: amountPaid,
			Status:     domain.DeriveStatus(amountPaid, total),
			Lines:      snapshots,
			CreatedAt:  existing.CreatedAt,
			UpdatedAt:  time.Now(),
		}
		if err := orders.UpdateHeader(ctx, order); err != nil {
			undo.run(ctx)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order updated",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.Total.String()),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

// DeleteOrder releases every reserved line and removes the order with its
// snapshots.
func (s *orderService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	err := s.txm.RunInTx(ctx, func(tx *sql.Tx) error {
		orders, products := s.orders.WithTx(tx), s.products.WithTx(tx)

		existing, err := orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		for _, line := range existing.Lines {
			if _, err := products.Release(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		return orders.Delete(ctx, orderID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Order deleted and stock restored", zap.String("order_id", orderID.String()))
	return nil
}

// MarkPaid settles the remaining balance: amount paid becomes the total,
// the status re-derives to paid, and the remainder is recorded as a full
// payment. No stock effect.
func (s *orderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.txm.RunInTx(ctx, func(tx *sql.Tx) error {
		orders, payments := s.orders.WithTx(tx), s.payments.WithTx(tx)

		existing, err := orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		remaining := existing.Total.Sub(existing.AmountPaid)

		existing.AmountPaid = existing.Total
		existing.Status = domain.DeriveStatus(existing.AmountPaid, existing.Total)
		existing.UpdatedAt = time.Now()
		if err := orders.UpdateHeader(ctx, existing); err != nil {
			return err
		}

		if remaining.IsPositive() {
			payment := &domain.Payment{
				ID:          uuid.New(),
				OrderID:     existing.ID,
				ClientID:    existing.ClientID,
				PaidOn:      time.Now(),
				Amount:      remaining,
				Method:      domain.PaymentCash,
				FullPayment: true,
				CreatedAt:   time.Now(),
			}
			if err := payments.Create(ctx, payment); err != nil {
				return err
			}
		}

		order = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order marked as paid", zap.String("order_id", order.ID.String()))
	return order, nil
}

// RecordPayment appends a payment to an order, raises the paid amount, and
// re-derives the status. No stock effect.
func (s *orderService) RecordPayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Order, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "payment amount must be greater than zero"}
	}
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer:
	default:
		return nil, &ValidationError{Field: "method", Message: "unknown payment method"}
	}

	var order *domain.Order
	err := s.txm.RunInTx(ctx, func(tx *sql.Tx) error {
		orders, payments := s.orders.WithTx(tx), s.payments.WithTx(tx)

		existing, err := orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		existing.AmountPaid = existing.AmountPaid.Add(amount)
		existing.Status = domain.DeriveStatus(existing.AmountPaid, existing.Total)
		existing.UpdatedAt = time.Now()
		if err := orders.UpdateHeader(ctx, existing); err != nil {
			return err
		}

		payment := &domain.Payment{
			ID:          uuid.New(),
			OrderID:     existing.ID,
			ClientID:    existing.ClientID,
			PaidOn:      time.Now(),
			Amount:      amount,
			Method:      method,
			FullPayment: existing.AmountPaid.GreaterThanOrEqual(existing.Total),
			CreatedAt:   time.Now(),
		}
		if err := payments.Create(ctx, payment); err != nil {
			return err
		}

		order = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("order_id", order.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

// GetOrder retrieves a committed order with its lines
func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// ListOrders retrieves all orders, newest first
func (s *orderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.List(ctx)
}

func (s *orderService) validateRequest(ctx context.Context, clientID uuid.UUID, lines []LineInput, amountPaid decimal.Decimal) error {
	exists, err := s.clients.Exists(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to check client: %w", err)
	}
	if !exists {
		return &ValidationError{Field: "client_id", Message: "client does not exist"}
	}

	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Message: "order must have at least one line"}
	}
	for i, line := range lines {
		if line.Quantity < 1 {
			return &ValidationError{
				Field:   fmt.Sprintf("lines[%d].quantity", i),
				Message: "quantity must be at least 1",
			}
		}
		if line.UnitPrice.IsNegative() {
			return &ValidationError{
				Field:   fmt.Sprintf("lines[%d].unit_price", i),
				Message: "unit price must not be negative",
			}
		}
	}

	if amountPaid.IsNegative() {
		return &ValidationError{Field: "amount_paid", Message: "amount paid must not be negative"}
	}

	return nil
}

// priceLines resolves each requested line against the catalog and freezes
// quantity, unit price, tax rate, and the computed amounts into snapshots.
func (s *orderService) priceLines(ctx context.Context, products repository.ProductRepository, orderID uuid.UUID, lines []LineInput) ([]domain.OrderLine, decimal.Decimal, error) {
	snapshots := make([]domain.OrderLine, 0, len(lines))
	total := decimal.Zero

	for i, line := range lines {
		product, err := products.FindByID(ctx, line.ProductID)
		if err != nil {
			if err == repository.ErrProductNotFound {
				return nil, decimal.Zero, &ValidationError{
					Field:   fmt.Sprintf("lines[%d].product_id", i),
					Message: "product does not exist",
				}
			}
			return nil, decimal.Zero, err
		}

		amounts := pricing.ComputeLine(line.UnitPrice, line.Quantity, product.TaxRate)
		snapshots = append(snapshots, domain.OrderLine{
			ID:           uuid.New(),
			OrderID:      orderID,
			ProductID:    product.ID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			TaxRate:      product.TaxRate,
			Subtotal:     amounts.Subtotal,
			TaxAmount:    amounts.TaxAmount,
			TotalWithTax: amounts.TotalWithTax,
		})
		total = total.Add(amounts.TotalWithTax)
	}

	return snapshots, total, nil
}

// reserveLines reserves stock for every snapshot. On the first failure it
// releases the reservations made in this call, runs any caller-provided
// undo stack, and returns the error so no partial effect remains.
func (s *orderService) reserveLines(ctx context.Context, products repository.ProductRepository, snapshots []domain.OrderLine, undo *undoStack) error {
	var local undoStack
	if undo != nil {
		local = *undo
	}

	for _, line := range snapshots {
		if _, err := products.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			local.run(ctx)
			return err
		}
		local = append(local, func(ctx context.Context) {
			if _, err := products.Release(ctx, line.ProductID, line.Quantity); err != nil {
				s.logger.Error("Failed to release reservation during rollback",
					zap.String("product_id", line.ProductID.String()),
					zap.Error(err),
				)
			}
		})
	}

	if undo != nil {
		*undo = local
	}
	return nil
}
