package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is always derived from (amount paid, total); it is never set
// independently.
type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusPartiallyPaid OrderStatus = "partially_paid"
	StatusPaid          OrderStatus = "paid"

	// StatusCancelled exists in the schema enum but no operation produces
	// it. Kept so stored values round-trip.
	StatusCancelled OrderStatus = "cancelled"
)

// DeriveStatus computes the order status from the paid amount and the
// order total.
func DeriveStatus(paid, total decimal.Decimal) OrderStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

// Order is the committed result of a reconciliation. Total and Status are
// derived; every write replaces the whole line set.
type Order struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ClientID   uuid.UUID       `json:"client_id" db:"client_id"`
	Total      decimal.Decimal `json:"total" db:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	Status     OrderStatus     `json:"status" db:"status"`
	Lines      []OrderLine     `json:"lines"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderLine is an immutable snapshot of one product line as sold. It
// freezes price and tax rate at sale time so later catalog changes never
// alter historical totals. Changing a line means replacing the whole
// snapshot set.
type OrderLine struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	OrderID      uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID    uuid.UUID       `json:"product_id" db:"product_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalWithTax decimal.Decimal `json:"total_with_tax" db:"total_with_tax"`
}

// PaymentMethod enumerates how a payment was collected
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Payment records one payment applied to an order
type Payment struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ClientID    uuid.UUID       `json:"client_id" db:"client_id"`
	PaidOn      time.Time       `json:"paid_on" db:"paid_on"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Method      PaymentMethod   `json:"method" db:"method"`
	FullPayment bool            `json:"full_payment" db:"full_payment"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
