package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Stock is only ever mutated
// through the reserve/release operations on the product repository and must
// never go negative.
type Product struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	Price      decimal.Decimal `json:"price" db:"price"`
	TaxRate    decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Stock      int             `json:"stock" db:"stock"`
	CategoryID uuid.UUID       `json:"category_id" db:"category_id"`
	Active     bool            `json:"active" db:"active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
