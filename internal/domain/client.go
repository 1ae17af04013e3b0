package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client represents a customer that orders are billed to
type Client struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	TaxID     string    `json:"tax_id" db:"tax_id"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
