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
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError reports a reservation that exceeds the available
// stock of a product. It carries the offending product so callers can show
// which line failed.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %q has insufficient stock: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// ProductRepository defines the interface for product data access,
// including the stock ledger operations used by order reconciliation.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context) ([]*domain.Product, error)

	// Reserve atomically decrements stock by quantity, failing with
	// *InsufficientStockError when quantity exceeds the current stock.
	// Returns the new stock level.
	Reserve(ctx context.Context, id uuid.UUID, quantity int) (int, error)
	// Release atomically increments stock by quantity and returns the new
	// stock level. It does not fail under normal operation.
	Release(ctx context.Context, id uuid.UUID, quantity int) (int, error)

	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sql.Tx) ProductRepository
}

type productRepository struct {
	db DBTX
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *sql.Tx) ProductRepository {
	return &productRepository{db: tx}
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, price, tax_rate, stock, category_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Price,
		product.TaxRate,
		product.Stock,
		product.CategoryID,
		product.Active,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates a product's catalog attributes. Stock is deliberately not
// part of this statement; it only moves through Reserve and Release.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, price = $3, tax_rate = $4, category_id = $5,
		    active = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Price,
		product.TaxRate,
		product.CategoryID,
		product.Active,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product from the database using parameterized queries
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, price, tax_rate, stock, category_id, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.TaxRate,
		&product.Stock,
		&product.CategoryID,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List retrieves all products ordered by name
func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, price, tax_rate, stock, category_id, active, created_at, updated_at
		FROM products
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Price,
			&product.TaxRate,
			&product.Stock,
			&product.CategoryID,
			&product.Active,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// Reserve decrements stock with an atomic conditional update. The predicate
// re-evaluates under the row lock, so two concurrent reservations of the
// same product cannot both succeed when only one fits.
func (r *productRepository) Reserve(ctx context.Context, id uuid.UUID, quantity int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`

	var remaining int
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// No row matched: either the product is gone or stock ran short.
	var name string
	var available int
	err = r.db.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = $1`, id).
		Scan(&name, &available)
	if err == sql.ErrNoRows {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}

	return 0, &InsufficientStockError{
		ProductID: id,
		Name:      name,
		Requested: quantity,
		Available: available,
	}
}

// Release increments stock unconditionally
func (r *productRepository) Release(ctx context.Context, id uuid.UUID, quantity int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`

	var remaining int
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to release stock: %w", err)
	}

	return remaining, nil
}
