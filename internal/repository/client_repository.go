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
	ErrClientNotFound = errors.New("client not found")
)

// ClientRepository defines the interface for client data access
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Client, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context) ([]*domain.Client, error)
}

type clientRepository struct {
	db DBTX
}

// NewClientRepository creates a new instance of ClientRepository
func NewClientRepository(db DBTX) ClientRepository {
	return &clientRepository{db: db}
}

// Create inserts a new client into the database using parameterized queries
func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (id, first_name, last_name, tax_id, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		client.ID,
		client.FirstName,
		client.LastName,
		client.TaxID,
		client.Phone,
		client.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// FindByID retrieves a client by ID using parameterized queries
func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `
		SELECT id, first_name, last_name, tax_id, phone, created_at
		FROM clients
		WHERE id = $1
	`

	client := &domain.Client{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.FirstName,
		&client.LastName,
		&client.TaxID,
		&client.Phone,
		&client.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to find client by ID: %w", err)
	}

	return client, nil
}

// Exists reports whether a client with the given ID exists
func (r *clientRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check client existence: %w", err)
	}
	return exists, nil
}

// List retrieves all clients ordered by last name
func (r *clientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	query := `
		SELECT id, first_name, last_name, tax_id, phone, created_at
		FROM clients
		ORDER BY last_name ASC, first_name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := []*domain.Client{}
	for rows.Next() {
		client := &domain.Client{}
		err := rows.Scan(
			&client.ID,
			&client.FirstName,
			&client.LastName,
			&client.TaxID,
			&client.Phone,
			&client.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}
