package repository

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"retail-backoffice/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := "postgres://" + dbUser + ":" + dbPwd + "@" + dbHost + ":" + dbPort.Port() + "/" + dbName + "?sslmode=disable"
	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	_, err = testDB.Exec(`
		CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS clients (
			id UUID PRIMARY KEY,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			tax_id VARCHAR(32) NOT NULL,
			phone VARCHAR(32) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			price DECIMAL(10,2) NOT NULL,
			tax_rate DECIMAL(5,2) NOT NULL,
			stock INTEGER NOT NULL CHECK (stock >= 0),
			category_id UUID NOT NULL REFERENCES categories(id),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			client_id UUID NOT NULL REFERENCES clients(id),
			total DECIMAL(10,2) NOT NULL,
			amount_paid DECIMAL(10,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS order_lines (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			unit_price DECIMAL(10,2) NOT NULL,
			tax_rate DECIMAL(5,2) NOT NULL,
			subtotal DECIMAL(10,2) NOT NULL,
			tax_amount DECIMAL(10,2) NOT NULL,
			total_with_tax DECIMAL(10,2) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			client_id UUID NOT NULL REFERENCES clients(id),
			paid_on DATE NOT NULL,
			amount DECIMAL(10,2) NOT NULL CHECK (amount > 0),
			method VARCHAR(20) NOT NULL,
			full_payment BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

func seedCategory(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testDB.Exec(
		`INSERT INTO categories (id, name, description, created_at) VALUES ($1, $2, '', $3)`,
		id, "cat-"+id.String()[:8], time.Now(),
	)
	require.NoError(t, err)
	return id
}

func seedClient(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testDB.Exec(
		`INSERT INTO clients (id, first_name, last_name, tax_id, phone, created_at) VALUES ($1, 'Ada', 'Lovelace', $2, '', $3)`,
		id, "TAX-"+id.String()[:8], time.Now(),
	)
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, price, taxRate string, stock int) uuid.UUID {
	t.Helper()
	categoryID := seedCategory(t)
	id := uuid.New()
	now := time.Now()
	_, err := testDB.Exec(
		`INSERT INTO products (id, name, price, tax_rate, stock, category_id, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)`,
		id, "prod-"+id.String()[:8], price, taxRate, stock, categoryID, now,
	)
	require.NoError(t, err)
	return id
}

func productStock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var stock int
	require.NoError(t, testDB.QueryRow(`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func TestReserveDecrementsStock(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	productID := seedProduct(t, "9.99", "21.00", 10)

	remaining, err := repo.Reserve(ctx, productID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)
	assert.Equal(t, 6, productStock(t, productID))
}

func TestReserveFailsWhenStockInsufficient(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	productID := seedProduct(t, "9.99", "21.00", 3)

	_, err := repo.Reserve(ctx, productID, 5)
	require.Error(t, err)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, productID, stockErr.ProductID)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	// A failed reservation must not touch stock
	assert.Equal(t, 3, productStock(t, productID))
}

func TestReserveUnknownProduct(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	_, err := repo.Reserve(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestReleaseRestoresStock(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	productID := seedProduct(t, "9.99", "21.00", 10)

	_, err := repo.Reserve(ctx, productID, 7)
	require.NoError(t, err)

	remaining, err := repo.Release(ctx, productID, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestProperty_ReserveThenReleaseRestoresStock(t *testing.T) {
	repo := NewProductRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("reserve followed by release leaves stock unchanged", prop.ForAll(
		func(stock int, quantity int) bool {
			productID := seedProduct(t, "5.00", "10.00", stock)

			_, err := repo.Reserve(ctx, productID, quantity)
			if quantity > stock {
				// Must fail and leave stock alone
				return err != nil && productStock(t, productID) == stock
			}
			if err != nil {
				return false
			}

			if _, err := repo.Release(ctx, productID, quantity); err != nil {
				return false
			}
			return productStock(t, productID) == stock
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 25),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func makeOrder(clientID uuid.UUID, productID uuid.UUID, quantity int) *domain.Order {
	now := time.Now()
	orderID := uuid.New()

	unitPrice := decimal.RequireFromString("9.99")
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	taxAmount := subtotal.Mul(decimal.RequireFromString("0.21")).Round(2)
	total := subtotal.Add(taxAmount)

	return &domain.Order{
		ID:         orderID,
		ClientID:   clientID,
		Total:      total,
		AmountPaid: decimal.Zero,
		Status:     domain.StatusPending,
		Lines: []domain.OrderLine{
			{
				ID:           uuid.New(),
				OrderID:      orderID,
				ProductID:    productID,
				Quantity:     quantity,
				UnitPrice:    unitPrice,
				TaxRate:      decimal.RequireFromString("21.00"),
				Subtotal:     subtotal,
				TaxAmount:    taxAmount,
				TotalWithTax: total,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderCreateAndFindRoundTrip(t *testing.T) {
	repo := NewOrderRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	productID := seedProduct(t, "9.99", "21.00", 100)
	order := makeOrder(clientID, productID, 3)

	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, order.ClientID, found.ClientID)
	assert.Equal(t, domain.StatusPending, found.Status)
	assert.True(t, order.Total.Equal(found.Total), "total %s != %s", order.Total, found.Total)

	require.Len(t, found.Lines, 1)
	line := found.Lines[0]
	assert.Equal(t, productID, line.ProductID)
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, order.Lines[0].UnitPrice.Equal(line.UnitPrice))
	assert.True(t, order.Lines[0].TaxAmount.Equal(line.TaxAmount))
	assert.True(t, order.Lines[0].TotalWithTax.Equal(line.TotalWithTax))
}

func TestOrderReplaceLinesSwapsWholeSet(t *testing.T) {
	repo := NewOrderRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	firstProduct := seedProduct(t, "9.99", "21.00", 100)
	secondProduct := seedProduct(t, "4.50", "10.00", 100)

	order := makeOrder(clientID, firstProduct, 2)
	require.NoError(t, repo.Create(ctx, order))

	replacement := makeOrder(clientID, secondProduct, 5).Lines
	for i := range replacement {
		replacement[i].OrderID = order.ID
	}
	require.NoError(t, repo.ReplaceLines(ctx, order.ID, replacement))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, secondProduct, found.Lines[0].ProductID)
	assert.Equal(t, 5, found.Lines[0].Quantity)
}

func TestOrderDeleteCascadesLines(t *testing.T) {
	repo := NewOrderRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	productID := seedProduct(t, "9.99", "21.00", 100)
	order := makeOrder(clientID, productID, 2)

	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.Delete(ctx, order.ID))

	_, err := repo.FindByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	var lineCount int
	require.NoError(t, testDB.QueryRow(`SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, order.ID).Scan(&lineCount))
	assert.Equal(t, 0, lineCount)
}

func TestOrderUpdateHeader(t *testing.T) {
	repo := NewOrderRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	productID := seedProduct(t, "9.99", "21.00", 100)
	order := makeOrder(clientID, productID, 2)
	require.NoError(t, repo.Create(ctx, order))

	order.AmountPaid = order.Total
	order.Status = domain.DeriveStatus(order.AmountPaid, order.Total)
	order.UpdatedAt = time.Now()
	require.NoError(t, repo.UpdateHeader(ctx, order))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, found.Status)
	assert.True(t, found.AmountPaid.Equal(order.Total))
}

func TestOrderUpdateHeaderUnknownOrder(t *testing.T) {
	repo := NewOrderRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	productID := seedProduct(t, "9.99", "21.00", 100)
	order := makeOrder(clientID, productID, 1)

	// Never persisted
	err := repo.UpdateHeader(ctx, order)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPaymentCreateAndListByOrder(t *testing.T) {
	orders := NewOrderRepository(testDB)
	payments := NewPaymentRepository(testDB)
	ctx := context.Background()

	clientID := seedClient(t)
	productID := seedProduct(t, "9.99", "21.00", 100)
	order := makeOrder(clientID, productID, 2)
	require.NoError(t, orders.Create(ctx, order))

	payment := &domain.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ClientID:    clientID,
		PaidOn:      time.Now(),
		Amount:      decimal.RequireFromString("10.00"),
		Method:      domain.PaymentCash,
		FullPayment: false,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, payments.Create(ctx, payment))

	listed, err := payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.PaymentCash, listed[0].Method)
	assert.True(t, listed[0].Amount.Equal(decimal.RequireFromString("10.00")))
	assert.False(t, listed[0].FullPayment)
}
