package transport

import (
	"errors"
	"net/http"
	"time"

	"retail-backoffice/internal/domain"
	"retail-backoffice/internal/middleware"
	"retail-backoffice/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the payload for creating or updating a product
type ProductRequest struct {
	Name       string          `json:"name" validate:"required,min=2,max=100"`
	Price      decimal.Decimal `json:"price"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Stock      int             `json:"stock" validate:"gte=0"`
	CategoryID string          `json:"category_id" validate:"required,uuid"`
	Active     bool            `json:"active"`
}

// CategoryRequest is the payload for creating a category
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// ClientRequest is the payload for creating a client
type ClientRequest struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	TaxID     string `json:"tax_id" validate:"required,min=3,max=32"`
	Phone     string `json:"phone" validate:"max=32"`
}

// CatalogHandler handles HTTP requests for products, categories, and clients
type CatalogHandler struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	clients    repository.ClientRepository
	logger     *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	clients repository.ClientRepository,
	logger *zap.Logger,
) *CatalogHandler {
	return &CatalogHandler{
		products:   products,
		categories: categories,
		clients:    clients,
		logger:     logger,
	}
}

// RegisterRoutes registers all catalog routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
	})
	r.Route("/api/clients", func(r chi.Router) {
		r.Get("/", h.ListClients)
		r.Post("/", h.CreateClient)
		r.Get("/{id}", h.GetClient)
	})
}

// CreateProduct handles product creation
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category ID")
		return
	}
	if req.Price.IsNegative() || req.TaxRate.IsNegative() {
		middleware.RespondWithError(w, http.StatusBadRequest, "price and tax rate must not be negative")
		return
	}

	if _, err := h.categories.FindByID(r.Context(), categoryID); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category not found")
			return
		}
		h.logger.Error("Category lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now()
	product := &domain.Product{
		ID:         uuid.New(),
		Name:       req.Name,
		Price:      req.Price,
		TaxRate:    req.TaxRate,
		Stock:      req.Stock,
		CategoryID: categoryID,
		Active:     req.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.products.Create(r.Context(), product); err != nil {
		h.logger.Error("Product creation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// GetProduct handles retrieving one product
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	product, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Product lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// ListProducts handles listing all products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.logger.Error("Product listing failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// UpdateProduct handles updating a product's catalog fields. Stock is not
// updatable here: it only moves through order reservations and releases.
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category ID")
		return
	}
	if req.Price.IsNegative() || req.TaxRate.IsNegative() {
		middleware.RespondWithError(w, http.StatusBadRequest, "price and tax rate must not be negative")
		return
	}

	product, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Product lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	product.Name = req.Name
	product.Price = req.Price
	product.TaxRate = req.TaxRate
	product.CategoryID = categoryID
	product.Active = req.Active
	product.UpdatedAt = time.Now()

	if err := h.products.Update(r.Context(), product); err != nil {
		h.logger.Error("Product update failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// DeleteProduct handles product deletion
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Product deletion failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// CreateCategory handles category creation
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	category := &domain.Category{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := h.categories.Create(r.Context(), category); err != nil {
		if errors.Is(err, repository.ErrCategoryAlreadyExists) {
			middleware.RespondWithError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Category creation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, category)
}

// ListCategories handles listing all categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		h.logger.Error("Category listing failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, categories)
}

// CreateClient handles client creation
func (h *CatalogHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	client := &domain.Client{
		ID:        uuid.New(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TaxID:     req.TaxID,
		Phone:     req.Phone,
		CreatedAt: time.Now(),
	}
	if err := h.clients.Create(r.Context(), client); err != nil {
		h.logger.Error("Client creation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, client)
}

// GetClient handles retrieving one client
func (h *CatalogHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	client, err := h.clients.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "client not found")
			return
		}
		h.logger.Error("Client lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, client)
}

func (h *CatalogHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
