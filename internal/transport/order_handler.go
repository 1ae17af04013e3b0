package transport

import (
	"errors"
	"net/http"
	"time"

	"retail-backoffice/internal/domain"
	"retail-backoffice/internal/middleware"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderLineRequest is one requested product line
type OrderLineRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int             `json:"quantity" validate:"required,gte=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderRequest is the payload for creating or updating an order
type OrderRequest struct {
	ClientID   string             `json:"client_id" validate:"required,uuid"`
	Lines      []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
	AmountPaid decimal.Decimal    `json:"amount_paid"`
}

// PaymentRequest is the payload for recording a payment against an order
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,oneof=cash card transfer"`
}

// OrderLineResponse mirrors one committed line snapshot
type OrderLineResponse struct {
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalWithTax decimal.Decimal `json:"total_with_tax"`
}

// OrderResponse mirrors a committed order
type OrderResponse struct {
	ID         string              `json:"id"`
	ClientID   string              `json:"client_id"`
	Total      decimal.Decimal     `json:"total"`
	AmountPaid decimal.Decimal     `json:"amount_paid"`
	Status     string              `json:"status"`
	Lines      []OrderLineResponse `json:"lines"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/pay", h.MarkPaid)
		r.Post("/{id}/payments", h.RecordPayment)
	})
}

// Create handles order creation
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	clientID, lines, err := parseOrderRequest(req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), clientID, lines, req.AmountPaid)
	if err != nil {
		h.respondServiceError(w, "Order creation failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get handles retrieving one order with its lines
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, "Order lookup failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

// List handles listing all orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListOrders(r.Context())
	if err != nil {
		h.respondServiceError(w, "Order listing failed", err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	middleware.RespondWithJSON(w, http.StatusOK, out)
}

// Update handles full line-list replacement of an order
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	clientID, lines, err := parseOrderRequest(req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.UpdateOrder(r.Context(), orderID, clientID, lines, req.AmountPaid)
	if err != nil {
		h.respondServiceError(w, "Order update failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

// Delete handles order deletion with stock restoration
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.orderService.DeleteOrder(r.Context(), orderID); err != nil {
		h.respondServiceError(w, "Order deletion failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "order deleted and stock restored"})
}

// MarkPaid settles the remaining balance of an order
func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.MarkPaid(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, "Mark paid failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

// RecordPayment appends a payment to an order
func (h *OrderHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orderService.RecordPayment(r.Context(), orderID, req.Amount, domain.PaymentMethod(req.Method))
	if err != nil {
		h.respondServiceError(w, "Payment recording failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrderHandler) decodeOrderRequest(w http.ResponseWriter, r *http.Request) (*OrderRequest, bool) {
	var req OrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order request validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return nil, false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return &req, true
}

func parseOrderRequest(req *OrderRequest) (uuid.UUID, []service.LineInput, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return uuid.Nil, nil, errors.New("invalid client ID")
	}

	lines := make([]service.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		productID, err := uuid.Parse(l.ProductID)
		if err != nil {
			return uuid.Nil, nil, errors.New("invalid product ID")
		}
		lines = append(lines, service.LineInput{
			ProductID: productID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	return clientID, lines, nil
}

// respondServiceError maps engine errors to HTTP responses. Failed
// reconciliations have already been rolled back by the time they get here.
func (h *OrderHandler) respondServiceError(w http.ResponseWriter, msg string, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, "validation failed", map[string]interface{}{
			"field":   vErr.Field,
			"message": vErr.Message,
		})
		return
	}

	var stockErr *repository.InsufficientStockError
	if errors.As(err, &stockErr) {
		middleware.RespondWithErrorDetails(w, http.StatusConflict, stockErr.Error(), map[string]interface{}{
			"product_id": stockErr.ProductID.String(),
			"product":    stockErr.Name,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrTransactionConflict):
		middleware.RespondWithError(w, http.StatusConflict, "operation conflicted with a concurrent request, please retry")
	default:
		h.logger.Error(msg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toOrderResponse(order *domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, OrderLineResponse{
			ProductID:    l.ProductID.String(),
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			TaxRate:      l.TaxRate,
			Subtotal:     l.Subtotal,
			TaxAmount:    l.TaxAmount,
			TotalWithTax: l.TotalWithTax,
		})
	}

	return OrderResponse{
		ID:         order.ID.String(),
		ClientID:   order.ClientID.String(),
		Total:      order.Total,
		AmountPaid: order.AmountPaid,
		Status:     string(order.Status),
		Lines:      lines,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}
