package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders. Price is
// accepted as a JSON number or string.
type submitOrderRequest struct {
	ClientID   string           `json:"client_id"`
	SecurityID string           `json:"security_id"`
	Side       string           `json:"side"`
	Kind       string           `json:"kind"`
	Price      *decimal.Decimal `json:"price"`
	Units      int64            `json:"units"`
}

// amendOrderRequest is the JSON request body for PUT /orders/{order_id}.
type amendOrderRequest struct {
	Units int64            `json:"units"`
	Price *decimal.Decimal `json:"price"`
}

type cancelResponse struct {
	OrderID   domain.OrderID `json:"order_id"`
	Cancelled bool           `json:"cancelled"`
}

type removeClientResponse struct {
	ClientID string `json:"client_id"`
	Removed  int    `json:"removed"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	exec, err := h.orderSvc.SubmitOrder(service.SubmitOrderRequest{
		ClientID:   req.ClientID,
		SecurityID: req.SecurityID,
		Side:       domain.OrderSide(req.Side),
		Kind:       domain.OrderKind(req.Kind),
		Price:      req.Price,
		Units:      req.Units,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildExecutionResponse(exec))
}

// AmendOrder handles PUT /orders/{order_id}.
func (h *OrderHandler) AmendOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req amendOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	exec, err := h.orderSvc.AmendOrder(service.AmendOrderRequest{
		OrderID: id,
		Units:   req.Units,
		Price:   req.Price,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildExecutionResponse(exec))
}

// CancelOrder handles DELETE /orders/{order_id}. Cancelling an order that
// is not resting answers 200 with cancelled=false.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, cancelResponse{
		OrderID:   id,
		Cancelled: h.orderSvc.CancelOrder(id),
	})
}

// ListOrders handles GET /orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, buildOrdersResponse(h.orderSvc.ListOrders()))
}

// ListSecurityOrders handles GET /securities/{security_id}/orders.
func (h *OrderHandler) ListSecurityOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderSvc.ListOrdersBySecurity(chi.URLParam(r, "security_id"))
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrdersResponse(orders))
}

// RemoveClientOrders handles DELETE /clients/{client_id}/orders.
func (h *OrderHandler) RemoveClientOrders(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	n, err := h.orderSvc.RemoveClientOrders(clientID)
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, removeClientResponse{ClientID: clientID, Removed: n})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (domain.OrderID, bool) {
	raw := chi.URLParam(r, "order_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a positive integer")
		return 0, false
	}
	return domain.OrderID(id), true
}

// mapOrderError maps domain errors to HTTP responses for order endpoints.
func mapOrderError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		WriteError(w, http.StatusBadRequest, "invalid_order", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrSelfTradeViolation):
		WriteError(w, http.StatusConflict, "self_trade_violation", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
