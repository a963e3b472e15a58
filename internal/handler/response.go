package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/engine"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("Request body must be valid JSON with Content-Type: application/json")

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes {"error": code, "message": message}.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes a single JSON object from the request body into v.
// Unknown fields, trailing data and bodies over 1 MiB are rejected.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return errBadBody
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadBody
	}
	if dec.More() {
		return errBadBody
	}
	return nil
}

const timeLayout = time.RFC3339Nano

type fillResponse struct {
	TradeID     string          `json:"trade_id"`
	BuyOrderID  domain.OrderID  `json:"buy_order_id"`
	SellOrderID domain.OrderID  `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Units       int64           `json:"units"`
	ExecutedAt  string          `json:"executed_at"`
}

type executionResponse struct {
	OrderID       domain.OrderID  `json:"order_id"`
	ExecutedValue decimal.Decimal `json:"executed_value"`
	Fills         []fillResponse  `json:"fills"`
}

// orderResponse is a resting order. Price is null for market orders.
type orderResponse struct {
	OrderID      domain.OrderID   `json:"order_id"`
	ClientID     string           `json:"client_id"`
	SecurityID   string           `json:"security_id"`
	Side         domain.OrderSide `json:"side"`
	Kind         domain.OrderKind `json:"kind"`
	Price        *decimal.Decimal `json:"price"`
	Units        int64            `json:"units"`
	PriorityTime string           `json:"priority_time"`
	UpdatedAt    string           `json:"updated_at"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

func buildExecutionResponse(exec engine.Execution) executionResponse {
	fills := make([]fillResponse, len(exec.Fills))
	for i, f := range exec.Fills {
		fills[i] = fillResponse{
			TradeID:     f.TradeID,
			BuyOrderID:  f.BuyOrderID,
			SellOrderID: f.SellOrderID,
			Price:       f.Price,
			Units:       f.Units,
			ExecutedAt:  f.ExecutedAt.UTC().Format(timeLayout),
		}
	}
	return executionResponse{
		OrderID:       exec.OrderID,
		ExecutedValue: exec.Value,
		Fills:         fills,
	}
}

func buildOrdersResponse(orders []domain.Order) ordersResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		o := &orders[i]
		resp := orderResponse{
			OrderID:      o.ID,
			ClientID:     o.ClientID,
			SecurityID:   o.SecurityID,
			Side:         o.Side,
			Kind:         o.Kind,
			Units:        o.Remaining(),
			PriorityTime: o.PriorityTime().UTC().Format(timeLayout),
			UpdatedAt:    o.DisplayTime().UTC().Format(timeLayout),
		}
		if !o.IsMarket() {
			price := o.Price
			resp.Price = &price
		}
		out[i] = resp
	}
	return ordersResponse{Orders: out}
}
