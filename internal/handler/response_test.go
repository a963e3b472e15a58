package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/engine"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusConflict, "self_trade_violation", "client holds resting orders")

	if w.Code != http.StatusConflict {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusConflict)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Error != "self_trade_violation" || resp.Message != "client holds resting orders" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestParseJSON(t *testing.T) {
	type body struct {
		Units int64 `json:"units"`
	}
	tests := []struct {
		name        string
		contentType string
		raw         string
		wantErr     bool
	}{
		{"valid", "application/json", `{"units":3}`, false},
		{"charset", "application/json; charset=utf-8", `{"units":3}`, false},
		{"missing content type", "", `{"units":3}`, true},
		{"wrong content type", "text/plain", `{"units":3}`, true},
		{"malformed", "application/json", `{units}`, true},
		{"unknown field", "application/json", `{"units":3,"qty":1}`, true},
		{"trailing object", "application/json", `{"units":3}{"units":4}`, true},
		{"empty", "application/json", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.raw))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			var b body
			err := ParseJSON(r, &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && b.Units != 3 {
				t.Errorf("units = %d, want 3", b.Units)
			}
		})
	}
}

func TestBuildOrdersResponse_MarketPriceIsNull(t *testing.T) {
	at := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	orders := []domain.Order{
		*domain.NewOrder(1, "c1", "REL", 5, domain.MarketBuyPrice, domain.SideBuy, domain.KindMarket, at),
		*domain.NewOrder(2, "c2", "REL", 7, decimal.RequireFromString("10.5"), domain.SideBuy, domain.KindLimit, at),
	}

	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, buildOrdersResponse(orders))

	var resp struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(resp.Orders))
	}
	if resp.Orders[0]["price"] != nil {
		t.Errorf("market price = %v, want null", resp.Orders[0]["price"])
	}
	if resp.Orders[1]["price"] != "10.5" {
		t.Errorf("limit price = %v, want \"10.5\"", resp.Orders[1]["price"])
	}
	if resp.Orders[1]["priority_time"] != "2025-01-01T09:30:00Z" {
		t.Errorf("priority_time = %v", resp.Orders[1]["priority_time"])
	}
}

func TestBuildExecutionResponse_EmptyFillsIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, buildExecutionResponse(engine.Execution{OrderID: 3, Value: decimal.Zero}))

	if got := strings.TrimSpace(w.Body.String()); got != `{"order_id":3,"executed_value":"0","fills":[]}` {
		t.Errorf("body = %s", got)
	}
}
