package service

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/engine"
)

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	ClientID   string
	SecurityID string
	Side       domain.OrderSide
	Kind       domain.OrderKind
	Price      *decimal.Decimal // required for limit, ignored for market
	Units      int64
}

// AmendOrderRequest represents the input for an order update. A nil Price
// keeps the order's current price; Price is ignored for market orders.
type AmendOrderRequest struct {
	OrderID domain.OrderID
	Units   int64
	Price   *decimal.Decimal
}

// OrderService validates requests and hands them to the matching engine.
type OrderService struct {
	matcher *engine.Matcher
	logger  *slog.Logger
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(matcher *engine.Matcher, logger *slog.Logger) *OrderService {
	return &OrderService{
		matcher: matcher,
		logger:  logger,
	}
}

// SubmitOrder validates the request and runs it through the engine.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (engine.Execution, error) {
	if req.Kind != domain.KindLimit && req.Kind != domain.KindMarket {
		return engine.Execution{}, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order kind: %s. Must be one of: limit, market", req.Kind),
		}
	}
	if strings.TrimSpace(req.ClientID) == "" {
		return engine.Execution{}, &domain.ValidationError{Message: "client_id is required"}
	}
	if strings.TrimSpace(req.SecurityID) == "" {
		return engine.Execution{}, &domain.ValidationError{Message: "security_id is required"}
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return engine.Execution{}, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Units < 1 {
		return engine.Execution{}, &domain.ValidationError{Message: "units must be a positive integer"}
	}

	price := req.Price
	if req.Kind == domain.KindLimit {
		if err := validateLimitPrice(price); err != nil {
			return engine.Execution{}, err
		}
	} else {
		price = nil
	}

	return s.matcher.PlaceOrder(engine.PlaceOrderRequest{
		ClientID:   req.ClientID,
		SecurityID: req.SecurityID,
		Units:      req.Units,
		Price:      price,
		Side:       req.Side,
		Kind:       req.Kind,
	})
}

// AmendOrder changes the units and, optionally, the price of a resting order.
func (s *OrderService) AmendOrder(req AmendOrderRequest) (engine.Execution, error) {
	if req.Units < 1 {
		return engine.Execution{}, &domain.ValidationError{Message: "units must be a positive integer"}
	}

	current, ok := s.matcher.Find(req.OrderID)
	if !ok {
		return engine.Execution{}, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, req.OrderID)
	}

	// Market orders keep their sentinel price whatever the caller sends.
	price := req.Price
	switch {
	case price == nil || current.IsMarket():
		price = &current.Price
	default:
		if err := validateLimitPrice(price); err != nil {
			return engine.Execution{}, err
		}
	}

	return s.matcher.Amend(req.OrderID, req.Units, price)
}

// CancelOrder removes a resting order. It reports whether the order was
// resting; cancelling twice is not an error.
func (s *OrderService) CancelOrder(id domain.OrderID) bool {
	return s.matcher.Cancel(id)
}

// ListOrders returns every resting order.
func (s *OrderService) ListOrders() []domain.Order {
	return s.matcher.Orders()
}

// ListOrdersBySecurity returns the resting orders of one security.
func (s *OrderService) ListOrdersBySecurity(securityID string) ([]domain.Order, error) {
	if strings.TrimSpace(securityID) == "" {
		return nil, &domain.ValidationError{Message: "security_id is required"}
	}
	return s.matcher.OrdersBySecurity(securityID), nil
}

// RemoveClientOrders cancels every resting order of a client.
func (s *OrderService) RemoveClientOrders(clientID string) (int, error) {
	if strings.TrimSpace(clientID) == "" {
		return 0, &domain.ValidationError{Message: "client_id is required"}
	}
	n := s.matcher.RemoveClient(clientID)
	s.logger.Info("client disconnected", slog.String("client_id", clientID), slog.Int("removed", n))
	return n, nil
}

func validateLimitPrice(price *decimal.Decimal) error {
	if price == nil {
		return &domain.ValidationError{Message: "price is required for limit orders"}
	}
	if !price.IsPositive() {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if !price.LessThan(domain.MarketBuyPrice) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("price must be less than %s", domain.MarketBuyPrice),
		}
	}
	return nil
}
