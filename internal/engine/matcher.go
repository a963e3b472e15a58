package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/events"
)

// PlaceOrderRequest carries the terms of a new order. Price is ignored for
// market orders and required for limit orders.
type PlaceOrderRequest struct {
	ClientID   string
	SecurityID string
	Units      int64
	Price      *decimal.Decimal
	Side       domain.OrderSide
	Kind       domain.OrderKind
}

// Execution is the outcome of a submission or amendment: the order it
// concerns, the summed price × units of every fill, and the fills.
type Execution struct {
	OrderID domain.OrderID
	Value   decimal.Decimal
	Fills   []domain.Fill
}

// Matcher implements the price-time priority matching engine.
type Matcher struct {
	books     *BookManager
	ids       *domain.Sequence
	arrivals  *domain.Sequence
	eventSeq  *domain.Sequence
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewMatcher creates a Matcher. ids mints order identifiers; the caller
// owns it and may share it with other components.
func NewMatcher(books *BookManager, ids *domain.Sequence, publisher events.Publisher, logger *slog.Logger) *Matcher {
	return &Matcher{
		books:     books,
		ids:       ids,
		arrivals:  domain.NewSequence(0),
		eventSeq:  domain.NewSequence(0),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// PlaceOrder creates an order from req and runs it through the side's entry
// point. Market orders are given their side's sentinel price.
func (m *Matcher) PlaceOrder(req PlaceOrderRequest) (Execution, error) {
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return Execution{}, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	}
	if req.Units <= 0 {
		return Execution{}, fmt.Errorf("%w: %d units", domain.ErrInvalidOrder, req.Units)
	}
	price, err := effectivePrice(req.Kind, req.Side, req.Price)
	if err != nil {
		return Execution{}, err
	}

	order := domain.NewOrder(m.ids.NextOrderID(), req.ClientID, req.SecurityID,
		req.Units, price, req.Side, req.Kind, m.now())

	if order.IsBuy() {
		return m.BuyTrade(order)
	}
	return m.SellTrade(order)
}

// BuyTrade matches a buy order against resting sells and rests any
// remainder on the bid side.
func (m *Matcher) BuyTrade(order *domain.Order) (Execution, error) {
	if !order.IsBuy() {
		return Execution{}, fmt.Errorf("%w: sell order %d sent to buy entry point", domain.ErrInvalidOrder, order.ID)
	}
	return m.submit(order)
}

// SellTrade matches a sell order against resting buys and rests any
// remainder on the ask side.
func (m *Matcher) SellTrade(order *domain.Order) (Execution, error) {
	if order.IsBuy() {
		return Execution{}, fmt.Errorf("%w: buy order %d sent to sell entry point", domain.ErrInvalidOrder, order.ID)
	}
	return m.submit(order)
}

// submit holds the security's write lock for the whole matching pass. The
// book rests a private copy of order, so later writes by the caller never
// reach it.
func (m *Matcher) submit(order *domain.Order) (Execution, error) {
	if order.Remaining() <= 0 {
		return Execution{}, fmt.Errorf("%w: order %d has %d units", domain.ErrInvalidOrder, order.ID, order.Remaining())
	}
	own := *order
	order = &own

	book := m.books.GetOrCreate(order.SecurityID)

	book.Lock()
	fills, evts, err := m.matchLocked(book, order)
	if err == nil {
		book.enqueue(evts)
	}
	book.Unlock()

	if err != nil {
		m.logger.Warn("order rejected",
			slog.Uint64("order_id", uint64(order.ID)),
			slog.String("client_id", order.ClientID),
			slog.String("security_id", order.SecurityID),
			slog.String("error", err.Error()),
		)
		return Execution{}, err
	}

	book.flush(m.publisher)

	exec := Execution{OrderID: order.ID, Value: sumFills(fills), Fills: fills}
	if len(fills) == 0 {
		m.logger.Info("order queued",
			slog.Uint64("order_id", uint64(order.ID)),
			slog.String("side", string(order.Side)),
			slog.String("security_id", order.SecurityID),
		)
	} else {
		m.logger.Info("order matched",
			slog.Uint64("order_id", uint64(order.ID)),
			slog.String("security_id", order.SecurityID),
			slog.Int("fills", len(fills)),
			slog.String("value", exec.Value.String()),
			slog.Int64("remaining", order.Remaining()),
		)
	}
	return exec, nil
}

// matchLocked rejects duplicate IDs and self-trades, crosses order against
// the opposite side until it is exhausted or no longer crosses, then rests
// the remainder. The caller must hold book's write lock.
func (m *Matcher) matchLocked(book *SecurityBook, order *domain.Order) ([]domain.Fill, []events.Event, error) {
	opposite := book.Side(order.Side.Opposite())
	own := book.Side(order.Side)

	if book.Holds(order.ID) {
		return nil, nil, fmt.Errorf("%w: order %d is already resting on %s",
			domain.ErrInvalidOrder, order.ID, order.SecurityID)
	}
	if opposite.ContainsClient(order.ClientID) {
		return nil, nil, fmt.Errorf("%w: client %s holds resting %s orders on %s",
			domain.ErrSelfTradeViolation, order.ClientID, opposite.Side(), order.SecurityID)
	}

	var (
		fills []domain.Fill
		evts  []events.Event
	)
	now := m.now()

	for order.Remaining() > 0 {
		resting, ok := opposite.Best()
		if !ok || !crosses(order, resting) {
			break
		}

		price := tradePrice(order, resting, opposite)
		units := min(order.Remaining(), resting.Remaining())

		order.SetRemaining(order.Remaining() - units)
		order.Touch(now)
		resting.SetRemaining(resting.Remaining() - units)
		resting.Touch(now)

		fill := domain.Fill{
			TradeID:    uuid.New().String(),
			SecurityID: order.SecurityID,
			Price:      price,
			Units:      units,
			ExecutedAt: now,
		}
		if order.IsBuy() {
			fill.BuyOrderID, fill.SellOrderID = order.ID, resting.ID
		} else {
			fill.BuyOrderID, fill.SellOrderID = resting.ID, order.ID
		}
		fills = append(fills, fill)
		evts = append(evts, m.matchEvent(order, resting, fill))

		m.logger.Debug("fill",
			slog.String("security_id", order.SecurityID),
			slog.Uint64("taker", uint64(order.ID)),
			slog.Uint64("maker", uint64(resting.ID)),
			slog.String("price", price.String()),
			slog.Int64("units", units),
		)

		if resting.Remaining() == 0 {
			opposite.Remove(resting.ID)
		}
	}

	if order.Remaining() > 0 {
		own.Insert(order, m.arrivals.Next())
		evts = append(evts, m.orderEvent(events.TypeOpen, order, now))
	}

	return fills, evts, nil
}

// crosses reports whether incoming is willing to trade with resting.
// Market orders cross anything.
func crosses(incoming, resting *domain.Order) bool {
	if incoming.IsMarket() {
		return true
	}
	if incoming.IsBuy() {
		return incoming.Price.GreaterThanOrEqual(resting.Price)
	}
	return incoming.Price.LessThanOrEqual(resting.Price)
}

// tradePrice picks the execution price for one fill. The resting order's
// price wins unless it is a market order; when both orders are market
// orders the best limit price left on the resting side is used, or zero
// when there is none.
func tradePrice(incoming, resting *domain.Order, restingSide *SideBook) decimal.Decimal {
	switch {
	case incoming.IsMarket() && resting.IsMarket():
		if price, ok := restingSide.FirstLimitPrice(); ok {
			return price
		}
		return decimal.Zero
	case resting.IsMarket():
		return incoming.Price
	default:
		return resting.Price
	}
}

// effectivePrice resolves the price an order of the given kind carries.
func effectivePrice(kind domain.OrderKind, side domain.OrderSide, price *decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case domain.KindMarket:
		return domain.SentinelPrice(side), nil
	case domain.KindLimit:
		if price == nil {
			return decimal.Decimal{}, fmt.Errorf("%w: limit order needs a price", domain.ErrInvalidOrder)
		}
		if !price.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("%w: limit price %s is not positive", domain.ErrInvalidOrder, price)
		}
		return *price, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unknown order kind %q", domain.ErrInvalidOrder, kind)
	}
}

func sumFills(fills []domain.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Value())
	}
	return total
}

func (m *Matcher) orderEvent(t events.Type, o *domain.Order, at time.Time) events.Event {
	return events.Event{
		Seq:        m.eventSeq.Next(),
		Type:       t,
		SecurityID: o.SecurityID,
		OrderID:    o.ID,
		ClientID:   o.ClientID,
		Side:       o.Side,
		Kind:       o.Kind,
		Price:      o.Price,
		Units:      o.Remaining(),
		OccurredAt: at,
	}
}

func (m *Matcher) matchEvent(taker, maker *domain.Order, fill domain.Fill) events.Event {
	return events.Event{
		Seq:           m.eventSeq.Next(),
		Type:          events.TypeMatch,
		SecurityID:    taker.SecurityID,
		OrderID:       taker.ID,
		ClientID:      taker.ClientID,
		Side:          taker.Side,
		Kind:          taker.Kind,
		Price:         fill.Price,
		Units:         fill.Units,
		TradeID:       fill.TradeID,
		MakerOrderID:  maker.ID,
		MakerClientID: maker.ClientID,
		Amount:        fill.Value(),
		OccurredAt:    fill.ExecutedAt,
	}
}
