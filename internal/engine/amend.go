package engine

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/events"
)

// Amend changes the units and price of a resting order.
//
// Reducing units at an unchanged price updates the order where it rests and
// keeps its queue position; nothing is matched. Any other change removes the
// order and submits it again under the same ID with a fresh priority time,
// which may trade immediately. Market orders keep their sentinel price
// whatever price is passed. An order that is no longer resting (filled,
// cancelled, or never seen) yields ErrOrderNotFound.
func (m *Matcher) Amend(id domain.OrderID, units int64, price *decimal.Decimal) (Execution, error) {
	if units <= 0 {
		return Execution{}, fmt.Errorf("%w: amendment of order %d to %d units", domain.ErrInvalidOrder, id, units)
	}

	book, ok := m.locate(id)
	if !ok {
		return Execution{}, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}

	book.Lock()
	exec, evts, err := m.amendLocked(book, id, units, price)
	if err == nil {
		book.enqueue(evts)
	}
	book.Unlock()

	if err != nil {
		m.logger.Warn("order update rejected",
			slog.Uint64("order_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		return Execution{}, err
	}

	book.flush(m.publisher)
	m.logger.Info("order updated",
		slog.Uint64("order_id", uint64(id)),
		slog.Int64("units", units),
		slog.String("value", exec.Value.String()),
	)
	return exec, nil
}

func (m *Matcher) amendLocked(book *SecurityBook, id domain.OrderID, units int64, price *decimal.Decimal) (Execution, []events.Event, error) {
	// The order may have been filled or cancelled between locate and Lock.
	side := book.Bids()
	current, ok := side.Get(id)
	if !ok {
		side = book.Asks()
		if current, ok = side.Get(id); !ok {
			return Execution{}, nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
		}
	}

	newPrice, err := effectivePrice(current.Kind, current.Side, price)
	if err != nil {
		return Execution{}, nil, err
	}
	now := m.now()

	if newPrice.Equal(current.Price) && units < current.Remaining() {
		oldUnits := current.Remaining()
		current.SetRemaining(units)
		current.Touch(now)

		evt := m.orderEvent(events.TypeAmend, current, now)
		evt.OldUnits = oldUnits
		return Execution{OrderID: id, Value: decimal.Zero}, []events.Event{evt}, nil
	}

	// Checked before removal so a rejected amendment leaves the order resting.
	if book.Side(current.Side.Opposite()).ContainsClient(current.ClientID) {
		return Execution{}, nil, fmt.Errorf("%w: client %s holds resting %s orders on %s",
			domain.ErrSelfTradeViolation, current.ClientID, current.Side.Opposite(), current.SecurityID)
	}

	side.Remove(id)
	evts := []events.Event{m.orderEvent(events.TypeCancel, current, now)}

	replacement := domain.NewOrder(id, current.ClientID, current.SecurityID,
		units, newPrice, current.Side, current.Kind, now)
	fills, more, err := m.matchLocked(book, replacement)
	if err != nil {
		return Execution{}, nil, err
	}

	return Execution{OrderID: id, Value: sumFills(fills), Fills: fills}, append(evts, more...), nil
}

// Cancel removes the order from whichever book holds it. It reports whether
// the order was resting; an unknown ID is not an error.
func (m *Matcher) Cancel(id domain.OrderID) bool {
	for _, book := range m.books.Books() {
		book.Lock()
		evt, ok := m.cancelLocked(book, id)
		if ok {
			book.enqueue([]events.Event{evt})
		}
		book.Unlock()

		if ok {
			book.flush(m.publisher)
			m.logger.Info("order cancelled",
				slog.Uint64("order_id", uint64(id)),
				slog.String("security_id", book.SecurityID()),
			)
			return true
		}
	}
	m.logger.Debug("cancel of unknown order", slog.Uint64("order_id", uint64(id)))
	return false
}

func (m *Matcher) cancelLocked(book *SecurityBook, id domain.OrderID) (events.Event, bool) {
	for _, side := range []*SideBook{book.Bids(), book.Asks()} {
		if o, ok := side.Get(id); ok {
			side.Remove(id)
			return m.orderEvent(events.TypeCancel, o, m.now()), true
		}
	}
	return events.Event{}, false
}

// RemoveClient cancels every resting order placed by clientID on every
// security and returns how many were removed.
func (m *Matcher) RemoveClient(clientID string) int {
	removed := 0
	for _, book := range m.books.Books() {
		var evts []events.Event

		book.Lock()
		now := m.now()
		for _, side := range []*SideBook{book.Bids(), book.Asks()} {
			for _, o := range side.RemoveClient(clientID) {
				evts = append(evts, m.orderEvent(events.TypeCancel, o, now))
			}
		}
		book.enqueue(evts)
		book.Unlock()

		book.flush(m.publisher)
		removed += len(evts)
	}

	m.logger.Info("client orders removed",
		slog.String("client_id", clientID),
		slog.Int("count", removed),
	)
	return removed
}

// Reset drops every book, as at the close of a trading session.
func (m *Matcher) Reset() {
	m.books.Reset()
	m.logger.Info("order books cleared")
}

// locate finds the book currently holding the order.
func (m *Matcher) locate(id domain.OrderID) (*SecurityBook, bool) {
	for _, book := range m.books.Books() {
		if _, ok := book.Find(id); ok {
			return book, true
		}
	}
	return nil, false
}
