package engine

import "github.com/efreitasn/orderbook/internal/domain"

// Orders returns copies of every resting order. Securities come in
// ascending ID order; within a security the bids come first, best first,
// then the asks, best first.
//
// Each security is copied under its own read lock, so the result is not a
// single point in time across securities.
func (m *Matcher) Orders() []domain.Order {
	out := make([]domain.Order, 0)
	for _, book := range m.books.Books() {
		bids, asks := book.Snapshot()
		out = append(out, bids...)
		out = append(out, asks...)
	}
	return out
}

// OrdersBySecurity returns copies of the resting orders of one security,
// bids then asks, each in priority order.
func (m *Matcher) OrdersBySecurity(securityID string) []domain.Order {
	book, ok := m.books.Get(securityID)
	if !ok {
		return []domain.Order{}
	}
	bids, asks := book.Snapshot()
	return append(bids, asks...)
}

// Find returns a copy of a resting order.
func (m *Matcher) Find(id domain.OrderID) (domain.Order, bool) {
	for _, book := range m.books.Books() {
		if o, ok := book.Find(id); ok {
			return o, true
		}
	}
	return domain.Order{}, false
}
