package events

import (
	"sync"
	"time"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/shopspring/decimal"
)

// Type identifies what happened to the book.
type Type string

const (
	TypeOpen   Type = "open"   // an order started resting
	TypeMatch  Type = "match"  // an incoming order traded against a resting one
	TypeAmend  Type = "amend"  // a resting order was reduced in place
	TypeCancel Type = "cancel" // a resting order left the book without trading
)

// Event is a change to one security's book. Seq is strictly increasing
// across the whole engine and totally ordered within a security.
type Event struct {
	Seq        uint64           `json:"seq"`
	Type       Type             `json:"type"`
	SecurityID string           `json:"security_id"`
	OrderID    domain.OrderID   `json:"order_id"`
	ClientID   string           `json:"client_id"`
	Side       domain.OrderSide `json:"side"`
	Kind       domain.OrderKind `json:"kind"`
	Price      decimal.Decimal  `json:"price"`
	Units      int64            `json:"units"`
	OldUnits   int64            `json:"old_units,omitempty"`

	// Match only.
	TradeID       string          `json:"trade_id,omitempty"`
	MakerOrderID  domain.OrderID  `json:"maker_order_id,omitempty"`
	MakerClientID string          `json:"maker_client_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher receives book events after the book lock has been released.
//
// Implementations must not block for long and must not call back into the
// engine. Delivery failures are the publisher's concern; the engine never
// sees them.
type Publisher interface {
	Publish(...Event)
}

// MemoryPublisher stores events in memory, useful for testing.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		events: make([]Event, 0),
	}
}

// Publish appends events to the in-memory slice.
func (m *MemoryPublisher) Publish(evts ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evts...)
}

// Count returns the number of events stored.
func (m *MemoryPublisher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Events returns a copy of all events stored.
func (m *MemoryPublisher) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the stored events of the given type, in publish order.
func (m *MemoryPublisher) OfType(t Type) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// DiscardPublisher drops every event.
type DiscardPublisher struct{}

// NewDiscardPublisher creates a DiscardPublisher.
func NewDiscardPublisher() *DiscardPublisher {
	return &DiscardPublisher{}
}

// Publish does nothing.
func (DiscardPublisher) Publish(...Event) {}
