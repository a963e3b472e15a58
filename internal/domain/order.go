package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID identifies an order for its whole life, including across
// amendments that requeue it.
type OrderID uint64

// OrderKind distinguishes limit orders from market orders.
type OrderKind string

const (
	KindLimit  OrderKind = "limit"
	KindMarket OrderKind = "market"
)

// OrderSide indicates whether an order buys or sells.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sentinel prices keep market orders at the front of their own side. They
// are never used as an executed price.
var (
	MarketBuyPrice  = decimal.NewFromInt(9999999999)
	MarketSellPrice = decimal.Zero
)

// SentinelPrice returns the market-order placeholder price for a side.
func SentinelPrice(side OrderSide) decimal.Decimal {
	if side == SideBuy {
		return MarketBuyPrice
	}
	return MarketSellPrice
}

// Order is a buy or sell instruction for one security.
//
// Identity and terms are fixed at construction and must not be written after
// NewOrder; the engine keeps its own copy of every order it accepts and keys
// its books on the price captured at insertion. The remaining units and the
// display time are the only mutable state; they are written by the engine
// while it holds the lock of the book the order rests in, and read by
// everyone else through copies taken under that same lock.
type Order struct {
	ID         OrderID
	ClientID   string
	SecurityID string
	Side       OrderSide
	Kind       OrderKind
	Price      decimal.Decimal

	remaining    int64
	priorityTime time.Time
	displayTime  time.Time
}

// NewOrder builds an order whose priority and display times are both ts.
func NewOrder(id OrderID, clientID, securityID string, units int64, price decimal.Decimal,
	side OrderSide, kind OrderKind, ts time.Time) *Order {
	return &Order{
		ID:           id,
		ClientID:     clientID,
		SecurityID:   securityID,
		Side:         side,
		Kind:         kind,
		Price:        price,
		remaining:    units,
		priorityTime: ts,
		displayTime:  ts,
	}
}

// IsBuy reports whether the order is on the buy side.
func (o *Order) IsBuy() bool { return o.Side == SideBuy }

// IsMarket reports whether the order is a market order.
func (o *Order) IsMarket() bool { return o.Kind == KindMarket }

// Remaining returns the units still open.
func (o *Order) Remaining() int64 { return o.remaining }

// PriorityTime returns the timestamp used for queue ordering.
func (o *Order) PriorityTime() time.Time { return o.priorityTime }

// DisplayTime returns the time of the last mutation.
func (o *Order) DisplayTime() time.Time { return o.displayTime }

// SetRemaining overwrites the open units. Negative values are clamped to 0.
func (o *Order) SetRemaining(units int64) {
	if units < 0 {
		units = 0
	}
	o.remaining = units
}

// Touch records a mutation time.
func (o *Order) Touch(ts time.Time) { o.displayTime = ts }

// SameOrder reports whether both orders carry the same identity.
func (o *Order) SameOrder(other *Order) bool {
	return other != nil && o.ID == other.ID
}

func (o *Order) String() string {
	return fmt.Sprintf("order %d client=%s security=%s side=%s kind=%s units=%d price=%s",
		o.ID, o.ClientID, o.SecurityID, o.Side, o.Kind, o.remaining, o.Price)
}
