package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one execution between an incoming order and a resting order.
type Fill struct {
	TradeID     string
	SecurityID  string
	BuyOrderID  OrderID
	SellOrderID OrderID
	Price       decimal.Decimal
	Units       int64
	ExecutedAt  time.Time
}

// Value returns price × units.
func (f Fill) Value() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Units))
}
