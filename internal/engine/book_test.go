package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/orderbook/internal/domain"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// makeOrder builds a resting limit order for security REL.
func makeOrder(id domain.OrderID, side domain.OrderSide, price float64, at time.Time, units int64) *domain.Order {
	return domain.NewOrder(id, "client", "REL", units, decimal.NewFromFloat(price), side, domain.KindLimit, at)
}

func makeEntry(id domain.OrderID, price float64, at time.Time, seq uint64) bookEntry {
	o := makeOrder(id, domain.SideBuy, price, at, 1)
	return bookEntry{price: o.Price, priorityTime: at, seq: seq, order: o}
}

func TestBidLess_PriceDescending(t *testing.T) {
	a := makeEntry(1, 200, baseTime, 1)
	b := makeEntry(2, 100, baseTime, 2)
	// Higher price should come first (be "less" in bid ordering).
	if !bidLess(a, b) {
		t.Error("expected higher price to be less on bid side")
	}
	if bidLess(b, a) {
		t.Error("expected lower price to not be less on bid side")
	}
}

func TestBidLess_TimeAscending(t *testing.T) {
	a := makeEntry(1, 100, baseTime, 2)
	b := makeEntry(2, 100, baseTime.Add(time.Millisecond), 1)
	if !bidLess(a, b) {
		t.Error("expected earlier time to be less on bid side at same price")
	}
	if bidLess(b, a) {
		t.Error("expected later time to not be less on bid side at same price")
	}
}

func TestBidLess_ArrivalAscending(t *testing.T) {
	a := makeEntry(7, 100, baseTime, 1)
	b := makeEntry(3, 100, baseTime, 2)
	if !bidLess(a, b) {
		t.Error("expected earlier arrival to be less on bid side at same price and time")
	}
	if bidLess(b, a) {
		t.Error("expected later arrival to not be less on bid side at same price and time")
	}
}

func TestAskLess_PriceAscending(t *testing.T) {
	a := makeEntry(1, 100, baseTime, 1)
	b := makeEntry(2, 200, baseTime, 2)
	if !askLess(a, b) {
		t.Error("expected lower price to be less on ask side")
	}
	if askLess(b, a) {
		t.Error("expected higher price to not be less on ask side")
	}
}

func TestAskLess_TimeAscending(t *testing.T) {
	a := makeEntry(1, 100, baseTime, 2)
	b := makeEntry(2, 100, baseTime.Add(time.Second), 1)
	if !askLess(a, b) {
		t.Error("expected earlier time to be less on ask side at same price")
	}
}

func TestLess_DifferentSecuritiesPanics(t *testing.T) {
	a := makeEntry(1, 100, baseTime, 1)
	b := makeEntry(2, 100, baseTime, 2)
	b.order = domain.NewOrder(2, "client", "TATA", 1, b.price, domain.SideBuy, domain.KindLimit, baseTime)

	defer func() {
		if recover() == nil {
			t.Error("expected comparing orders of different securities to panic")
		}
	}()
	bidLess(a, b)
}

func TestSideBook_InsertAndBestBid(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	sb.Insert(makeOrder(1, domain.SideBuy, 100, baseTime, 10), 1)
	sb.Insert(makeOrder(2, domain.SideBuy, 200, baseTime, 5), 2)

	best, ok := sb.Best()
	if !ok {
		t.Fatal("expected best bid to exist")
	}
	if best.ID != 2 {
		t.Errorf("expected best bid 2 (price 200), got %d (price %s)", best.ID, best.Price)
	}
}

func TestSideBook_InsertAndBestAsk(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	sb.Insert(makeOrder(1, domain.SideSell, 200, baseTime, 10), 1)
	sb.Insert(makeOrder(2, domain.SideSell, 100, baseTime, 5), 2)

	best, ok := sb.Best()
	if !ok {
		t.Fatal("expected best ask to exist")
	}
	if best.ID != 2 {
		t.Errorf("expected best ask 2 (price 100), got %d (price %s)", best.ID, best.Price)
	}
}

func TestSideBook_EmptyBest(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	if _, ok := sb.Best(); ok {
		t.Error("expected no best order on empty book")
	}
}

func TestSideBook_Remove(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	sb.Insert(makeOrder(1, domain.SideBuy, 100, baseTime, 10), 1)
	sb.Insert(makeOrder(2, domain.SideBuy, 200, baseTime, 5), 2)

	if !sb.Remove(2) {
		t.Fatal("expected Remove to report the order was resting")
	}
	best, ok := sb.Best()
	if !ok {
		t.Fatal("expected best bid after removing 2")
	}
	if best.ID != 1 {
		t.Errorf("expected best bid 1 after removing 2, got %d", best.ID)
	}
	if sb.Len() != 1 {
		t.Errorf("expected len 1, got %d", sb.Len())
	}
}

func TestSideBook_RemoveNonExistent(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	if sb.Remove(42) {
		t.Error("expected Remove of unknown order to report false")
	}
}

func TestSideBook_InsertDuplicatePanics(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	sb.Insert(makeOrder(1, domain.SideBuy, 10, baseTime, 5), 1)

	defer func() {
		if recover() == nil {
			t.Error("expected Insert of an order already resting to panic")
		}
		if sb.Len() != 1 {
			t.Errorf("expected 1 resting order, got %d", sb.Len())
		}
	}()
	sb.Insert(makeOrder(1, domain.SideBuy, 11, baseTime, 5), 2)
}

func TestSideBook_TimePriority(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	// Same price, different times — earlier should be best.
	sb.Insert(makeOrder(1, domain.SideSell, 50, baseTime.Add(time.Second), 1), 1)
	sb.Insert(makeOrder(2, domain.SideSell, 50, baseTime, 1), 2)

	best, _ := sb.Best()
	if best.ID != 2 {
		t.Errorf("expected 2 (earlier time) as best ask, got %d", best.ID)
	}
}

func TestSideBook_ContainsClient(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	o := domain.NewOrder(1, "alice", "REL", 5, decimal.NewFromInt(10), domain.SideSell, domain.KindLimit, baseTime)
	sb.Insert(o, 1)

	if !sb.ContainsClient("alice") {
		t.Error("expected alice to be found")
	}
	if sb.ContainsClient("bob") {
		t.Error("expected bob to be absent")
	}
}

func TestSideBook_RemoveClient(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	sb.Insert(domain.NewOrder(1, "alice", "REL", 5, decimal.NewFromInt(10), domain.SideBuy, domain.KindLimit, baseTime), 1)
	sb.Insert(domain.NewOrder(2, "bob", "REL", 5, decimal.NewFromInt(11), domain.SideBuy, domain.KindLimit, baseTime), 2)
	sb.Insert(domain.NewOrder(3, "alice", "REL", 5, decimal.NewFromInt(12), domain.SideBuy, domain.KindLimit, baseTime), 3)

	removed := sb.RemoveClient("alice")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed orders, got %d", len(removed))
	}
	if removed[0].ID != 3 || removed[1].ID != 1 {
		t.Errorf("expected removed in priority order [3 1], got [%d %d]", removed[0].ID, removed[1].ID)
	}
	if sb.Len() != 1 {
		t.Errorf("expected 1 order left, got %d", sb.Len())
	}
	if _, ok := sb.Get(1); ok {
		t.Error("expected order 1 to be gone from the index")
	}
}

func TestSideBook_FirstLimitPrice_SkipsMarketOrders(t *testing.T) {
	sb := newSideBook(domain.SideBuy)
	sb.Insert(domain.NewOrder(1, "a", "REL", 5, domain.MarketBuyPrice, domain.SideBuy, domain.KindMarket, baseTime), 1)
	sb.Insert(makeOrder(2, domain.SideBuy, 90, baseTime, 5), 2)
	sb.Insert(makeOrder(3, domain.SideBuy, 95, baseTime, 5), 3)

	price, ok := sb.FirstLimitPrice()
	if !ok {
		t.Fatal("expected a limit price")
	}
	if !price.Equal(decimal.NewFromInt(95)) {
		t.Errorf("expected best limit price 95, got %s", price)
	}
}

func TestSideBook_FirstLimitPrice_OnlyMarket(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	sb.Insert(domain.NewOrder(1, "a", "REL", 5, domain.MarketSellPrice, domain.SideSell, domain.KindMarket, baseTime), 1)

	if _, ok := sb.FirstLimitPrice(); ok {
		t.Error("expected no limit price when only market orders rest")
	}
}

func TestSideBook_SnapshotIsSortedAndDetached(t *testing.T) {
	sb := newSideBook(domain.SideSell)
	sb.Insert(makeOrder(1, domain.SideSell, 300, baseTime, 1), 1)
	sb.Insert(makeOrder(2, domain.SideSell, 100, baseTime, 1), 2)
	sb.Insert(makeOrder(3, domain.SideSell, 200, baseTime, 1), 3)
	sb.Insert(makeOrder(4, domain.SideSell, 100, baseTime.Add(time.Second), 1), 4)

	snap := sb.Snapshot()
	var ids []domain.OrderID
	for _, o := range snap {
		ids = append(ids, o.ID)
	}
	want := []domain.OrderID{2, 4, 3, 1}
	if len(ids) != len(want) {
		t.Fatalf("expected %d orders, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected snapshot order %v, got %v", want, ids)
		}
	}

	// The live book is untouched and mutations do not reach the snapshot.
	if sb.Len() != 4 {
		t.Errorf("expected snapshot to leave 4 orders resting, got %d", sb.Len())
	}
	live, _ := sb.Get(2)
	live.SetRemaining(0)
	if snap[0].Remaining() != 1 {
		t.Errorf("expected snapshot copy to keep 1 unit, got %d", snap[0].Remaining())
	}
}

func TestSecurityBook_Find(t *testing.T) {
	book := NewSecurityBook("REL")
	book.Asks().Insert(makeOrder(9, domain.SideSell, 10, baseTime, 3), 1)

	o, ok := book.Find(9)
	if !ok {
		t.Fatal("expected order 9 to be found")
	}
	if o.Remaining() != 3 {
		t.Errorf("expected 3 units, got %d", o.Remaining())
	}
	if _, ok := book.Find(10); ok {
		t.Error("expected order 10 to be absent")
	}
}

// BookManager tests

func TestBookManager_GetOrCreate(t *testing.T) {
	bm := NewBookManager()
	book1 := bm.GetOrCreate("REL")
	if book1 == nil {
		t.Fatal("expected non-nil book")
	}
	if book1.SecurityID() != "REL" {
		t.Errorf("expected security REL, got %s", book1.SecurityID())
	}

	// Same security returns same book.
	book2 := bm.GetOrCreate("REL")
	if book1 != book2 {
		t.Error("expected same book instance for same security")
	}

	// Different security returns different book.
	book3 := bm.GetOrCreate("TATA")
	if book1 == book3 {
		t.Error("expected different book for different security")
	}
}

func TestBookManager_GetOrCreate_Concurrent(t *testing.T) {
	bm := NewBookManager()
	const goroutines = 50
	results := make(chan *SecurityBook, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			results <- bm.GetOrCreate("REL")
		}()
	}

	var first *SecurityBook
	for i := 0; i < goroutines; i++ {
		book := <-results
		if first == nil {
			first = book
		} else if book != first {
			t.Error("expected all goroutines to get the same book instance")
		}
	}
}

func TestBookManager_GetDoesNotCreate(t *testing.T) {
	bm := NewBookManager()
	if _, ok := bm.Get("REL"); ok {
		t.Error("expected no book before first use")
	}
	bm.GetOrCreate("REL")
	if _, ok := bm.Get("REL"); !ok {
		t.Error("expected book after GetOrCreate")
	}
}

func TestBookManager_BooksSortedAndReset(t *testing.T) {
	bm := NewBookManager()
	bm.GetOrCreate("TATA")
	bm.GetOrCreate("INFY")
	bm.GetOrCreate("REL")

	books := bm.Books()
	if len(books) != 3 {
		t.Fatalf("expected 3 books, got %d", len(books))
	}
	if books[0].SecurityID() != "INFY" || books[1].SecurityID() != "REL" || books[2].SecurityID() != "TATA" {
		t.Errorf("expected books sorted by security, got %s %s %s",
			books[0].SecurityID(), books[1].SecurityID(), books[2].SecurityID())
	}

	bm.Reset()
	if len(bm.Books()) != 0 {
		t.Error("expected no books after Reset")
	}
}
