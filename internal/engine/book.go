package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/orderbook/internal/domain"
	"github.com/efreitasn/orderbook/internal/events"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const degree = 32

// bookEntry is a resting order together with its sort key. The key fields
// are copied out of the order when it is inserted; they never change while
// the entry is in the tree.
type bookEntry struct {
	price        decimal.Decimal
	priorityTime time.Time
	seq          uint64 // arrival order, breaks ties between equal timestamps
	order        *domain.Order
}

func mustSameSecurity(a, b bookEntry) {
	if a.order.SecurityID != b.order.SecurityID {
		panic(fmt.Sprintf("engine: orders %d (%s) and %d (%s) belong to different securities",
			a.order.ID, a.order.SecurityID, b.order.ID, b.order.SecurityID))
	}
}

// bidLess defines ordering for the bid side: price descending, then
// priority time ascending, then arrival ascending. Min() returns the best bid.
func bidLess(a, b bookEntry) bool {
	mustSameSecurity(a, b)
	if c := a.price.Cmp(b.price); c != 0 {
		return c > 0
	}
	if !a.priorityTime.Equal(b.priorityTime) {
		return a.priorityTime.Before(b.priorityTime)
	}
	return a.seq < b.seq
}

// askLess defines ordering for the ask side: price ascending, then
// priority time ascending, then arrival ascending. Min() returns the best ask.
func askLess(a, b bookEntry) bool {
	mustSameSecurity(a, b)
	if c := a.price.Cmp(b.price); c != 0 {
		return c < 0
	}
	if !a.priorityTime.Equal(b.priorityTime) {
		return a.priorityTime.Before(b.priorityTime)
	}
	return a.seq < b.seq
}

// SideBook holds the resting orders of one side of one security in
// price-time priority, with a secondary index for removal by order ID.
//
// SideBook is not safe for concurrent use on its own; every method must be
// called with the owning SecurityBook's lock held (read lock for the
// read-only methods).
type SideBook struct {
	side  domain.OrderSide
	less  btree.LessFunc[bookEntry]
	tree  *btree.BTreeG[bookEntry]
	index map[domain.OrderID]bookEntry
}

func newSideBook(side domain.OrderSide) *SideBook {
	less := askLess
	if side == domain.SideBuy {
		less = bidLess
	}
	return &SideBook{
		side:  side,
		less:  less,
		tree:  btree.NewG[bookEntry](degree, less),
		index: make(map[domain.OrderID]bookEntry),
	}
}

// Side returns which side of the market this book holds.
func (sb *SideBook) Side() domain.OrderSide {
	return sb.side
}

// Insert adds a resting order. seq must be unique within the book, and the
// order must not already be resting here.
func (sb *SideBook) Insert(o *domain.Order, seq uint64) {
	if _, ok := sb.index[o.ID]; ok {
		panic(fmt.Sprintf("engine: order %d is already resting on the %s side", o.ID, sb.side))
	}
	entry := bookEntry{
		price:        o.Price,
		priorityTime: o.PriorityTime(),
		seq:          seq,
		order:        o,
	}
	sb.tree.ReplaceOrInsert(entry)
	sb.index[o.ID] = entry
}

// Best returns the highest-priority order without removing it.
func (sb *SideBook) Best() (*domain.Order, bool) {
	entry, ok := sb.tree.Min()
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// Get returns the resting order with the given ID.
func (sb *SideBook) Get(id domain.OrderID) (*domain.Order, bool) {
	entry, ok := sb.index[id]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// Remove deletes the order with the given ID. It reports whether the order
// was resting here.
func (sb *SideBook) Remove(id domain.OrderID) bool {
	entry, ok := sb.index[id]
	if !ok {
		return false
	}
	delete(sb.index, id)
	sb.tree.Delete(entry)
	return true
}

// RemoveClient deletes every order placed by clientID and returns them in
// priority order.
func (sb *SideBook) RemoveClient(clientID string) []*domain.Order {
	var doomed []bookEntry
	sb.tree.Ascend(func(entry bookEntry) bool {
		if entry.order.ClientID == clientID {
			doomed = append(doomed, entry)
		}
		return true
	})
	removed := make([]*domain.Order, 0, len(doomed))
	for _, entry := range doomed {
		sb.tree.Delete(entry)
		delete(sb.index, entry.order.ID)
		removed = append(removed, entry.order)
	}
	return removed
}

// ContainsClient reports whether any resting order belongs to clientID.
func (sb *SideBook) ContainsClient(clientID string) bool {
	for _, entry := range sb.index {
		if entry.order.ClientID == clientID {
			return true
		}
	}
	return false
}

// FirstLimitPrice returns the price of the highest-priority limit order,
// skipping market orders parked at the sentinel price.
func (sb *SideBook) FirstLimitPrice() (decimal.Decimal, bool) {
	var (
		price decimal.Decimal
		found bool
	)
	sb.tree.Ascend(func(entry bookEntry) bool {
		if entry.order.Kind == domain.KindLimit {
			price = entry.price
			found = true
			return false
		}
		return true
	})
	return price, found
}

// Len returns the number of resting orders.
func (sb *SideBook) Len() int {
	return sb.tree.Len()
}

// scratch copies every entry, with a private copy of its order, into a new
// tree ordered like this one. The result shares nothing with the live book.
func (sb *SideBook) scratch() *btree.BTreeG[bookEntry] {
	out := btree.NewG[bookEntry](degree, sb.less)
	for _, entry := range sb.index {
		cp := *entry.order
		entry.order = &cp
		out.ReplaceOrInsert(entry)
	}
	return out
}

// drain empties a scratch tree into a slice, best first.
func drain(tree *btree.BTreeG[bookEntry]) []domain.Order {
	out := make([]domain.Order, 0, tree.Len())
	for {
		entry, ok := tree.DeleteMin()
		if !ok {
			return out
		}
		out = append(out, *entry.order)
	}
}

// Snapshot returns copies of the resting orders in priority order.
func (sb *SideBook) Snapshot() []domain.Order {
	return drain(sb.scratch())
}

// SecurityBook holds the bid and ask sides of one security. Its lock
// serialises every operation that reads then writes either side.
//
// Events produced under the lock are queued in the outbox and handed to the
// publisher by flush, one batch at a time, in the order they were queued.
type SecurityBook struct {
	securityID string
	mu         sync.RWMutex
	bids       *SideBook
	asks       *SideBook

	outboxMu sync.Mutex
	outbox   []events.Event
	flushMu  sync.Mutex
}

// NewSecurityBook creates an empty book for the given security.
func NewSecurityBook(securityID string) *SecurityBook {
	return &SecurityBook{
		securityID: securityID,
		bids:       newSideBook(domain.SideBuy),
		asks:       newSideBook(domain.SideSell),
	}
}

// SecurityID returns the security this book belongs to.
func (b *SecurityBook) SecurityID() string {
	return b.securityID
}

// Lock acquires the write lock on the book.
func (b *SecurityBook) Lock() {
	b.mu.Lock()
}

// Unlock releases the write lock on the book.
func (b *SecurityBook) Unlock() {
	b.mu.Unlock()
}

// RLock acquires the read lock on the book.
func (b *SecurityBook) RLock() {
	b.mu.RLock()
}

// RUnlock releases the read lock on the book.
func (b *SecurityBook) RUnlock() {
	b.mu.RUnlock()
}

// Side returns the side book for the given side.
func (b *SecurityBook) Side(side domain.OrderSide) *SideBook {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// Bids returns the buy side.
func (b *SecurityBook) Bids() *SideBook {
	return b.bids
}

// Asks returns the sell side.
func (b *SecurityBook) Asks() *SideBook {
	return b.asks
}

// Holds reports whether an order with the given ID rests on either side.
// The caller must hold the lock.
func (b *SecurityBook) Holds(id domain.OrderID) bool {
	_, onBid := b.bids.Get(id)
	_, onAsk := b.asks.Get(id)
	return onBid || onAsk
}

// enqueue appends events to the outbox. The caller must hold the write lock,
// so the outbox is in sequence order.
func (b *SecurityBook) enqueue(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	b.outboxMu.Lock()
	b.outbox = append(b.outbox, evts...)
	b.outboxMu.Unlock()
}

// flush publishes everything queued so far. Flushes are serialised, so a
// later batch never reaches the publisher before an earlier one. When flush
// returns, every event queued before the call has been published.
func (b *SecurityBook) flush(pub events.Publisher) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.outboxMu.Lock()
	evts := b.outbox
	b.outbox = nil
	b.outboxMu.Unlock()

	if len(evts) > 0 {
		pub.Publish(evts...)
	}
}

// Snapshot returns priority-ordered copies of both sides. The read lock is
// held only while the orders are copied; sorting happens after it is
// released.
func (b *SecurityBook) Snapshot() (bids, asks []domain.Order) {
	b.mu.RLock()
	bidScratch := b.bids.scratch()
	askScratch := b.asks.scratch()
	b.mu.RUnlock()

	return drain(bidScratch), drain(askScratch)
}

// Find returns a copy of the resting order with the given ID from either
// side.
func (b *SecurityBook) Find(id domain.OrderID) (domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if o, ok := b.bids.Get(id); ok {
		return *o, true
	}
	if o, ok := b.asks.Get(id); ok {
		return *o, true
	}
	return domain.Order{}, false
}

// BookManager is a thread-safe map of security → SecurityBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*SecurityBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*SecurityBook),
	}
}

// GetOrCreate returns the book for the given security, creating one if it
// doesn't already exist. Concurrent callers for a new security all receive
// the same instance.
func (bm *BookManager) GetOrCreate(securityID string) *SecurityBook {
	bm.mu.RLock()
	book, ok := bm.books[securityID]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[securityID]; ok {
		return book
	}
	book = NewSecurityBook(securityID)
	bm.books[securityID] = book
	return book
}

// Get returns the book for the given security without creating it.
func (bm *BookManager) Get(securityID string) (*SecurityBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[securityID]
	return book, ok
}

// Books returns every book, ordered by security ID.
func (bm *BookManager) Books() []*SecurityBook {
	bm.mu.RLock()
	out := make([]*SecurityBook, 0, len(bm.books))
	for _, book := range bm.books {
		out = append(out, book)
	}
	bm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].securityID < out[j].securityID
	})
	return out
}

// Reset drops every book. Operations already holding a book finish against
// the dropped instance.
func (bm *BookManager) Reset() {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.books = make(map[string]*SecurityBook)
}
