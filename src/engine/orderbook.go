package engine

import (
	"container/list"
	"sync"

	"github.com/google/btree"
)

// bidItem/askItem are the google/btree.Item wrappers the two price ladders
// are keyed by. Bids use an inverted Less so the btree's natural ascending
// order visits the highest price first (the teacher's trick in
// PriceLevelItem/PriceLevelItemAscending, generalized to hold a *priceLevel
// directly instead of re-wrapping on every lookup).
type bidItem struct{ level *priceLevel }

func (b *bidItem) Less(than btree.Item) bool {
	return b.level.price > than.(*bidItem).level.price
}

type askItem struct{ level *priceLevel }

func (a *askItem) Less(than btree.Item) bool {
	return a.level.price < than.(*askItem).level.price
}

// bookEntry is the id index's O(1) handle: the side and price locate the
// ladder and level, the *list.Element locates the order inside that
// level's FIFO queue without a scan.
type bookEntry struct {
	side  Side
	price int64
	level *priceLevel
	elem  *list.Element
}

// OrderBook maintains price-time priority for one symbol. It does not
// match orders itself — ExecuteFill is the matching primitive the engine
// drives; Add/Cancel/Modify only mutate book state.
type OrderBook struct {
	Symbol string

	mu      sync.RWMutex
	bids    *btree.BTree // bidItem, highest price first
	asks    *btree.BTree // askItem, lowest price first
	entries map[OrderID]*bookEntry
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:  symbol,
		bids:    btree.New(32),
		asks:    btree.New(32),
		entries: make(map[OrderID]*bookEntry),
	}
}

// Add rests order in the book. Returns false (no state change) if the
// order's remaining quantity is non-positive, its price is negative, or
// its id is already live in this book.
func (ob *OrderBook) Add(order *Order) bool {
	if order.Remaining() <= 0 || order.Price < 0 {
		return false
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.entries[order.ID]; exists {
		return false
	}

	level := ob.getOrCreateLevel(order.Side, order.Price)
	elem := level.orders.PushBack(order)
	level.totalQty += order.Remaining()

	ob.entries[order.ID] = &bookEntry{
		side:  order.Side,
		price: order.Price,
		level: level,
		elem:  elem,
	}
	return true
}

// getOrCreateLevel must be called with ob.mu held.
func (ob *OrderBook) getOrCreateLevel(side Side, price int64) *priceLevel {
	tree := ob.treeFor(side)

	probe := ob.levelItem(side, price)
	if existing := tree.Get(probe); existing != nil {
		return ob.levelOf(side, existing)
	}

	level := newPriceLevel(price)
	tree.ReplaceOrInsert(ob.levelItem(side, price))
	// re-fetch so the stored item's *priceLevel pointer is the real one
	stored := tree.Get(probe)
	ob.setLevel(side, stored, level)
	return level
}

func (ob *OrderBook) treeFor(side Side) *btree.BTree {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) levelItem(side Side, price int64) btree.Item {
	if side == SideBuy {
		return &bidItem{level: &priceLevel{price: price}}
	}
	return &askItem{level: &priceLevel{price: price}}
}

func (ob *OrderBook) levelOf(side Side, item btree.Item) *priceLevel {
	if side == SideBuy {
		return item.(*bidItem).level
	}
	return item.(*askItem).level
}

// setLevel replaces a just-inserted placeholder item's level in place so
// the level created by getOrCreateLevel is the one actually stored in the
// tree (ReplaceOrInsert copies the interface value, not the pointee).
func (ob *OrderBook) setLevel(side Side, item btree.Item, level *priceLevel) {
	if side == SideBuy {
		item.(*bidItem).level = level
		return
	}
	item.(*askItem).level = level
}

// Cancel removes a live order from the book in O(1). Returns false if the
// id is not present.
func (ob *OrderBook) Cancel(id OrderID) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.cancelLocked(id)
}

func (ob *OrderBook) cancelLocked(id OrderID) bool {
	entry, exists := ob.entries[id]
	if !exists {
		return false
	}

	order := entry.elem.Value.(*Order)
	entry.level.totalQty -= order.Remaining()
	entry.level.orders.Remove(entry.elem)
	delete(ob.entries, id)

	if entry.level.empty() {
		ob.treeFor(entry.side).Delete(ob.levelItem(entry.side, entry.price))
	}
	return true
}

// Modify changes a live order's price and/or quantity. newPrice == 0 and
// newQuantity == 0 are "keep existing" sentinels. A price change re-adds
// the order at the tail of its new level with a refreshed timestamp,
// losing time priority; a quantity-only change preserves queue position.
// Reducing quantity below the already-filled amount is rejected (false):
// silently treating the order as FILLED when the caller only asked to
// shrink it would be the more surprising of the two documented options.
func (ob *OrderBook) Modify(id OrderID, newPrice, newQuantity, timestamp int64) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	entry, exists := ob.entries[id]
	if !exists {
		return false
	}
	order := entry.elem.Value.(*Order)

	if newQuantity != 0 && newQuantity < order.FilledQuantity() {
		return false
	}

	priceChanged := newPrice != 0 && newPrice != order.Price
	qtyChanged := newQuantity != 0 && newQuantity != order.Quantity

	if !priceChanged && !qtyChanged {
		return true
	}

	if priceChanged {
		if newPrice < 0 {
			return false
		}
		ob.cancelLocked(id)
		order.Price = newPrice
		if qtyChanged {
			order.Quantity = newQuantity
		}
		order.Timestamp = timestamp
		level := ob.getOrCreateLevel(order.Side, order.Price)
		elem := level.orders.PushBack(order)
		level.totalQty += order.Remaining()
		ob.entries[id] = &bookEntry{side: order.Side, price: order.Price, level: level, elem: elem}
		return true
	}

	// quantity-only change: keep queue position, adjust the level total by
	// the delta.
	delta := newQuantity - order.Quantity
	order.Quantity = newQuantity
	entry.level.totalQty += delta
	return true
}

// BestBid returns the highest bid price and its aggregated remaining
// quantity. ok is false if the bid side is empty.
func (ob *OrderBook) BestBid() (price, quantity int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bestOf(ob.bids, SideBuy)
}

// BestAsk returns the lowest ask price and its aggregated remaining
// quantity. ok is false if the ask side is empty.
func (ob *OrderBook) BestAsk() (price, quantity int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bestOf(ob.asks, SideSell)
}

func (ob *OrderBook) bestOf(tree *btree.BTree, side Side) (price, quantity int64, ok bool) {
	item := tree.Min()
	if item == nil {
		return 0, 0, false
	}
	level := ob.levelOf(side, item)
	return level.price, level.totalQty, true
}

// Spread is best_ask - best_bid; ok is false if either side is empty.
func (ob *OrderBook) Spread() (spread int64, ok bool) {
	bid, _, bidOK := ob.BestBid()
	ask, _, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return ask - bid, true
}

// Mid is (best_bid + best_ask) / 2; ok is false if either side is empty.
// Returned as a float64 since the midpoint of two ticks need not be an
// integer tick itself.
func (ob *OrderBook) Mid() (mid float64, ok bool) {
	bid, _, bidOK := ob.BestBid()
	ask, _, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return float64(bid+ask) / 2, true
}

// Level is one price/aggregated-quantity pair of a book depth snapshot.
type Level struct {
	Price    int64
	Quantity int64
}

// BidLevels returns the first n bid levels, highest price first. Stable
// snapshot: later mutation of the book does not affect the returned slice.
func (ob *OrderBook) BidLevels(n int) []Level {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.levels(ob.bids, SideBuy, n)
}

// AskLevels returns the first n ask levels, lowest price first.
func (ob *OrderBook) AskLevels(n int) []Level {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.levels(ob.asks, SideSell, n)
}

func (ob *OrderBook) levels(tree *btree.BTree, side Side, n int) []Level {
	out := make([]Level, 0, n)
	tree.Ascend(func(item btree.Item) bool {
		if len(out) >= n {
			return false
		}
		level := ob.levelOf(side, item)
		out = append(out, Level{Price: level.price, Quantity: level.totalQty})
		return true
	})
	return out
}

// Order looks up a live order by id.
func (ob *OrderBook) Order(id OrderID) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	entry, exists := ob.entries[id]
	if !exists {
		return nil, false
	}
	return entry.elem.Value.(*Order), true
}

// Len returns the number of live orders resting in the book.
func (ob *OrderBook) Len() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.entries)
}

// AvailableQuantity returns the cumulative remaining quantity resting on
// the opposite side of aggressorSide, at or within limitPrice. unbounded
// ignores limitPrice entirely. The engine's FOK path does not call this;
// it uses the lock-held variant inside ExecuteIfAvailable.
func (ob *OrderBook) AvailableQuantity(aggressorSide Side, limitPrice int64, unbounded bool) int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.availableQuantityLocked(aggressorSide, limitPrice, unbounded)
}

// availableQuantityLocked must be called with ob.mu held (for reading or
// writing).
func (ob *OrderBook) availableQuantityLocked(aggressorSide Side, limitPrice int64, unbounded bool) int64 {
	var total int64
	if aggressorSide == SideBuy {
		ob.asks.Ascend(func(item btree.Item) bool {
			level := item.(*askItem).level
			if !unbounded && level.price > limitPrice {
				return false
			}
			total += level.totalQty
			return true
		})
	} else {
		ob.bids.Ascend(func(item btree.Item) bool {
			level := item.(*bidItem).level
			if !unbounded && level.price < limitPrice {
				return false
			}
			total += level.totalQty
			return true
		})
	}
	return total
}

// ExecuteFill is the matching primitive: it consumes resting liquidity on
// the side opposite aggressorSide, in price-time priority, stopping at the
// first level that violates limitPrice (unless unbounded), or when qty is
// exhausted, or when the opposite side runs dry. It mutates both the
// aggressor order (via the caller, through the returned fills — the
// aggressor itself is not resident in this book) and every passive order
// it consumes, and prunes filled orders/emptied levels from the book. It
// does not add any residual back to the book; that is the engine's job.
func (ob *OrderBook) ExecuteFill(aggressorSide Side, aggressorID OrderID, qty, limitPrice int64, unbounded bool, timestamp int64) []Fill {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.executeFillLocked(aggressorSide, aggressorID, qty, limitPrice, unbounded, timestamp)
}

// ExecuteIfAvailable is the atomic FOK primitive: under a single critical
// section, it checks that qty is fully coverable at-or-within limitPrice
// and, only if so, executes it. Unlike a separate AvailableQuantity +
// ExecuteFill call pair, no other Cancel/Modify/Submit on this book can be
// interleaved between the check and the act, so the all-or-nothing
// guarantee holds under concurrent callers, not just in isolation.
// executed is false (fills is nil) if the check failed; no state changed.
func (ob *OrderBook) ExecuteIfAvailable(aggressorSide Side, aggressorID OrderID, qty, limitPrice int64, unbounded bool, timestamp int64) (fills []Fill, executed bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.availableQuantityLocked(aggressorSide, limitPrice, unbounded) < qty {
		return nil, false
	}
	return ob.executeFillLocked(aggressorSide, aggressorID, qty, limitPrice, unbounded, timestamp), true
}

// executeFillLocked must be called with ob.mu held for writing.
func (ob *OrderBook) executeFillLocked(aggressorSide Side, aggressorID OrderID, qty, limitPrice int64, unbounded bool, timestamp int64) []Fill {
	var fills []Fill
	remaining := qty

	tree := ob.asks
	if aggressorSide == SideSell {
		tree = ob.bids
	}

	for remaining > 0 {
		item := tree.Min()
		if item == nil {
			break
		}
		level := ob.levelOf(oppositeSide(aggressorSide), item)

		if !unbounded {
			if aggressorSide == SideBuy && level.price > limitPrice {
				break
			}
			if aggressorSide == SideSell && level.price < limitPrice {
				break
			}
		}

		for remaining > 0 && !level.empty() {
			passive := level.head()
			passiveRemaining := passive.Remaining()
			if passiveRemaining <= 0 {
				// defensive: an exhausted order should already have been
				// popped; never leave it blocking the queue.
				level.orders.Remove(level.orders.Front())
				continue
			}

			execQty := remaining
			if execQty > passiveRemaining {
				execQty = passiveRemaining
			}

			fills = append(fills, newFill(ob.Symbol, aggressorSide, aggressorID, passive.ID, level.price, execQty, timestamp))

			passive.ApplyFill(execQty)
			level.totalQty -= execQty
			remaining -= execQty

			if passive.IsFilled() {
				level.orders.Remove(level.orders.Front())
				delete(ob.entries, passive.ID)
			}
		}

		if level.empty() {
			tree.Delete(ob.levelItem(oppositeSide(aggressorSide), level.price))
		}
	}

	return fills
}

func oppositeSide(side Side) Side {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}
