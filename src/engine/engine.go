package engine

import (
	"sync"
	"sync/atomic"
)

// FillObserver and OrderObserver are the two optional observer slots from
// spec.md §4.4. Both are invoked synchronously on the submitting caller's
// stack; they must not call back into the engine (undefined behavior if
// they do).
type FillObserver func(Fill)
type OrderObserver func(OrderSnapshot)

// MatchingEngine owns a symbol -> OrderBook map, orchestrates the
// risk-check + matching + residual-handling pipeline of spec.md §4.2, and
// emits fill/order observations. It is designed for single-threaded,
// cooperative use (spec.md §5); the coarse mutex below exists only
// because the ambient HTTP harness drives it from many goroutines, and is
// documented rather than assumed away — see DESIGN.md.
type MatchingEngine struct {
	mu     sync.RWMutex
	books  map[string]*OrderBook
	risk   RiskGate
	nextID atomic.Uint64

	fillObserver  FillObserver
	orderObserver OrderObserver

	totalOrders atomic.Int64
	totalFills  atomic.Int64

	now func() int64 // unix millis clock, overridable for deterministic tests
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{
		books: make(map[string]*OrderBook),
		now:   defaultClock,
	}
}

func defaultClock() int64 { return nowMillis() }

// SetFillCallback installs the fill observer. Passing nil disables it.
func (e *MatchingEngine) SetFillCallback(cb FillObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fillObserver = cb
}

// SetOrderCallback installs the order-status observer. Passing nil
// disables it.
func (e *MatchingEngine) SetOrderCallback(cb OrderObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orderObserver = cb
}

// SetRiskManager installs the pre-trade risk gate. Passing nil disables
// risk checking entirely (every order is matched unconditionally).
func (e *MatchingEngine) SetRiskManager(risk RiskGate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.risk = risk
}

// NextOrderID hands out the next globally-unique order id. The caller
// (typically the embedding HTTP handler) is responsible for constructing
// the Order with it before calling Submit.
func (e *MatchingEngine) NextOrderID() OrderID {
	return OrderID(e.nextID.Add(1))
}

// OrderBook returns the book for symbol if one has been created (by a
// prior Submit that passed validation and the risk gate), and whether it
// exists. It never creates a
// book as a side effect, unlike the internal book-for-submit lookup.
func (e *MatchingEngine) OrderBook(symbol string) (*OrderBook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	book, ok := e.books[symbol]
	return book, ok
}

func (e *MatchingEngine) bookFor(symbol string) *OrderBook {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if exists {
		return book
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if book, exists := e.books[symbol]; exists {
		return book
	}
	book = NewOrderBook(symbol)
	e.books[symbol] = book
	return book
}

// FindOrder scans every book for id, returning its symbol alongside it.
// Callers that already know the symbol should prefer OrderBook.Order; this
// exists for the HTTP layer's by-id lookups, which (like the teacher's
// GetOrderStatus/CancelOrder) only have the id.
func (e *MatchingEngine) FindOrder(id OrderID) (order *Order, symbol string, found bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for sym, book := range e.books {
		if o, ok := book.Order(id); ok {
			return o, sym, true
		}
	}
	return nil, "", false
}

// Symbols returns every symbol with a book, for endpoints that enumerate
// all known markets (e.g. an aggregate health check).
func (e *MatchingEngine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	symbols := make([]string, 0, len(e.books))
	for sym := range e.books {
		symbols = append(symbols, sym)
	}
	return symbols
}

// Stats returns the monotonic counters from spec.md §6.
func (e *MatchingEngine) Stats() (totalOrdersProcessed, totalFillsGenerated int64) {
	return e.totalOrders.Load(), e.totalFills.Load()
}

func (e *MatchingEngine) observeFill(f Fill) {
	e.mu.RLock()
	cb := e.fillObserver
	e.mu.RUnlock()
	if cb != nil {
		cb(f)
	}
}

func (e *MatchingEngine) observeOrder(o *Order) {
	e.mu.RLock()
	cb := e.orderObserver
	e.mu.RUnlock()
	if cb != nil {
		cb(o.Snapshot())
	}
}

func (e *MatchingEngine) riskGate() RiskGate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.risk
}

// Submit is the venue's single entry point: risk gate, book lookup, match,
// residual handling, callbacks, exactly in the order spec.md §4.2
// prescribes.
func (e *MatchingEngine) Submit(order *Order) []Fill {
	e.totalOrders.Add(1)

	if reason := validateSubmission(order); reason != "" {
		order.reject(reason)
		e.observeOrder(order)
		return nil
	}

	if risk := e.riskGate(); risk != nil {
		if ok, reason := risk.Check(order); !ok {
			order.reject(reason)
			e.observeOrder(order)
			return nil
		}
	}

	book := e.bookFor(order.Symbol)

	limitPrice, unbounded := effectiveLimit(order)

	var fills []Fill
	if order.Type == TypeFOK {
		executed := false
		fills, executed = book.ExecuteIfAvailable(order.Side, order.ID, order.Remaining(), limitPrice, unbounded, e.now())
		if !executed {
			order.setStatus(StatusCancelled)
			e.observeOrder(order)
			return nil
		}
	} else {
		fills = book.ExecuteFill(order.Side, order.ID, order.Remaining(), limitPrice, unbounded, e.now())
	}

	for _, f := range fills {
		order.ApplyFill(f.Quantity)
		e.observeFill(f)
		if risk := e.riskGate(); risk != nil {
			risk.ApplyFill(f.Symbol, order.Side, f.Quantity, f.Price)
		}
	}
	if len(fills) > 0 {
		e.totalFills.Add(int64(len(fills)))
	}

	e.settleResidual(book, order)
	e.observeOrder(order)
	return fills
}

// settleResidual handles step 7 of spec.md §4.2: LIMIT rests, MARKET/IOC/
// FOK cancel whatever remains unmatched.
func (e *MatchingEngine) settleResidual(book *OrderBook, order *Order) {
	if order.Remaining() <= 0 {
		return
	}

	switch order.Type {
	case TypeLimit:
		// status is already NEW or PARTIALLY_FILLED, set by ApplyFill
		// (or left at its construction-time NEW if nothing matched).
		// Submit's caller observes the final status either way.
		if !book.Add(order) {
			order.reject("invalid order: duplicate id")
		}
	case TypeMarket, TypeIOC, TypeFOK:
		order.setStatus(StatusCancelled)
	}
}

// Cancel delegates to the symbol's book and, on success, notifies the
// order observer with the final CANCELLED status — resolving spec.md §9
// open question #2 in favor of emitting (the source never did).
func (e *MatchingEngine) Cancel(symbol string, id OrderID) bool {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if !exists {
		return false
	}

	order, ok := book.Order(id)
	if !ok {
		return false
	}
	if !book.Cancel(id) {
		return false
	}
	order.setStatus(StatusCancelled)
	e.observeOrder(order)
	return true
}

// Modify delegates to the symbol's book and, on success, notifies the
// order observer with the order's (possibly unchanged) status.
func (e *MatchingEngine) Modify(symbol string, id OrderID, newPrice, newQuantity int64) bool {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if !exists {
		return false
	}

	if !book.Modify(id, newPrice, newQuantity, e.now()) {
		return false
	}
	if order, ok := book.Order(id); ok {
		e.observeOrder(order)
	}
	return true
}

// effectiveLimit computes the book-level (limitPrice, unbounded) pair for
// an order's type, per spec.md §4.2 step 4. LIMIT/IOC/FOK use the order's
// own price as a bound; MARKET is unbounded in the direction that favors
// the aggressor (no cap on a buy, no floor on a sell) rather than the
// source's finite 1e12 sentinel — the explicit "no bound" flag design
// note §9 recommends.
func effectiveLimit(order *Order) (limitPrice int64, unbounded bool) {
	if order.Type == TypeMarket {
		return 0, true
	}
	return order.Price, false
}

// validateSubmission is the spec.md §7.1 validation-error check: a
// non-positive quantity or a negative price is rejected locally with
// "invalid order", before the order ever reaches the risk gate or a book.
// Duplicate ids can't be caught here since nothing about the order itself
// is wrong — they surface from settleResidual's OrderBook.Add call instead,
// which rejects the order if the id is already resting in the book.
func validateSubmission(order *Order) string {
	if order.Quantity <= 0 {
		return "invalid order: quantity must be positive"
	}
	if order.Price < 0 {
		return "invalid order: price must not be negative"
	}
	if order.Type == TypeLimit && order.Price == 0 {
		return "invalid order: LIMIT orders require a positive price"
	}
	return ""
}
