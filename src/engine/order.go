package engine

import (
	"sync"
	"sync/atomic"
)

// OrderID is a 64-bit identifier, unique across all live orders in the engine.
type OrderID uint64

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
	TypeIOC    OrderType = "IOC"
	TypeFOK    OrderType = "FOK"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Order is an engine-owned order record. Price is an integer tick (the
// teacher's "cents" convention, generalized to an arbitrary tick size); 0 is
// the "no limit" sentinel for MARKET orders.
type Order struct {
	ID       OrderID
	Symbol   string
	Side     Side
	Type     OrderType
	Price    int64
	Quantity int64

	filledQty atomic.Int64

	statusMu  sync.Mutex
	status    OrderStatus
	reason    string // set only when status is REJECTED
	Timestamp int64  // unix millis; refreshed on a price-changing modify
}

func NewOrder(id OrderID, symbol string, side Side, orderType OrderType, price, quantity, timestamp int64) *Order {
	return &Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Price:     price,
		Quantity:  quantity,
		status:    StatusNew,
		Timestamp: timestamp,
	}
}

func (o *Order) FilledQuantity() int64 {
	return o.filledQty.Load()
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.filledQty.Load()
}

func (o *Order) IsFilled() bool {
	return o.filledQty.Load() >= o.Quantity
}

// ApplyFill records an execution against this order and advances its
// status. quantity must be in (0, Remaining()].
func (o *Order) ApplyFill(quantity int64) {
	newFilled := o.filledQty.Add(quantity)

	o.statusMu.Lock()
	if newFilled >= o.Quantity {
		o.status = StatusFilled
	} else {
		o.status = StatusPartiallyFilled
	}
	o.statusMu.Unlock()
}

func (o *Order) Status() OrderStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.status
}

func (o *Order) setStatus(status OrderStatus) {
	o.statusMu.Lock()
	o.status = status
	o.statusMu.Unlock()
}

// reject marks the order REJECTED with a human-readable reason, per
// spec.md §7's "rejected order callback with a human-readable reason".
func (o *Order) reject(reason string) {
	o.statusMu.Lock()
	o.status = StatusRejected
	o.reason = reason
	o.statusMu.Unlock()
}

func (o *Order) rejectReason() string {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.reason
}

// OrderSnapshot is an immutable copy of an order's state, safe to hand to
// callers and observers without exposing the live order's internal locks.
type OrderSnapshot struct {
	ID             OrderID
	Symbol         string
	Side           Side
	Type           OrderType
	Price          int64
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	RejectReason   string
	Timestamp      int64
}

func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Type:           o.Type,
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity(),
		Status:         o.Status(),
		RejectReason:   o.rejectReason(),
		Timestamp:      o.Timestamp,
	}
}
