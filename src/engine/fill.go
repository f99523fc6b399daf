package engine

import "github.com/google/uuid"

// Fill is one execution produced by the matching loop. Immutable once
// created; the engine retains no fill history beyond its stats counters.
type Fill struct {
	TradeID       string
	AggressorID   OrderID
	CounterID     OrderID
	Symbol        string
	AggressorSide Side
	Price         int64
	Quantity      int64
	Timestamp     int64
}

func newFill(symbol string, aggressorSide Side, aggressorID, counterID OrderID, price, quantity, timestamp int64) Fill {
	return Fill{
		TradeID:       uuid.New().String(),
		AggressorID:   aggressorID,
		CounterID:     counterID,
		Symbol:        symbol,
		AggressorSide: aggressorSide,
		Price:         price,
		Quantity:      quantity,
		Timestamp:     timestamp,
	}
}
