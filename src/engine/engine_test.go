package engine

import "testing"

func TestSubmitRestsLimitOrderWhenBookEmpty(t *testing.T) {
	eng := NewMatchingEngine()
	order := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 100, 0)

	fills := eng.Submit(order)
	if len(fills) != 0 {
		t.Fatalf("expected no fills against an empty book, got %d", len(fills))
	}
	if order.Status() != StatusNew {
		t.Errorf("expected resting order to remain NEW, got %s", order.Status())
	}

	book, ok := eng.OrderBook("AAPL")
	if !ok || book.Len() != 1 {
		t.Fatalf("expected order to rest in the book")
	}
}

func TestSubmitLimitCrossesAndFills(t *testing.T) {
	eng := NewMatchingEngine()
	resting := NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 100, 0)
	eng.Submit(resting)

	aggressor := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 100, 0)
	fills := eng.Submit(aggressor)

	if len(fills) != 1 || fills[0].Quantity != 100 {
		t.Fatalf("expected a single 100-quantity fill, got %+v", fills)
	}
	if aggressor.Status() != StatusFilled {
		t.Errorf("expected aggressor FILLED, got %s", aggressor.Status())
	}
	if resting.Status() != StatusFilled {
		t.Errorf("expected resting order FILLED, got %s", resting.Status())
	}

	totalOrders, totalFills := eng.Stats()
	if totalOrders != 2 || totalFills != 1 {
		t.Errorf("unexpected stats: orders=%d fills=%d", totalOrders, totalFills)
	}
}

func TestSubmitMarketSweepsMultipleLevels(t *testing.T) {
	eng := NewMatchingEngine()
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 100, 0))
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15100, 200, 0))

	market := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeMarket, 0, 250, 0)
	fills := eng.Submit(market)

	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if market.Status() != StatusFilled {
		t.Errorf("expected market order FILLED, got %s", market.Status())
	}

	book, _ := eng.OrderBook("AAPL")
	_, qty, ok := book.BestAsk()
	if !ok || qty != 50 {
		t.Fatalf("expected 50 remaining at best ask, got qty=%d ok=%v", qty, ok)
	}
}

func TestSubmitIOCCancelsUnfilledResidual(t *testing.T) {
	eng := NewMatchingEngine()
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 50, 0))

	ioc := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeIOC, 15000, 100, 0)
	fills := eng.Submit(ioc)

	if len(fills) != 1 || fills[0].Quantity != 50 {
		t.Fatalf("expected a single 50-quantity fill, got %+v", fills)
	}
	if ioc.Status() != StatusCancelled {
		t.Errorf("expected IOC residual CANCELLED, got %s", ioc.Status())
	}
	if ioc.FilledQuantity() != 50 {
		t.Errorf("expected 50 filled before cancellation, got %d", ioc.FilledQuantity())
	}

	book, _ := eng.OrderBook("AAPL")
	if book.Len() != 0 {
		t.Error("expected the IOC order to never rest in the book")
	}
}

func TestSubmitFOKCancelsWithoutAnyFillWhenUnsatisfiable(t *testing.T) {
	eng := NewMatchingEngine()
	resting := NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 50, 0)
	eng.Submit(resting)

	fok := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeFOK, 15000, 100, 0)
	fills := eng.Submit(fok)

	if len(fills) != 0 {
		t.Fatalf("expected FOK to produce no fills when unsatisfiable, got %+v", fills)
	}
	if fok.Status() != StatusCancelled {
		t.Errorf("expected unsatisfiable FOK CANCELLED, got %s", fok.Status())
	}
	if resting.FilledQuantity() != 0 {
		t.Errorf("expected resting order untouched, got filled=%d", resting.FilledQuantity())
	}
}

func TestSubmitFOKFillsCompletelyWhenSatisfiable(t *testing.T) {
	eng := NewMatchingEngine()
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 50, 0))
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15100, 100, 0))

	fok := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeFOK, 15100, 120, 0)
	fills := eng.Submit(fok)

	if fok.Status() != StatusFilled {
		t.Fatalf("expected satisfiable FOK FILLED, got %s (fills=%+v)", fok.Status(), fills)
	}
	var total int64
	for _, f := range fills {
		total += f.Quantity
	}
	if total != 120 {
		t.Errorf("expected 120 total quantity filled, got %d", total)
	}
}

func TestSubmitRejectsOnRiskFailure(t *testing.T) {
	eng := NewMatchingEngine()
	risk := NewRiskManager()
	risk.SetSymbolLimits("AAPL", SymbolLimits{OrderSizeLimit: 100})
	eng.SetRiskManager(risk)

	order := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 200, 0)
	fills := eng.Submit(order)

	if len(fills) != 0 {
		t.Fatalf("expected no fills for a risk-rejected order, got %+v", fills)
	}
	if order.Status() != StatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status())
	}

	if _, ok := eng.OrderBook("AAPL"); ok {
		t.Error("expected no book to be created for a risk-rejected order")
	}
}

func TestSubmitUpdatesRiskPositionFromFills(t *testing.T) {
	eng := NewMatchingEngine()
	risk := NewRiskManager()
	eng.SetRiskManager(risk)

	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 100, 0))

	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 60, 0))
	if got := risk.Position("AAPL"); got != 60 {
		t.Fatalf("expected position 60 after a 60-share buy fill against resting liquidity, got %d", got)
	}

	// Fills the resting sell's remaining 40, rests 10 at 15100.
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15100, 50, 0))
	if got := risk.Position("AAPL"); got != 100 {
		t.Fatalf("expected position 100 after a further 40-share buy fill, got %d", got)
	}

	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15100, 10, 0))
	if got := risk.Position("AAPL"); got != 90 {
		t.Fatalf("expected position 90 (net filled buy 100 - sell 10), got %d", got)
	}
}

func TestSubmitInvokesFillAndOrderObservers(t *testing.T) {
	eng := NewMatchingEngine()

	var fillCount, orderCount int
	eng.SetFillCallback(func(Fill) { fillCount++ })
	eng.SetOrderCallback(func(OrderSnapshot) { orderCount++ })

	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideSell, TypeLimit, 15000, 100, 0))
	eng.Submit(NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 100, 0))

	if fillCount != 1 {
		t.Errorf("expected 1 fill observation, got %d", fillCount)
	}
	if orderCount != 2 {
		t.Errorf("expected 2 order observations (one per Submit), got %d", orderCount)
	}
}

func TestCancelNotifiesOrderObserver(t *testing.T) {
	eng := NewMatchingEngine()
	var lastStatus OrderStatus
	eng.SetOrderCallback(func(s OrderSnapshot) { lastStatus = s.Status })

	id := eng.NextOrderID()
	eng.Submit(NewOrder(id, "AAPL", SideBuy, TypeLimit, 15000, 100, 0))

	if !eng.Cancel("AAPL", id) {
		t.Fatal("expected cancel to succeed")
	}
	if lastStatus != StatusCancelled {
		t.Errorf("expected last observed status CANCELLED, got %s", lastStatus)
	}
	if eng.Cancel("AAPL", id) {
		t.Error("expected second cancel of the same id to fail")
	}
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	eng := NewMatchingEngine()

	zeroQty := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 15000, 0, 0)
	if eng.Submit(zeroQty); zeroQty.Status() != StatusRejected {
		t.Errorf("expected zero-quantity order REJECTED, got %s", zeroQty.Status())
	}

	negativePrice := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, -1, 10, 0)
	if eng.Submit(negativePrice); negativePrice.Status() != StatusRejected {
		t.Errorf("expected negative-price order REJECTED, got %s", negativePrice.Status())
	}

	zeroLimitPrice := NewOrder(eng.NextOrderID(), "AAPL", SideBuy, TypeLimit, 0, 10, 0)
	if eng.Submit(zeroLimitPrice); zeroLimitPrice.Status() != StatusRejected {
		t.Errorf("expected zero-price LIMIT order REJECTED, got %s", zeroLimitPrice.Status())
	}
}

func TestSubmitRejectsDuplicateOrderID(t *testing.T) {
	eng := NewMatchingEngine()

	id := eng.NextOrderID()
	first := NewOrder(id, "AAPL", SideBuy, TypeLimit, 15000, 10, 0)
	eng.Submit(first)
	if first.Status() != StatusNew {
		t.Fatalf("expected first order to rest NEW, got %s", first.Status())
	}

	duplicate := NewOrder(id, "AAPL", SideBuy, TypeLimit, 15100, 5, 0)
	eng.Submit(duplicate)
	if duplicate.Status() != StatusRejected {
		t.Errorf("expected duplicate-id order REJECTED, got %s", duplicate.Status())
	}

	book, ok := eng.OrderBook("AAPL")
	if !ok {
		t.Fatal("expected a book to exist for AAPL")
	}
	if _, ok := book.Order(id); !ok {
		t.Fatal("expected the original order to still be resting in the book")
	}
}
