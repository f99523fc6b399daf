package engine

import "testing"

func TestOrderBookAddAndBestPrices(t *testing.T) {
	book := NewOrderBook("AAPL")

	book.Add(NewOrder(1, "AAPL", SideBuy, TypeLimit, 15000, 100, 1))
	book.Add(NewOrder(2, "AAPL", SideBuy, TypeLimit, 15100, 50, 2))
	book.Add(NewOrder(3, "AAPL", SideSell, TypeLimit, 15300, 75, 3))
	book.Add(NewOrder(4, "AAPL", SideSell, TypeLimit, 15200, 25, 4))

	bidPrice, bidQty, ok := book.BestBid()
	if !ok || bidPrice != 15100 || bidQty != 50 {
		t.Fatalf("unexpected best bid: price=%d qty=%d ok=%v", bidPrice, bidQty, ok)
	}

	askPrice, askQty, ok := book.BestAsk()
	if !ok || askPrice != 15200 || askQty != 25 {
		t.Fatalf("unexpected best ask: price=%d qty=%d ok=%v", askPrice, askQty, ok)
	}

	spread, ok := book.Spread()
	if !ok || spread != 100 {
		t.Errorf("expected spread 100, got %d", spread)
	}

	mid, ok := book.Mid()
	if !ok || mid != 15150 {
		t.Errorf("expected mid 15150, got %f", mid)
	}
}

func TestOrderBookCancelThenNewBest(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideBuy, TypeLimit, 15000, 100, 1))
	book.Add(NewOrder(2, "AAPL", SideBuy, TypeLimit, 14900, 200, 2))

	if !book.Cancel(1) {
		t.Fatal("expected cancel of live order to succeed")
	}
	if book.Cancel(999) {
		t.Error("expected cancel of unknown id to fail")
	}

	price, qty, ok := book.BestBid()
	if !ok || price != 14900 || qty != 200 {
		t.Fatalf("expected new best bid 14900x200, got price=%d qty=%d ok=%v", price, qty, ok)
	}
	if book.Len() != 1 {
		t.Errorf("expected 1 live order remaining, got %d", book.Len())
	}
}

func TestOrderBookModifyQuantityOnlyKeepsTimePriority(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideBuy, TypeLimit, 15000, 100, 1))
	book.Add(NewOrder(2, "AAPL", SideBuy, TypeLimit, 15000, 50, 2))

	if !book.Modify(1, 15000, 25, 3) {
		t.Fatal("expected quantity-only modify to succeed")
	}
	order1, _ := book.Order(1)
	if order1.Quantity != 25 {
		t.Errorf("expected quantity 25 after modify, got %d", order1.Quantity)
	}

	_, qty, _ := book.BestBid()
	if qty != 75 {
		t.Errorf("expected aggregated level quantity 75, got %d", qty)
	}

	fills := book.ExecuteFill(SideSell, 99, 30, 15000, false, 10)
	if len(fills) != 2 {
		t.Fatalf("expected two fills (order1 first despite smaller size), got %d", len(fills))
	}
	if fills[0].CounterID != 1 {
		t.Errorf("expected order 1 to retain time priority and fill first, got counter %d", fills[0].CounterID)
	}
}

func TestOrderBookModifyRejectsShrinkBelowFilled(t *testing.T) {
	book := NewOrderBook("AAPL")
	order := NewOrder(1, "AAPL", SideBuy, TypeLimit, 15000, 100, 1)
	book.Add(order)

	book.ExecuteFill(SideSell, 2, 60, 15000, false, 2)
	if order.FilledQuantity() != 60 {
		t.Fatalf("setup: expected 60 filled, got %d", order.FilledQuantity())
	}

	if book.Modify(1, 0, 40, 3) {
		t.Error("expected modify shrinking below filled quantity to be rejected")
	}
	if book.Modify(1, 0, 50, 3) {
		t.Error("expected modify to 50 (< filled 60) to be rejected")
	}
	if !book.Modify(1, 0, 80, 3) {
		t.Error("expected modify to 80 (>= filled 60) to succeed")
	}
}

func TestExecuteFillRestThenCross(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideSell, TypeLimit, 15000, 100, 1))

	fills := book.ExecuteFill(SideBuy, 2, 100, 15000, false, 2)
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].Price != 15000 || fills[0].Quantity != 100 {
		t.Errorf("unexpected fill: %+v", fills[0])
	}
	if book.Len() != 0 {
		t.Errorf("expected fully-filled passive order to be pruned, got %d live orders", book.Len())
	}
}

func TestExecuteFillMarketSweepAcrossLevels(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideSell, TypeLimit, 15000, 100, 1))
	book.Add(NewOrder(2, "AAPL", SideSell, TypeLimit, 15100, 200, 2))

	fills := book.ExecuteFill(SideBuy, 3, 250, 0, true, 3)
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills sweeping both levels, got %d", len(fills))
	}
	if fills[0].Price != 15000 || fills[0].Quantity != 100 {
		t.Errorf("expected first fill to exhaust the cheaper level, got %+v", fills[0])
	}
	if fills[1].Price != 15100 || fills[1].Quantity != 150 {
		t.Errorf("expected second fill to take 150 from the second level, got %+v", fills[1])
	}

	price, qty, ok := book.BestAsk()
	if !ok || price != 15100 || qty != 50 {
		t.Fatalf("expected remaining 50 at 15100, got price=%d qty=%d ok=%v", price, qty, ok)
	}
}

func TestAvailableQuantityRespectsLimitPrice(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideSell, TypeLimit, 15000, 50, 1))
	book.Add(NewOrder(2, "AAPL", SideSell, TypeLimit, 15100, 200, 2))

	if got := book.AvailableQuantity(SideBuy, 15000, false); got != 50 {
		t.Errorf("expected 50 available at or below 15000, got %d", got)
	}
	if got := book.AvailableQuantity(SideBuy, 15100, false); got != 250 {
		t.Errorf("expected 250 available at or below 15100, got %d", got)
	}
	if got := book.AvailableQuantity(SideBuy, 0, true); got != 250 {
		t.Errorf("expected 250 available unbounded, got %d", got)
	}
}

func TestBidLevelsOrdering(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.Add(NewOrder(1, "AAPL", SideBuy, TypeLimit, 15000, 100, 1))
	book.Add(NewOrder(2, "AAPL", SideBuy, TypeLimit, 15200, 50, 2))
	book.Add(NewOrder(3, "AAPL", SideBuy, TypeLimit, 15100, 25, 3))

	levels := book.BidLevels(10)
	if len(levels) != 3 {
		t.Fatalf("expected 3 bid levels, got %d", len(levels))
	}
	want := []int64{15200, 15100, 15000}
	for i, level := range levels {
		if level.Price != want[i] {
			t.Errorf("level %d: expected price %d, got %d", i, want[i], level.Price)
		}
	}

	if got := book.BidLevels(2); len(got) != 2 {
		t.Errorf("expected BidLevels(2) to cap at 2, got %d", len(got))
	}
}
