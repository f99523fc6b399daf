package handlers

import (
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"match-engine/src/engine"
	"match-engine/src/models"
)

// OrderHandler is the ambient HTTP boundary around a *engine.MatchingEngine.
// It owns request-scoped concerns only (latency sampling, request counters);
// all matching/risk state lives in the engine.
type OrderHandler struct {
	Engine          *engine.MatchingEngine
	Risk            *engine.RiskManager
	StartTime       time.Time
	OrdersReceived  int64
	OrdersMatched   int64
	OrdersCancelled int64
	OrdersRejected  int64
	TradesExecuted  int64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewOrderHandler(eng *engine.MatchingEngine, risk *engine.RiskManager) *OrderHandler {
	maxLatencies := 10000
	if envMax := os.Getenv("METRICS_MAX_LATENCIES"); envMax != "" {
		if parsed, err := strconv.Atoi(envMax); err == nil && parsed > 0 {
			maxLatencies = parsed
		}
	}

	return &OrderHandler{
		Engine:       eng,
		Risk:         risk,
		StartTime:    time.Now(),
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	side, orderType, err := parseSideAndType(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	orderID := h.Engine.NextOrderID()
	order := engine.NewOrder(orderID, req.Symbol, side, orderType, req.Price, req.Quantity, time.Now().UnixMilli())

	startTime := time.Now()

	log.Info().
		Uint64("order_id", uint64(orderID)).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("type", req.Type).
		Int64("price", req.Price).
		Int64("quantity", req.Quantity).
		Str("ip", c.IP()).
		Msg("Order submitted")

	atomic.AddInt64(&h.OrdersReceived, 1)

	fills := h.Engine.Submit(order)

	h.recordLatency(time.Since(startTime))

	snapshot := order.Snapshot()

	trades := make([]models.TradeInfo, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, models.TradeInfo{
			TradeID:   f.TradeID,
			Price:     f.Price,
			Quantity:  f.Quantity,
			Timestamp: f.Timestamp,
		})
	}

	response := models.SubmitOrderResponse{
		OrderID:           formatOrderID(orderID),
		Status:            string(snapshot.Status),
		FilledQuantity:    snapshot.FilledQuantity,
		RemainingQuantity: order.Remaining(),
		RejectReason:      snapshot.RejectReason,
		Trades:            trades,
	}

	switch snapshot.Status {
	case engine.StatusFilled, engine.StatusPartiallyFilled:
		atomic.AddInt64(&h.OrdersMatched, 1)
	case engine.StatusRejected:
		atomic.AddInt64(&h.OrdersRejected, 1)
	}
	atomic.AddInt64(&h.TradesExecuted, int64(len(trades)))

	log.Info().
		Uint64("order_id", uint64(orderID)).
		Str("status", string(snapshot.Status)).
		Int64("filled_quantity", snapshot.FilledQuantity).
		Int64("remaining_quantity", order.Remaining()).
		Int("trades_count", len(trades)).
		Msg("Order processed")

	switch snapshot.Status {
	case engine.StatusRejected:
		return c.Status(fiber.StatusBadRequest).JSON(response)
	case engine.StatusNew:
		response.Message = "Order added to book"
		return c.Status(fiber.StatusCreated).JSON(response)
	case engine.StatusPartiallyFilled:
		return c.Status(fiber.StatusAccepted).JSON(response)
	default:
		return c.Status(fiber.StatusOK).JSON(response)
	}
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := parseOrderID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "Invalid order id"})
	}

	order, symbol, found := h.Engine.FindOrder(id)
	if !found {
		log.Warn().
			Str("order_id", c.Params("id")).
			Str("ip", c.IP()).
			Msg("Cancel order: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	if order.IsFilled() {
		log.Warn().
			Uint64("order_id", uint64(id)).
			Str("status", string(order.Status())).
			Msg("Cancel order: order already filled")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Cannot cancel: order already filled",
		})
	}

	if !h.Engine.Cancel(symbol, id) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Order could not be cancelled",
		})
	}

	atomic.AddInt64(&h.OrdersCancelled, 1)

	log.Info().
		Uint64("order_id", uint64(id)).
		Str("symbol", symbol).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID: formatOrderID(id),
		Status:  "CANCELLED",
	})
}

func (h *OrderHandler) ModifyOrder(c *fiber.Ctx) error {
	id, err := parseOrderID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "Invalid order id"})
	}

	var req models.ModifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	_, symbol, found := h.Engine.FindOrder(id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	if !h.Engine.Modify(symbol, id, req.Price, req.Quantity) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Order could not be modified (shrinking below filled quantity is not allowed)",
		})
	}

	order, _, _ := h.Engine.FindOrder(id)

	log.Info().
		Uint64("order_id", uint64(id)).
		Str("symbol", symbol).
		Int64("new_price", req.Price).
		Int64("new_quantity", req.Quantity).
		Msg("Order modified")

	return c.Status(fiber.StatusOK).JSON(models.ModifyOrderResponse{
		OrderID: formatOrderID(id),
		Status:  string(order.Status()),
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	defaultDepth := 10
	if envDepth := os.Getenv("ORDERBOOK_DEFAULT_DEPTH"); envDepth != "" {
		if parsed, err := strconv.Atoi(envDepth); err == nil && parsed > 0 {
			defaultDepth = parsed
		}
	}

	maxDepth := 1000
	if envMaxDepth := os.Getenv("ORDERBOOK_MAX_DEPTH"); envMaxDepth != "" {
		if parsed, err := strconv.Atoi(envMaxDepth); err == nil && parsed > 0 {
			maxDepth = parsed
		}
	}

	depthStr := c.Query("depth", strconv.Itoa(defaultDepth))
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = defaultDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}

	book, exists := h.Engine.OrderBook(symbol)
	if !exists {
		return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
			Symbol:    symbol,
			Timestamp: time.Now().UnixMilli(),
			Bids:      []models.PriceLevelInfo{},
			Asks:      []models.PriceLevelInfo{},
		})
	}

	bidsLevels := book.BidLevels(depth)
	asksLevels := book.AskLevels(depth)

	bids := make([]models.PriceLevelInfo, 0, len(bidsLevels))
	for _, level := range bidsLevels {
		bids = append(bids, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}

	asks := make([]models.PriceLevelInfo, 0, len(asksLevels))
	for _, level := range asksLevels {
		asks = append(asks, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}

	response := models.OrderBookResponse{
		Symbol:    symbol,
		Timestamp: time.Now().UnixMilli(),
		Bids:      bids,
		Asks:      asks,
	}
	if spread, ok := book.Spread(); ok {
		response.Spread = &spread
	}
	if mid, ok := book.Mid(); ok {
		response.Mid = &mid
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	id, err := parseOrderID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "Invalid order id"})
	}

	order, symbol, found := h.Engine.FindOrder(id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	snap := order.Snapshot()
	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:        formatOrderID(id),
		Symbol:         symbol,
		Side:           string(snap.Side),
		Type:           string(snap.Type),
		Price:          snap.Price,
		Quantity:       snap.Quantity,
		FilledQuantity: snap.FilledQuantity,
		Status:         string(snap.Status),
		RejectReason:   snap.RejectReason,
		Timestamp:      snap.Timestamp,
	})
}

// SetRiskLimits handles POST /api/v1/risk/limits, the teacher never shipped
// an equivalent since its matcher had no risk gate.
func (h *OrderHandler) SetRiskLimits(c *fiber.Ctx) error {
	if h.Risk == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Risk management is not enabled",
		})
	}

	var req models.SetSymbolRiskLimitsRequest
	if err := c.BodyParser(&req); err != nil || req.Symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: symbol is required",
		})
	}

	h.Risk.SetSymbolLimits(req.Symbol, engine.SymbolLimits{
		PositionLimit:  req.PositionLimit,
		OrderSizeLimit: req.OrderSizeLimit,
		NotionalLimit:  req.NotionalLimit,
	})

	effective := h.Risk.LimitsFor(req.Symbol)
	return c.Status(fiber.StatusOK).JSON(models.RiskLimitsResponse{
		Symbol:         req.Symbol,
		PositionLimit:  effective.PositionLimit,
		OrderSizeLimit: effective.OrderSizeLimit,
		NotionalLimit:  effective.NotionalLimit,
	})
}

// ResetRisk handles POST /api/v1/risk/reset.
func (h *OrderHandler) ResetRisk(c *fiber.Ctx) error {
	if h.Risk == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Risk management is not enabled",
		})
	}
	h.Risk.Reset()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	var ordersProcessed int64
	for _, symbol := range h.Engine.Symbols() {
		if book, ok := h.Engine.OrderBook(symbol); ok {
			ordersProcessed += int64(book.Len())
		}
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:          "healthy",
		UptimeSeconds:   int64(uptime),
		OrdersProcessed: ordersProcessed,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	var ordersInBook int64
	for _, symbol := range h.Engine.Symbols() {
		if book, ok := h.Engine.OrderBook(symbol); ok {
			ordersInBook += int64(book.Len())
		}
	}

	p50, p99, p999 := h.calculateLatencyPercentiles()
	throughput := h.calculateThroughput()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         atomic.LoadInt64(&h.OrdersReceived),
		OrdersMatched:          atomic.LoadInt64(&h.OrdersMatched),
		OrdersCancelled:        atomic.LoadInt64(&h.OrdersCancelled),
		OrdersRejected:         atomic.LoadInt64(&h.OrdersRejected),
		OrdersInBook:           ordersInBook,
		TradesExecuted:         atomic.LoadInt64(&h.TradesExecuted),
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: throughput,
	})
}

func (h *OrderHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(h.latencies) > h.maxLatencies {
		removeCount := len(h.latencies) - h.maxLatencies
		h.latencies = h.latencies[removeCount:]
	}
}

func (h *OrderHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	defer h.latenciesMu.RUnlock()

	if len(h.latencies) == 0 {
		return 0, 0, 0
	}

	latenciesCopy := make([]time.Duration, len(h.latencies))
	copy(latenciesCopy, h.latencies)

	sort.Slice(latenciesCopy, func(i, j int) bool {
		return latenciesCopy[i] < latenciesCopy[j]
	})

	p50Index := int(float64(len(latenciesCopy)) * 0.50)
	p99Index := int(float64(len(latenciesCopy)) * 0.99)
	p999Index := int(float64(len(latenciesCopy)) * 0.999)

	if p50Index >= len(latenciesCopy) {
		p50Index = len(latenciesCopy) - 1
	}
	if p99Index >= len(latenciesCopy) {
		p99Index = len(latenciesCopy) - 1
	}
	if p999Index >= len(latenciesCopy) {
		p999Index = len(latenciesCopy) - 1
	}

	p50 = float64(latenciesCopy[p50Index].Nanoseconds()) / 1e6
	p99 = float64(latenciesCopy[p99Index].Nanoseconds()) / 1e6
	p999 = float64(latenciesCopy[p999Index].Nanoseconds()) / 1e6

	return p50, p99, p999
}

func (h *OrderHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	ordersReceived := atomic.LoadInt64(&h.OrdersReceived)
	return float64(ordersReceived) / uptime
}

func parseSideAndType(req *models.SubmitOrderRequest) (engine.Side, engine.OrderType, error) {
	if req.Symbol == "" {
		return "", "", &ValidationError{Message: "Invalid order: symbol is required"}
	}

	var side engine.Side
	switch req.Side {
	case "BUY":
		side = engine.SideBuy
	case "SELL":
		side = engine.SideSell
	default:
		return "", "", &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	var orderType engine.OrderType
	switch req.Type {
	case "LIMIT":
		orderType = engine.TypeLimit
	case "MARKET":
		orderType = engine.TypeMarket
	case "IOC":
		orderType = engine.TypeIOC
	case "FOK":
		orderType = engine.TypeFOK
	default:
		return "", "", &ValidationError{Message: "Invalid order: type must be LIMIT, MARKET, IOC or FOK"}
	}

	if req.Quantity <= 0 {
		return "", "", &ValidationError{Message: "Invalid order: quantity must be positive"}
	}
	if orderType != engine.TypeMarket && req.Price <= 0 {
		return "", "", &ValidationError{Message: "Invalid order: price must be positive for LIMIT/IOC/FOK orders"}
	}

	return side, orderType, nil
}

func formatOrderID(id engine.OrderID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseOrderID(s string) (engine.OrderID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return engine.OrderID(id), nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
