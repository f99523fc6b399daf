package models

// SubmitOrderRequest is the wire shape of POST /api/v1/orders. Price is in
// integer ticks (the teacher's "cents" convention); required for LIMIT/IOC/
// FOK. Matching ignores it for MARKET, but a price sent with a MARKET order
// is still stored on the order and used by the risk gate's notional check.
type SubmitOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`     // BUY | SELL
	Type     string `json:"type"`     // LIMIT | MARKET | IOC | FOK
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type SubmitOrderResponse struct {
	OrderID           string      `json:"order_id"`
	Status            string      `json:"status"`
	Message           string      `json:"message,omitempty"`
	FilledQuantity    int64       `json:"filled_quantity,omitempty"`
	RemainingQuantity int64       `json:"remaining_quantity,omitempty"`
	RejectReason      string      `json:"reject_reason,omitempty"`
	Trades            []TradeInfo `json:"trades,omitempty"`
}

type TradeInfo struct {
	TradeID   string `json:"trade_id"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

type ModifyOrderRequest struct {
	Price    int64 `json:"price"`    // 0 keeps the existing price
	Quantity int64 `json:"quantity"` // 0 keeps the existing quantity
}

type ModifyOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"`
	Bids      []PriceLevelInfo `json:"bids"` // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"` // sorted ascending (lowest first)
	Spread    *int64           `json:"spread,omitempty"`
	Mid       *float64         `json:"mid,omitempty"`
}

type PriceLevelInfo struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

type OrderStatusResponse struct {
	OrderID        string `json:"order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Price          int64  `json:"price"`
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filled_quantity"`
	Status         string `json:"status"`
	RejectReason   string `json:"reject_reason,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersMatched          int64   `json:"orders_matched"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersInBook           int64   `json:"orders_in_book"`
	TradesExecuted         int64   `json:"trades_executed"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}

// SetSymbolRiskLimitsRequest is the wire shape of POST /api/v1/risk/limits.
// Zero fields fall back to the engine's package defaults.
type SetSymbolRiskLimitsRequest struct {
	Symbol         string `json:"symbol"`
	PositionLimit  int64  `json:"position_limit"`
	OrderSizeLimit int64  `json:"order_size_limit"`
	NotionalLimit  int64  `json:"notional_limit"`
}

type RiskLimitsResponse struct {
	Symbol         string `json:"symbol"`
	PositionLimit  int64  `json:"position_limit"`
	OrderSizeLimit int64  `json:"order_size_limit"`
	NotionalLimit  int64  `json:"notional_limit"`
}
