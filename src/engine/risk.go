package engine

import (
	"fmt"
	"sync"
	"time"
)

// Default limits, applied per symbol when no explicit SymbolLimits entry
// exists for it.
const (
	DefaultPositionLimit = 100_000
	DefaultOrderSizeLimit = 10_000
	DefaultNotionalLimit  = 10_000_000
)

// SymbolLimits holds the per-symbol caps from spec.md §4.3. Zero means
// "use the package default"; there is no per-symbol way to disable a
// limit entirely (only the global caps and the rate limit support 0 ==
// disabled).
type SymbolLimits struct {
	PositionLimit  int64
	OrderSizeLimit int64
	NotionalLimit  int64
}

// RiskGate is the interface MatchingEngine consults before matching. It
// exists so the engine can be exercised against a mock that always passes,
// always fails, or records calls — per the design note against building
// RiskManager as a god-object the engine depends on concretely.
type RiskGate interface {
	Check(order *Order) (ok bool, reason string)
	ApplyFill(symbol string, side Side, quantity, price int64)
}

// RiskManager is the stateful pre-trade gate and position accumulator from
// spec.md §4.3. All limits are optional; a zero global/rate limit means
// disabled, matching the spec's "zero means disabled for global limits and
// rate" rule. Symbol default limits follow DefaultPositionLimit etc.
type RiskManager struct {
	mu sync.Mutex

	symbolLimits map[string]SymbolLimits
	positions    map[string]int64
	exposures    map[string]int64 // signed notional, in the same ticks as price*quantity

	globalPositionLimit int64
	globalNotionalLimit int64

	maxOrdersPerSecond int
	windowStart        int64 // unix seconds
	windowCount        int

	now func() time.Time // overridable for deterministic rate-window tests
}

func NewRiskManager() *RiskManager {
	return &RiskManager{
		symbolLimits: make(map[string]SymbolLimits),
		positions:    make(map[string]int64),
		exposures:    make(map[string]int64),
		now:          time.Now,
	}
}

// SetSymbolLimits installs explicit position/order-size/notional limits
// for a symbol, overriding the package defaults.
func (r *RiskManager) SetSymbolLimits(symbol string, limits SymbolLimits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbolLimits[symbol] = limits
}

// SetGlobalLimits installs the cross-symbol position/notional caps. 0
// disables the respective check.
func (r *RiskManager) SetGlobalLimits(position, notional int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalPositionLimit = position
	r.globalNotionalLimit = notional
}

// SetOrderRateLimit installs the whole-engine order-rate cap (checks
// succeeding per rolling... really tumbling, see spec.md §4.3... 1-second
// window). 0 disables the check.
func (r *RiskManager) SetOrderRateLimit(maxPerSecond int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxOrdersPerSecond = maxPerSecond
}

// LimitsFor returns the effective, defaults-applied limits for symbol.
func (r *RiskManager) LimitsFor(symbol string) SymbolLimits {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limitsFor(symbol)
}

func (r *RiskManager) limitsFor(symbol string) SymbolLimits {
	limits, ok := r.symbolLimits[symbol]
	if !ok {
		return SymbolLimits{
			PositionLimit:  DefaultPositionLimit,
			OrderSizeLimit: DefaultOrderSizeLimit,
			NotionalLimit:  DefaultNotionalLimit,
		}
	}
	if limits.PositionLimit == 0 {
		limits.PositionLimit = DefaultPositionLimit
	}
	if limits.OrderSizeLimit == 0 {
		limits.OrderSizeLimit = DefaultOrderSizeLimit
	}
	if limits.NotionalLimit == 0 {
		limits.NotionalLimit = DefaultNotionalLimit
	}
	return limits
}

// Check evaluates, in order, the rate / order-size / position / notional
// checks and returns on the first failure with a human-readable reason.
// The rate check's window-counter side effect only fires if the rate
// check itself passes.
func (r *RiskManager) Check(order *Order) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.checkRateLocked() {
		return false, "order rate limit exceeded"
	}

	limits := r.limitsFor(order.Symbol)

	if order.Quantity > limits.OrderSizeLimit {
		return false, fmt.Sprintf("order size %d exceeds limit %d for %s", order.Quantity, limits.OrderSizeLimit, order.Symbol)
	}

	hypotheticalPosition := r.positions[order.Symbol] + signedQty(order.Side, order.Quantity)
	if abs64(hypotheticalPosition) > limits.PositionLimit {
		return false, fmt.Sprintf("position %d would exceed limit %d for %s", hypotheticalPosition, limits.PositionLimit, order.Symbol)
	}

	if r.globalPositionLimit > 0 {
		var globalPosition int64
		for symbol, position := range r.positions {
			if symbol == order.Symbol {
				continue
			}
			globalPosition += abs64(position)
		}
		globalPosition += abs64(hypotheticalPosition)
		if globalPosition > r.globalPositionLimit {
			return false, fmt.Sprintf("global position %d would exceed limit %d", globalPosition, r.globalPositionLimit)
		}
	}

	notionalDelta := signedQty(order.Side, order.Quantity) * order.Price
	hypotheticalExposure := r.exposures[order.Symbol] + notionalDelta
	if abs64(hypotheticalExposure) > limits.NotionalLimit {
		return false, fmt.Sprintf("notional exposure %d would exceed limit %d for %s", hypotheticalExposure, limits.NotionalLimit, order.Symbol)
	}

	if r.globalNotionalLimit > 0 {
		var globalNotional int64
		for symbol, exposure := range r.exposures {
			if symbol == order.Symbol {
				continue
			}
			globalNotional += abs64(exposure)
		}
		globalNotional += abs64(hypotheticalExposure)
		if globalNotional > r.globalNotionalLimit {
			return false, fmt.Sprintf("global notional %d would exceed limit %d", globalNotional, r.globalNotionalLimit)
		}
	}

	return true, ""
}

// checkRateLocked must be called with r.mu held. It implements a tumbling
// (not sliding) 1-second window, per spec.md §4.3 and §9 open question #5,
// the same technique as the teacher's RateLimiter.getWindowKey.
func (r *RiskManager) checkRateLocked() bool {
	if r.maxOrdersPerSecond <= 0 {
		return true
	}

	nowSec := r.now().Unix()
	if nowSec-r.windowStart >= 1 {
		r.windowStart = nowSec
		r.windowCount = 0
	}

	if r.windowCount >= r.maxOrdersPerSecond {
		return false
	}
	r.windowCount++
	return true
}

// ApplyFill updates the signed position and notional exposure for symbol
// after one fill, from side's point of view. The engine calls this once
// per fill using the aggressor's side (Fill carries no counter-side field
// to apply it from the passive order's point of view too), so resting
// counterparty exposure is never tracked here.
func (r *RiskManager) ApplyFill(symbol string, side Side, quantity, price int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[symbol] += signedQty(side, quantity)
	r.exposures[symbol] += signedQty(side, quantity) * price
}

// Position returns the current signed position for symbol.
func (r *RiskManager) Position(symbol string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positions[symbol]
}

// Exposure returns the current signed notional exposure for symbol.
func (r *RiskManager) Exposure(symbol string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exposures[symbol]
}

// Reset zeroes positions, exposures and the rate window. Limit
// configuration survives a reset.
func (r *RiskManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = make(map[string]int64)
	r.exposures = make(map[string]int64)
	r.windowStart = 0
	r.windowCount = 0
}

func signedQty(side Side, quantity int64) int64 {
	if side == SideBuy {
		return quantity
	}
	return -quantity
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
