package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side of the entry order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExitSide returns the side that closes a position opened with s.
func (s Side) ExitSide() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) valid() bool {
	return s == SideBuy || s == SideSell
}

// SymbolFilters are the exchange's published precision rules for one symbol:
// PRICE_FILTER tick size and LOT_SIZE step/minimum.
type SymbolFilters struct {
	TickSize decimal.Decimal
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// DefaultFilters are used when the exchange info endpoint is unavailable:
// 0.01 price tick and 0.001 quantity step (three quantity decimals, two price
// decimals, the BTCUSDT defaults).
func DefaultFilters() SymbolFilters {
	return SymbolFilters{
		TickSize: decimal.RequireFromString("0.01"),
		StepSize: decimal.RequireFromString("0.001"),
		MinQty:   decimal.RequireFromString("0.001"),
	}
}

// OrderPlan is the computed bracket: entry quantity and the two trigger
// prices, plus the notional value of the position. Ephemeral, computed per
// request from the settings snapshot and never stored.
type OrderPlan struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	Notional   decimal.Decimal `json:"notional"`
	Leverage   int             `json:"leverage"`

	filters SymbolFilters
}

// QuantityString formats the quantity at the step-size precision for the wire.
func (p *OrderPlan) QuantityString() string {
	return p.Quantity.StringFixed(precisionOf(p.filters.StepSize))
}

// PriceString formats a price at the tick-size precision for the wire.
func (p *OrderPlan) PriceString(price decimal.Decimal) string {
	return price.StringFixed(precisionOf(p.filters.TickSize))
}

// ComposePlan derives an OrderPlan from a request and the settings snapshot.
// Pure: no I/O, no side effects.
//
// quantity   = margin × leverage / limit_price, floored to the step size
// takeProfit = limit_price + tpOffset (BUY) / − tpOffset (SELL)
// stopLoss   = limit_price − slOffset (BUY) / + slOffset (SELL)
func ComposePlan(symbol string, side Side, limitPrice decimal.Decimal, s TradeSnapshot, f SymbolFilters) (*OrderPlan, error) {
	if !side.valid() {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("side must be BUY or SELL, got %q", side)}
	}
	if !limitPrice.IsPositive() {
		return nil, &InvalidInputError{Reason: "limit_price must be positive"}
	}
	if !s.Margin.IsPositive() || s.Leverage <= 0 {
		return nil, &InvalidInputError{Reason: "margin and leverage must be positive"}
	}
	if !s.TPOffset.IsPositive() || !s.SLOffset.IsPositive() {
		return nil, &InvalidInputError{Reason: "tp_offset and sl_offset must be positive"}
	}

	rawQty := s.Margin.Mul(decimal.NewFromInt(int64(s.Leverage))).Div(limitPrice)
	qty := floorToStep(rawQty, f.StepSize)
	if !qty.IsPositive() || qty.LessThan(f.MinQty) {
		return nil, &InvalidInputError{Reason: fmt.Sprintf(
			"computed quantity %s is below the minimum order size %s", rawQty, f.MinQty)}
	}

	tp := limitPrice.Add(s.TPOffset)
	sl := limitPrice.Sub(s.SLOffset)
	if side == SideSell {
		tp = limitPrice.Sub(s.TPOffset)
		sl = limitPrice.Add(s.SLOffset)
	}
	tp = roundToTick(tp, f.TickSize)
	sl = roundToTick(sl, f.TickSize)
	if !tp.IsPositive() || !sl.IsPositive() {
		return nil, &InvalidInputError{Reason: "trigger offsets exceed the limit price"}
	}

	return &OrderPlan{
		Symbol:     symbol,
		Side:       side,
		LimitPrice: roundToTick(limitPrice, f.TickSize),
		Quantity:   qty,
		TakeProfit: tp,
		StopLoss:   sl,
		Notional:   qty.Mul(limitPrice),
		Leverage:   s.Leverage,
		filters:    f,
	}, nil
}

// floorToStep truncates v down to a multiple of step. Binance rejects
// quantities that are not exact step multiples.
func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// roundToTick snaps v to the nearest tick.
func roundToTick(v, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return v
	}
	return v.Div(tick).Round(0).Mul(tick)
}

func precisionOf(step decimal.Decimal) int32 {
	if exp := step.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}
