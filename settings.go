package main

import (
	"sync"

	"github.com/shopspring/decimal"

	"bracket-terminal/config"
)

// TradeSettings is the runtime-mutable part of the configuration: margin,
// leverage and the TP/SL offsets. Updated in place through POST /config under
// the mutex; every order works off an immutable Snapshot taken at submit
// time, so an update never affects a plan already computed.
type TradeSettings struct {
	mu       sync.RWMutex
	margin   decimal.Decimal
	leverage int
	tpOffset decimal.Decimal
	slOffset decimal.Decimal
}

// TradeSnapshot is an immutable copy of the settings.
type TradeSnapshot struct {
	Margin   decimal.Decimal `json:"margin_usdt"`
	Leverage int             `json:"leverage"`
	TPOffset decimal.Decimal `json:"tp_offset"`
	SLOffset decimal.Decimal `json:"sl_offset"`
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Margin   *decimal.Decimal `json:"margin_usdt,omitempty"`
	Leverage *int             `json:"leverage,omitempty"`
	TPOffset *decimal.Decimal `json:"tp_offset,omitempty"`
	SLOffset *decimal.Decimal `json:"sl_offset,omitempty"`
}

// NewTradeSettings seeds the mutable settings from the startup config.
func NewTradeSettings(cfg *config.Config) *TradeSettings {
	return &TradeSettings{
		margin:   decimal.NewFromFloat(cfg.MarginUSDT),
		leverage: cfg.Leverage,
		tpOffset: decimal.NewFromFloat(cfg.TPOffset),
		slOffset: decimal.NewFromFloat(cfg.SLOffset),
	}
}

func (ts *TradeSettings) Snapshot() TradeSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return TradeSnapshot{
		Margin:   ts.margin,
		Leverage: ts.leverage,
		TPOffset: ts.tpOffset,
		SLOffset: ts.slOffset,
	}
}

// Update applies a patch and returns the resulting snapshot. Rejects
// non-positive values without changing anything.
func (ts *TradeSettings) Update(patch SettingsPatch) (TradeSnapshot, error) {
	if patch.Margin != nil && !patch.Margin.IsPositive() {
		return TradeSnapshot{}, &InvalidInputError{Reason: "margin_usdt must be positive"}
	}
	if patch.Leverage != nil && *patch.Leverage <= 0 {
		return TradeSnapshot{}, &InvalidInputError{Reason: "leverage must be positive"}
	}
	if patch.TPOffset != nil && !patch.TPOffset.IsPositive() {
		return TradeSnapshot{}, &InvalidInputError{Reason: "tp_offset must be positive"}
	}
	if patch.SLOffset != nil && !patch.SLOffset.IsPositive() {
		return TradeSnapshot{}, &InvalidInputError{Reason: "sl_offset must be positive"}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if patch.Margin != nil {
		ts.margin = *patch.Margin
	}
	if patch.Leverage != nil {
		ts.leverage = *patch.Leverage
	}
	if patch.TPOffset != nil {
		ts.tpOffset = *patch.TPOffset
	}
	if patch.SLOffset != nil {
		ts.slOffset = *patch.SLOffset
	}
	return TradeSnapshot{
		Margin:   ts.margin,
		Leverage: ts.leverage,
		TPOffset: ts.tpOffset,
		SLOffset: ts.slOffset,
	}, nil
}
