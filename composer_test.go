package main

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func testSnapshot() TradeSnapshot {
	return TradeSnapshot{
		Margin:   decimal.NewFromInt(2000),
		Leverage: 10,
		TPOffset: decimal.NewFromInt(1000),
		SLOffset: decimal.NewFromInt(400),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComposePlan_Buy(t *testing.T) {
	plan, err := ComposePlan("BTCUSDT", SideBuy, d("50000"), testSnapshot(), DefaultFilters())
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	// 2000 × 10 / 50000 = 0.4
	if !plan.Quantity.Equal(d("0.4")) {
		t.Fatalf("expected quantity 0.4, got %s", plan.Quantity)
	}
	if !plan.TakeProfit.Equal(d("51000")) {
		t.Fatalf("expected TP 51000, got %s", plan.TakeProfit)
	}
	if !plan.StopLoss.Equal(d("49600")) {
		t.Fatalf("expected SL 49600, got %s", plan.StopLoss)
	}
	if !plan.Notional.Equal(d("20000")) {
		t.Fatalf("expected notional 20000, got %s", plan.Notional)
	}
	if plan.QuantityString() != "0.400" {
		t.Fatalf("expected wire quantity 0.400, got %s", plan.QuantityString())
	}
	if plan.PriceString(plan.TakeProfit) != "51000.00" {
		t.Fatalf("expected wire TP 51000.00, got %s", plan.PriceString(plan.TakeProfit))
	}
}

func TestComposePlan_SellInvertsTriggers(t *testing.T) {
	plan, err := ComposePlan("BTCUSDT", SideSell, d("50000"), testSnapshot(), DefaultFilters())
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !plan.TakeProfit.LessThan(plan.LimitPrice) {
		t.Fatalf("SELL take-profit %s must be below entry %s", plan.TakeProfit, plan.LimitPrice)
	}
	if !plan.StopLoss.GreaterThan(plan.LimitPrice) {
		t.Fatalf("SELL stop-loss %s must be above entry %s", plan.StopLoss, plan.LimitPrice)
	}
	if !plan.TakeProfit.Equal(d("49000")) || !plan.StopLoss.Equal(d("50400")) {
		t.Fatalf("unexpected SELL triggers: tp=%s sl=%s", plan.TakeProfit, plan.StopLoss)
	}
}

func TestComposePlan_TriggerDirectionProperty(t *testing.T) {
	prices := []string{"0.5", "123.45", "50000", "98765.43"}
	for _, p := range prices {
		snap := testSnapshot()
		snap.TPOffset = d(p).Div(d("10"))
		snap.SLOffset = d(p).Div(d("20"))
		for _, side := range []Side{SideBuy, SideSell} {
			plan, err := ComposePlan("BTCUSDT", side, d(p), snap, DefaultFilters())
			if err != nil {
				// Too small a price can floor the quantity to zero; that case
				// is covered by the minimum-size test below.
				continue
			}
			if !plan.Quantity.IsPositive() {
				t.Fatalf("price %s side %s: quantity must be strictly positive, got %s", p, side, plan.Quantity)
			}
			tpAbove := plan.TakeProfit.GreaterThan(plan.LimitPrice)
			if side == SideBuy && !tpAbove || side == SideSell && tpAbove {
				t.Fatalf("price %s side %s: TP on wrong side of entry", p, side)
			}
			slAbove := plan.StopLoss.GreaterThan(plan.LimitPrice)
			if side == SideBuy && slAbove || side == SideSell && !slAbove {
				t.Fatalf("price %s side %s: SL on wrong side of entry", p, side)
			}
		}
	}
}

func TestComposePlan_FloorsQuantityToStep(t *testing.T) {
	// 2000 × 10 / 30000 = 0.66666… → 0.666 at a 0.001 step
	plan, err := ComposePlan("BTCUSDT", SideBuy, d("30000"), testSnapshot(), DefaultFilters())
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !plan.Quantity.Equal(d("0.666")) {
		t.Fatalf("expected floored quantity 0.666, got %s", plan.Quantity)
	}
}

func TestComposePlan_InvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		side  Side
		price decimal.Decimal
	}{
		{"zero price", SideBuy, decimal.Zero},
		{"negative price", SideSell, d("-50000")},
		{"bad side", Side("HOLD"), d("50000")},
	}
	for _, tc := range cases {
		_, err := ComposePlan("BTCUSDT", tc.side, tc.price, testSnapshot(), DefaultFilters())
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: expected InvalidInputError, got %v", tc.name, err)
		}
	}
}

func TestComposePlan_BelowMinimumQuantity(t *testing.T) {
	snap := testSnapshot()
	snap.Margin = d("0.01") // 0.01 × 10 / 50000 floors to zero
	_, err := ComposePlan("BTCUSDT", SideBuy, d("50000"), snap, DefaultFilters())
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for dust quantity, got %v", err)
	}
}

func TestComposePlan_OffsetExceedsPrice(t *testing.T) {
	snap := testSnapshot()
	snap.SLOffset = d("60000") // BUY stop-loss would be negative
	_, err := ComposePlan("BTCUSDT", SideBuy, d("50000"), snap, DefaultFilters())
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}
