package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BracketRequest is one user submission. Margin and the offsets may be
// overridden per order; zero/absent fields fall back to the current settings.
type BracketRequest struct {
	Side       Side            `json:"side"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	Margin     decimal.Decimal `json:"margin_usdt,omitempty"`
	TPOffset   decimal.Decimal `json:"tp_offset,omitempty"`
	SLOffset   decimal.Decimal `json:"sl_offset,omitempty"`
}

// BracketResult is what the browser gets back: the computed plan and the
// exchange's acknowledgement of each leg. On a partial failure the legs placed
// before the failure are still present.
type BracketResult struct {
	Plan       *OrderPlan           `json:"plan"`
	Entry      *ExchangeOrderResult `json:"entry,omitempty"`
	TakeProfit *ExchangeOrderResult `json:"take_profit,omitempty"`
	StopLoss   *ExchangeOrderResult `json:"stop_loss,omitempty"`
}

// BracketSubmitter runs the submission sequence: set leverage, place the limit
// entry, optionally wait for the fill, then the take-profit and stop-loss
// close-position orders. The first failure aborts the remaining calls. Earlier
// legs are never rolled back; a failure after a successful entry leaves an
// unprotected position, which is surfaced loudly rather than repaired.
type BracketSubmitter struct {
	exchange Exchange
	settings *TradeSettings
	symbol   string
	log      *zap.Logger
	notifier *Notifier

	waitForFill  bool
	pollInterval time.Duration
	waitTimeout  time.Duration
}

func NewBracketSubmitter(ex Exchange, settings *TradeSettings, symbol string, log *zap.Logger, notifier *Notifier) *BracketSubmitter {
	return &BracketSubmitter{
		exchange:     ex,
		settings:     settings,
		symbol:       symbol,
		log:          log,
		notifier:     notifier,
		pollInterval: 10 * time.Second,
		waitTimeout:  5 * time.Minute,
	}
}

// SetFillPolicy configures the optional entry fill wait.
func (b *BracketSubmitter) SetFillPolicy(wait bool, poll, timeout time.Duration) {
	b.waitForFill = wait
	if poll > 0 {
		b.pollInterval = poll
	}
	if timeout > 0 {
		b.waitTimeout = timeout
	}
}

// Submit places one bracket. The returned result is non-nil whenever at least
// the plan was computed, so a caller receiving an error can still see which
// legs made it to the exchange.
func (b *BracketSubmitter) Submit(ctx context.Context, req BracketRequest) (*BracketResult, error) {
	snap := b.settings.Snapshot()
	if req.Margin.IsPositive() {
		snap.Margin = req.Margin
	}
	if req.TPOffset.IsPositive() {
		snap.TPOffset = req.TPOffset
	}
	if req.SLOffset.IsPositive() {
		snap.SLOffset = req.SLOffset
	}

	plan, err := ComposePlan(b.symbol, req.Side, req.LimitPrice, snap, b.exchange.SymbolFilters(b.symbol))
	if err != nil {
		b.log.Error("order rejected before submission", zap.Error(err))
		OrdersSubmitted.WithLabelValues(string(req.Side), "invalid").Inc()
		return nil, err
	}

	result := &BracketResult{Plan: plan}

	b.log.Info(fmt.Sprintf("new %s order initiated", plan.Side),
		zap.String("symbol", plan.Symbol),
		zap.Int("leverage", plan.Leverage),
		zap.String("margin", snap.Margin.String()),
		zap.String("notional", plan.Notional.StringFixed(2)))

	// Leverage first: the quantity was sized for it.
	if err := b.exchange.SetLeverage(ctx, plan.Symbol, plan.Leverage); err != nil {
		return b.fail(result, err)
	}
	b.log.Info(fmt.Sprintf("leverage set to %dx for %s", plan.Leverage, plan.Symbol))

	b.log.Info(fmt.Sprintf("placing LIMIT %s @ %s qty %s",
		plan.Side, plan.PriceString(plan.LimitPrice), plan.QuantityString()))
	entry, err := b.exchange.PlaceEntry(ctx, plan.Symbol, plan.Side, plan.QuantityString(), plan.PriceString(plan.LimitPrice))
	if err != nil {
		return b.fail(result, err)
	}
	result.Entry = entry
	b.log.Info(fmt.Sprintf("LIMIT %s placed, orderId: %d", plan.Side, entry.OrderID))

	if b.waitForFill {
		if err := b.awaitFill(ctx, plan.Symbol, entry.OrderID); err != nil {
			return b.failUnprotected(result, err)
		}
	}

	b.log.Info(fmt.Sprintf("placing TAKE_PROFIT_MARKET %s @ %s",
		plan.Side.ExitSide(), plan.PriceString(plan.TakeProfit)))
	tp, err := b.exchange.PlaceTakeProfit(ctx, plan.Symbol, plan.Side, plan.PriceString(plan.TakeProfit))
	if err != nil {
		return b.failUnprotected(result, err)
	}
	result.TakeProfit = tp
	b.log.Info(fmt.Sprintf("TAKE_PROFIT_MARKET placed @ %s, orderId: %d",
		plan.PriceString(plan.TakeProfit), tp.OrderID))

	b.log.Info(fmt.Sprintf("placing STOP_MARKET %s @ %s",
		plan.Side.ExitSide(), plan.PriceString(plan.StopLoss)))
	sl, err := b.exchange.PlaceStopLoss(ctx, plan.Symbol, plan.Side, plan.PriceString(plan.StopLoss))
	if err != nil {
		return b.failUnprotected(result, err)
	}
	result.StopLoss = sl
	b.log.Info(fmt.Sprintf("STOP_MARKET placed @ %s, orderId: %d",
		plan.PriceString(plan.StopLoss), sl.OrderID))

	b.log.Info(fmt.Sprintf("all orders placed, entry:%d tp:%d sl:%d",
		entry.OrderID, tp.OrderID, sl.OrderID))
	OrdersSubmitted.WithLabelValues(string(plan.Side), "ok").Inc()
	b.notifier.Notify(fmt.Sprintf("✅ *BRACKET PLACED*\n%s %s @ %s\nTP %s / SL %s",
		plan.Side, plan.Symbol, plan.PriceString(plan.LimitPrice),
		plan.PriceString(plan.TakeProfit), plan.PriceString(plan.StopLoss)))

	return result, nil
}

// awaitFill polls the entry order until FILLED. A terminal status fails the
// sequence; hitting the timeout only logs, the protection legs are
// close-position orders and can be placed before the fill.
func (b *BracketSubmitter) awaitFill(ctx context.Context, symbol string, orderID int64) error {
	b.log.Info(fmt.Sprintf("waiting for order %d to fill...", orderID))
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	deadline := time.After(b.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return &ExchangeUnreachableError{Leg: LegEntry, Err: ctx.Err()}
		case <-deadline:
			b.log.Warn(fmt.Sprintf("order %d not filled within %s, placing protection anyway", orderID, b.waitTimeout))
			return nil
		case <-ticker.C:
			status, err := b.exchange.QueryOrderStatus(ctx, symbol, orderID)
			if err != nil {
				return err
			}
			b.log.Info(fmt.Sprintf("order %d status: %s", orderID, status))
			switch futures.OrderStatusType(status) {
			case futures.OrderStatusTypeFilled:
				b.log.Info(fmt.Sprintf("order %d FILLED", orderID))
				return nil
			case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired:
				return &ExchangeRejectedError{
					Leg:     LegEntry,
					Message: fmt.Sprintf("entry order ended with status %s", status),
				}
			}
		}
	}
}

// fail reports a failure before any order reached the book.
func (b *BracketSubmitter) fail(result *BracketResult, err error) (*BracketResult, error) {
	leg := failedLeg(err)
	b.log.Error(fmt.Sprintf("%s leg failed", leg), zap.Error(err))
	LegFailures.WithLabelValues(leg).Inc()
	OrdersSubmitted.WithLabelValues(string(result.Plan.Side), "failed").Inc()
	b.notifier.Notify(fmt.Sprintf("❌ *ORDER FAILED* (%s leg)\n%v", leg, err))
	return result, err
}

// failUnprotected reports a failure after the entry was accepted: the position
// (or resting entry order) has no protection legs.
func (b *BracketSubmitter) failUnprotected(result *BracketResult, err error) (*BracketResult, error) {
	leg := failedLeg(err)
	b.log.Error(fmt.Sprintf("%s leg failed after entry was placed", leg), zap.Error(err))
	b.log.Error(fmt.Sprintf("WARNING: entry order %d may be UNPROTECTED, no rollback is performed, check the exchange",
		result.Entry.OrderID))
	LegFailures.WithLabelValues(leg).Inc()
	OrdersSubmitted.WithLabelValues(string(result.Plan.Side), "failed").Inc()
	b.notifier.Notify(fmt.Sprintf("🚨 *UNPROTECTED POSITION RISK*\n%s leg failed after entry %d.\n%v",
		leg, result.Entry.OrderID, err))
	return result, err
}
