package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExchangeOrderResult is one sub-order as the exchange acknowledged it. The
// raw response is carried verbatim for the browser.
type ExchangeOrderResult struct {
	Leg     string          `json:"leg"`
	OrderID int64           `json:"order_id"`
	Status  string          `json:"status"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Exchange is the signed REST surface the bracket submitter needs. The TP/SL
// operations place close-position orders triggered on mark price, so they stay
// valid whatever the position size does; their side is the opposite of the
// entry side.
type Exchange interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceEntry(ctx context.Context, symbol string, side Side, quantity, price string) (*ExchangeOrderResult, error)
	PlaceTakeProfit(ctx context.Context, symbol string, entrySide Side, triggerPrice string) (*ExchangeOrderResult, error)
	PlaceStopLoss(ctx context.Context, symbol string, entrySide Side, triggerPrice string) (*ExchangeOrderResult, error)
	QueryOrderStatus(ctx context.Context, symbol string, orderID int64) (string, error)
	SymbolFilters(symbol string) SymbolFilters
}

// binanceExchange talks to Binance USDT-M futures. Testnet vs production is
// fixed at construction and cannot change per request.
type binanceExchange struct {
	client *futures.Client
	log    *zap.Logger

	mu      sync.Mutex
	filters map[string]SymbolFilters
}

func NewBinanceExchange(apiKey, apiSecret string, useTestnet bool, log *zap.Logger) *binanceExchange {
	if useTestnet {
		futures.UseTestnet = true
		log.Warn("using Binance futures TESTNET")
	}
	return &binanceExchange{
		client:  binance.NewFuturesClient(apiKey, apiSecret),
		log:     log,
		filters: make(map[string]SymbolFilters),
	}
}

// LoadFilters caches tick/step/min-quantity per symbol from the exchange info
// endpoint. Failure is not fatal: SymbolFilters falls back to the documented
// defaults.
func (b *binanceExchange) LoadFilters(ctx context.Context) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		b.log.Warn("failed to fetch exchange info, using default filters", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range info.Symbols {
		f := DefaultFilters()
		for _, raw := range s.Filters {
			switch raw["filterType"] {
			case "PRICE_FILTER":
				if v, ok := raw["tickSize"].(string); ok {
					if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
						f.TickSize = d
					}
				}
			case "LOT_SIZE":
				if v, ok := raw["stepSize"].(string); ok {
					if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
						f.StepSize = d
					}
				}
				if v, ok := raw["minQty"].(string); ok {
					if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
						f.MinQty = d
					}
				}
			}
		}
		b.filters[s.Symbol] = f
	}
	b.log.Info("exchange info loaded", zap.Int("symbols", len(b.filters)))
}

func (b *binanceExchange) SymbolFilters(symbol string) SymbolFilters {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.filters[symbol]; ok {
		return f
	}
	return DefaultFilters()
}

func (b *binanceExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return wrapExchangeError(LegLeverage, err)
	}
	return nil
}

func (b *binanceExchange) PlaceEntry(ctx context.Context, symbol string, side Side, quantity, price string) (*ExchangeOrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(quantity).
		Price(price).
		Do(ctx)
	if err != nil {
		return nil, wrapExchangeError(LegEntry, err)
	}
	return orderResult(LegEntry, res), nil
}

func (b *binanceExchange) PlaceTakeProfit(ctx context.Context, symbol string, entrySide Side, triggerPrice string) (*ExchangeOrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(entrySide.ExitSide())).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(triggerPrice).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		PriceProtect(true).
		Do(ctx)
	if err != nil {
		return nil, wrapExchangeError(LegTakeProfit, err)
	}
	return orderResult(LegTakeProfit, res), nil
}

func (b *binanceExchange) PlaceStopLoss(ctx context.Context, symbol string, entrySide Side, triggerPrice string) (*ExchangeOrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(entrySide.ExitSide())).
		Type(futures.OrderTypeStopMarket).
		StopPrice(triggerPrice).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		PriceProtect(true).
		Do(ctx)
	if err != nil {
		return nil, wrapExchangeError(LegStopLoss, err)
	}
	return orderResult(LegStopLoss, res), nil
}

func (b *binanceExchange) QueryOrderStatus(ctx context.Context, symbol string, orderID int64) (string, error) {
	order, err := b.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return "", wrapExchangeError(LegEntry, err)
	}
	return string(order.Status), nil
}

func orderResult(leg string, res *futures.CreateOrderResponse) *ExchangeOrderResult {
	raw, _ := json.Marshal(res)
	return &ExchangeOrderResult{
		Leg:     leg,
		OrderID: res.OrderID,
		Status:  string(res.Status),
		Raw:     raw,
	}
}
