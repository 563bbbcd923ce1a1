package main

import (
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
)

// Bracket legs, in submission order. Used to attribute a failure to the call
// that caused it.
const (
	LegLeverage   = "leverage"
	LegEntry      = "entry"
	LegTakeProfit = "take_profit"
	LegStopLoss   = "stop_loss"
)

// InvalidInputError is a user-correctable request problem (bad side, bad
// price). No exchange call is made when it is returned.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// ExchangeRejectedError carries a business-logic rejection from Binance
// verbatim (error code and message), plus the leg that was rejected.
type ExchangeRejectedError struct {
	Leg     string
	Code    int64
	Message string
}

func (e *ExchangeRejectedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange rejected %s leg: code %d: %s", e.Leg, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange rejected %s leg: %s", e.Leg, e.Message)
}

// ExchangeUnreachableError is a transport-level failure talking to Binance.
type ExchangeUnreachableError struct {
	Leg string
	Err error
}

func (e *ExchangeUnreachableError) Error() string {
	return fmt.Sprintf("exchange unreachable on %s leg: %v", e.Leg, e.Err)
}

func (e *ExchangeUnreachableError) Unwrap() error {
	return e.Err
}

// wrapExchangeError classifies an error from the Binance SDK: typed API errors
// become rejections carrying the raw code/message, anything else (DNS, TLS,
// timeouts) is unreachable.
func wrapExchangeError(leg string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &ExchangeRejectedError{Leg: leg, Code: apiErr.Code, Message: apiErr.Message}
	}
	return &ExchangeUnreachableError{Leg: leg, Err: err}
}

// failedLeg extracts the leg name from a classified exchange error, or "".
func failedLeg(err error) string {
	var rej *ExchangeRejectedError
	if errors.As(err, &rej) {
		return rej.Leg
	}
	var unr *ExchangeUnreachableError
	if errors.As(err, &unr) {
		return unr.Leg
	}
	return ""
}
