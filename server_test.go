package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestServer(ex Exchange) (*Server, *LogBroadcaster) {
	lb := NewLogBroadcaster()
	logger := zap.NewNop()
	settings := testSettings()
	submitter := NewBracketSubmitter(ex, settings, "BTCUSDT", logger, nil)
	hub := NewHub(lb, logger)
	return NewServer(submitter, settings, lb, hub, logger, "BTCUSDT", true), lb
}

func postJSON(t *testing.T, h http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_OrderSuccess(t *testing.T) {
	srv, _ := newTestServer(newMockExchange())
	rec := postJSON(t, srv.Handler(), "/order", `{"side":"BUY","limit_price":50000}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var result BracketResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !result.Plan.Quantity.Equal(d("0.4")) {
		t.Fatalf("expected quantity 0.4, got %s", result.Plan.Quantity)
	}
	if result.Entry == nil || result.TakeProfit == nil || result.StopLoss == nil {
		t.Fatalf("expected all three order results: %s", rec.Body)
	}
}

func TestServer_OrderInvalidInput(t *testing.T) {
	ex := newMockExchange()
	srv, _ := newTestServer(ex)
	rec := postJSON(t, srv.Handler(), "/order", `{"side":"BUY","limit_price":-1}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body.Error.Kind != "invalid_input" {
		t.Fatalf("expected invalid_input, got %q", body.Error.Kind)
	}
	if len(ex.Calls()) != 0 {
		t.Fatalf("invalid input must not reach the exchange: %v", ex.Calls())
	}
}

func TestServer_OrderTPFailureNamesLegAndCarriesPartial(t *testing.T) {
	ex := newMockExchange()
	ex.failLeg = LegTakeProfit
	srv, _ := newTestServer(ex)
	rec := postJSON(t, srv.Handler(), "/order", `{"side":"BUY","limit_price":50000}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body.Error.Kind != "exchange_rejected" || body.Error.Leg != LegTakeProfit {
		t.Fatalf("error must name the TP leg: %+v", body.Error)
	}
	if body.Error.Code != -2019 || body.Error.Message == "" {
		t.Fatalf("raw exchange code/message must be carried verbatim: %+v", body.Error)
	}
	if body.Partial == nil || body.Partial.Entry == nil {
		t.Fatalf("partial result must show the accepted entry: %s", rec.Body)
	}
}

func TestServer_ConfigRoundTrip(t *testing.T) {
	srv, _ := newTestServer(newMockExchange())
	h := srv.Handler()

	rec := postJSON(t, h, "/config", `{"margin_usdt":3000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("config update failed: %d %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	get := httptest.NewRecorder()
	h.ServeHTTP(get, req)
	var snap TradeSnapshot
	if err := json.Unmarshal(get.Body.Bytes(), &snap); err != nil {
		t.Fatalf("bad config body: %v", err)
	}
	if !snap.Margin.Equal(d("3000")) {
		t.Fatalf("expected margin 3000, got %s", snap.Margin)
	}

	// Subsequent orders compute with the new margin: 3000 × 10 / 50000 = 0.6.
	order := postJSON(t, h, "/order", `{"side":"BUY","limit_price":50000}`)
	var result BracketResult
	if err := json.Unmarshal(order.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad order body: %v", err)
	}
	if !result.Plan.Quantity.Equal(d("0.6")) {
		t.Fatalf("expected quantity 0.6 after margin update, got %s", result.Plan.Quantity)
	}
}

func TestServer_ConfigRejectsNonPositive(t *testing.T) {
	srv, _ := newTestServer(newMockExchange())
	rec := postJSON(t, srv.Handler(), "/config", `{"leverage":-5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServer_ConfigNeverExposesCredentials(t *testing.T) {
	srv, _ := newTestServer(newMockExchange())
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := strings.ToLower(rec.Body.String())
	for _, word := range []string{"key", "secret", "token"} {
		if strings.Contains(body, word) {
			t.Fatalf("config response leaks %q: %s", word, rec.Body)
		}
	}
}

func TestServer_LogStreamRelaysAppends(t *testing.T) {
	srv, lb := newTestServer(newMockExchange())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/logs/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	waitForSubscribers(t, lb, 1)
	lb.Append("INFO", "first line")
	lb.Append("ERROR", "second line")

	reader := bufio.NewReader(resp.Body)
	var events []LogEntry
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read failed after %d events: %v", len(events), err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &e); err != nil {
			t.Fatalf("bad event payload %q: %v", line, err)
		}
		events = append(events, e)
	}
	if events[0].Msg != "first line" || events[1].Msg != "second line" {
		t.Fatalf("events out of order: %+v", events)
	}

	// Dropping the client must release the subscription without affecting
	// the appender.
	cancel()
	waitForSubscribers(t, lb, 0)
	lb.Append("INFO", "after disconnect")
}

func TestServer_TwoStreamsIndependent(t *testing.T) {
	srv, lb := newTestServer(newMockExchange())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	open := func() (*http.Response, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/logs/stream", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("stream request failed: %v", err)
		}
		return resp, cancel
	}

	respA, cancelA := open()
	defer respA.Body.Close()
	respB, cancelB := open()
	defer respB.Body.Close()
	defer cancelB()

	waitForSubscribers(t, lb, 2)
	lb.Append("INFO", "both see this")

	readEvent := func(resp *http.Response) LogEntry {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream read failed: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				var e LogEntry
				if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &e); err != nil {
					t.Fatalf("bad payload: %v", err)
				}
				return e
			}
		}
	}

	if e := readEvent(respA); e.Msg != "both see this" {
		t.Fatalf("subscriber A got %q", e.Msg)
	}
	if e := readEvent(respB); e.Msg != "both see this" {
		t.Fatalf("subscriber B got %q", e.Msg)
	}

	// A drops; B keeps receiving.
	cancelA()
	waitForSubscribers(t, lb, 1)
	lb.Append("INFO", "only B sees this")
	if e := readEvent(respB); e.Msg != "only B sees this" {
		t.Fatalf("surviving subscriber got %q", e.Msg)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(newMockExchange())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad health body: %v", err)
	}
	if body["status"] != "ok" || body["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func waitForSubscribers(t *testing.T, lb *LogBroadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lb.mu.Lock()
		count := len(lb.subs)
		lb.mu.Unlock()
		if count == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d", n)
}
