package main

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

//go:embed index.html
var pageFS embed.FS

// Server is the HTTP layer: the page, order submission, config read/update and
// the two log relays (SSE and websocket).
type Server struct {
	router      *mux.Router
	submitter   *BracketSubmitter
	settings    *TradeSettings
	broadcaster *LogBroadcaster
	hub         *Hub
	log         *zap.Logger
	symbol      string
	testnet     bool
	startedAt   time.Time
	page        *template.Template
}

func NewServer(submitter *BracketSubmitter, settings *TradeSettings, lb *LogBroadcaster, hub *Hub, log *zap.Logger, symbol string, testnet bool) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		submitter:   submitter,
		settings:    settings,
		broadcaster: lb,
		hub:         hub,
		log:         log,
		symbol:      symbol,
		testnet:     testnet,
		startedAt:   time.Now(),
		page:        template.Must(template.ParseFS(pageFS, "index.html")),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/order", s.handleOrder).Methods("POST")
	s.router.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	s.router.HandleFunc("/config", s.handleUpdateConfig).Methods("POST")
	s.router.HandleFunc("/logs/stream", s.handleLogStream).Methods("GET")
	s.router.HandleFunc("/ws/logs", s.hub.HandleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

// ─── handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.log.Info("dashboard loaded")
	data := struct {
		Symbol      string
		Testnet     bool
		Settings    TradeSnapshot
		InitialLogs []LogEntry
	}{
		Symbol:      s.symbol,
		Testnet:     s.testnet,
		Settings:    s.settings.Snapshot(),
		InitialLogs: s.broadcaster.Recent(logReplaySize),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("page render failed", zap.Error(err))
	}
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req BracketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &InvalidInputError{Reason: "malformed request body: " + err.Error()}, nil)
		return
	}

	result, err := s.submitter.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, &InvalidInputError{Reason: "malformed request body: " + err.Error()}, nil)
		return
	}
	snap, err := s.settings.Update(patch)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	s.log.Info("trade settings updated",
		zap.String("margin", snap.Margin.String()),
		zap.Int("leverage", snap.Leverage))
	writeJSON(w, http.StatusOK, snap)
}

// handleLogStream relays the broadcaster over SSE: one data event per entry,
// heartbeat comments every 15 s so proxies and the browser keep the connection
// open. No buffering of its own, entries go out as they arrive.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"symbol":  s.symbol,
		"testnet": s.testnet,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// ─── response helpers ───────────────────────────────────────────────────────

type errorDetail struct {
	Kind    string `json:"kind"`
	Leg     string `json:"leg,omitempty"`
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorBody struct {
	Error   errorDetail    `json:"error"`
	Partial *BracketResult `json:"partial,omitempty"`
}

// writeError maps the error taxonomy to HTTP: user-correctable input → 400,
// anything that reached (or failed to reach) the exchange → 502 with the raw
// exchange detail. A partial bracket result rides along so the caller can see
// which legs were accepted.
func (s *Server) writeError(w http.ResponseWriter, err error, partial *BracketResult) {
	body := errorBody{Partial: partial}
	status := http.StatusBadGateway

	var invalid *InvalidInputError
	var rejected *ExchangeRejectedError
	var unreachable *ExchangeUnreachableError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		body.Error = errorDetail{Kind: "invalid_input", Message: invalid.Reason}
	case errors.As(err, &rejected):
		body.Error = errorDetail{Kind: "exchange_rejected", Leg: rejected.Leg, Code: rejected.Code, Message: rejected.Message}
	case errors.As(err, &unreachable):
		body.Error = errorDetail{Kind: "exchange_unreachable", Leg: unreachable.Leg, Message: unreachable.Err.Error()}
	default:
		status = http.StatusInternalServerError
		body.Error = errorDetail{Kind: "internal", Message: err.Error()}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
