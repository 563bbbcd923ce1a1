package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one line of the terminal log as the browser sees it.
type LogEntry struct {
	TS    string `json:"ts"` // HH:MM:SS
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

const (
	// Ring capacity and the replay window for a freshly loaded page.
	logRingCap    = 200
	logReplaySize = 50

	// Per-subscriber channel buffer. A subscriber that falls this far behind
	// starts losing entries; the appender and other subscribers are unaffected.
	subscriberBuffer = 100
)

// LogSubscriber is one live reader of the log stream.
type LogSubscriber struct {
	C chan LogEntry
}

// LogBroadcaster is the process-wide append-only log sequence. Appends are
// synchronous, atomic and ordered; every live subscriber receives an
// independent copy of each entry appended after it subscribed.
type LogBroadcaster struct {
	mu      sync.Mutex
	entries []LogEntry
	subs    map[*LogSubscriber]struct{}
}

func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{
		subs: make(map[*LogSubscriber]struct{}),
	}
}

// Append adds one entry to the ring and fans it out. Never blocks on
// subscriber state: a full subscriber channel drops the entry for that
// subscriber only.
func (lb *LogBroadcaster) Append(level, msg string) {
	entry := LogEntry{
		TS:    time.Now().Format("15:04:05"),
		Level: level,
		Msg:   msg,
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)
	if len(lb.entries) > logRingCap {
		lb.entries = lb.entries[len(lb.entries)-logRingCap:]
	}

	for sub := range lb.subs {
		select {
		case sub.C <- entry:
		default:
		}
	}
}

// Subscribe registers a live reader starting from the moment of subscription.
// Historical entries are not replayed on the stream; Recent serves the page's
// replay window.
func (lb *LogBroadcaster) Subscribe() *LogSubscriber {
	sub := &LogSubscriber{C: make(chan LogEntry, subscriberBuffer)}
	lb.mu.Lock()
	lb.subs[sub] = struct{}{}
	lb.mu.Unlock()
	LogSubscribers.Inc()
	return sub
}

// Unsubscribe removes a reader and closes its channel. Safe to call while
// appends are in flight; idempotent.
func (lb *LogBroadcaster) Unsubscribe(sub *LogSubscriber) {
	lb.mu.Lock()
	_, ok := lb.subs[sub]
	if ok {
		delete(lb.subs, sub)
		close(sub.C)
	}
	lb.mu.Unlock()
	if ok {
		LogSubscribers.Dec()
	}
}

// Recent returns a copy of the last n entries for page-load replay.
func (lb *LogBroadcaster) Recent(n int) []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	start := 0
	if len(lb.entries) > n {
		start = len(lb.entries) - n
	}
	out := make([]LogEntry, len(lb.entries)-start)
	copy(out, lb.entries[start:])
	return out
}

// ─── zap tee ────────────────────────────────────────────────────────────────

// broadcastCore forwards every log entry written through zap into the
// broadcaster, so the browser terminal mirrors the server log exactly.
type broadcastCore struct {
	zapcore.LevelEnabler
	lb     *LogBroadcaster
	fields []zapcore.Field
}

func (c *broadcastCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *broadcastCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *broadcastCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	combined := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	combined = append(combined, c.fields...)
	combined = append(combined, fields...)
	msg := ent.Message
	if suffix := renderFields(combined); suffix != "" {
		msg += " " + suffix
	}
	c.lb.Append(strings.ToUpper(ent.Level.String()), msg)
	return nil
}

func (c *broadcastCore) Sync() error { return nil }

func renderFields(fields []zapcore.Field) string {
	if len(fields) == 0 {
		return ""
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmtAppend(&b, k, enc.Fields[k])
	}
	return b.String()
}

func fmtAppend(b *strings.Builder, k string, v interface{}) {
	b.WriteString(k)
	b.WriteByte('=')
	b.WriteString(fmt.Sprint(v))
}

// NewBroadcastLogger builds the process logger: console output on stderr plus
// the broadcaster tee.
func NewBroadcastLogger(lb *LogBroadcaster) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.InfoLevel,
	)
	tee := zapcore.NewTee(console, &broadcastCore{LevelEnabler: zap.InfoLevel, lb: lb})
	return zap.New(tee)
}
