package log

import (
	"time"

	"github.com/rxtech-lab/argo-equity/internal/types"
)

// Event classifies a simulator log entry.
type Event string

const (
	EventSizingFallback    Event = "sizing_fallback"
	EventStopFallback      Event = "stop_fallback"
	EventMissingQuote      Event = "missing_quote"
	EventInsufficientFunds Event = "insufficient_funds"
	EventLotTooSmall       Event = "lot_too_small"
	EventExposureTrimmed   Event = "exposure_trimmed"
	EventRegimeChange      Event = "regime_change"
	EventSeriesDropped     Event = "series_dropped"
)

// LogEntry is one recorded simulator decision.
type LogEntry struct {
	// Timestamp is the simulated date the decision was taken on.
	Timestamp time.Time
	// Symbol is the instrument the decision concerns, empty for portfolio-wide events.
	Symbol string
	Level  types.LogLevel
	Event  Event
	// Message is a human readable description.
	Message string
	// Fields contains optional structured key-value data.
	Fields map[string]string
}

// Log stores the decisions taken during a run.
type Log interface {
	// Log stores a log entry.
	Log(entry LogEntry) error
	// GetLogs retrieves all stored log entries in insertion order.
	GetLogs() ([]LogEntry, error)
}
