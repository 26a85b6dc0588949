// Package telemetry carries the discrete events the engine reports about
// user-initiated device commits.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EventKind identifies a telemetry event
type EventKind int

const (
	// EmulatorBound precedes every apply or reset
	EmulatorBound EventKind = iota + 1
	ApplyChangesSuccess
	ApplyChangesFailure
)

func (k EventKind) String() string {
	switch k {
	case EmulatorBound:
		return "emulator_bound"
	case ApplyChangesSuccess:
		return "apply_changes_success"
	case ApplyChangesFailure:
		return "apply_changes_failure"
	default:
		return "unknown"
	}
}

// Event is a single telemetry event. It carries no payload beyond its kind.
type Event struct {
	Kind EventKind
	Time time.Time
}

// Logger is the telemetry sink
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to Logger
type LoggerFunc func(event Event)

// Log calls f(event)
func (f LoggerFunc) Log(event Event) {
	f(event)
}

// Nop discards events
var Nop Logger = LoggerFunc(func(Event) {})

// Multi fans an event out to several sinks in order
type Multi []Logger

// Log forwards the event to every sink
func (m Multi) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

// ZapLogger writes events as structured log lines
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a sink that logs through logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger.Named("telemetry")}
}

// Log implements Logger
func (z *ZapLogger) Log(event Event) {
	z.logger.Info("Telemetry event",
		zap.String("kind", event.Kind.String()),
		zap.Time("time", event.Time))
}

// Metrics counts events in Prometheus
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics creates the event counter and registers it with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whsync_telemetry_events_total",
			Help: "Total number of telemetry events by kind",
		},
		[]string{"kind"},
	)
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Metrics{events: events}, nil
}

// Log implements Logger
func (m *Metrics) Log(event Event) {
	m.events.WithLabelValues(event.Kind.String()).Inc()
}

// Count returns the counter for a kind, for inspection in tests
func (m *Metrics) Count(kind EventKind) prometheus.Counter {
	return m.events.WithLabelValues(kind.String())
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log implements Logger
func (r *Recorder) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

// Kinds returns the kinds of the recorded events in order
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Clear drops all recorded events
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
