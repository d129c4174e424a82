package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/valter-silva-au/scrapewatch/internal/logging"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const (
	defaultEventBufferSize    = 100
	defaultEventFlushInterval = time.Second
)

// highFrequencyCategories are always buffered regardless of options.
var highFrequencyCategories = map[string]bool{
	"timing":   true,
	"parallel": true,
	"batch":    true,
	"polling":  true,
}

// Sink receives every event the EventLog dispatches.
type Sink func(category, message string, meta map[string]any)

// Dispatch is one event as delivered to the sink and to observers.
type Dispatch struct {
	Category  string
	Message   string
	Meta      map[string]any
	Timestamp time.Time
}

// Observer is notified of every dispatched event, after the sink.
// Observers must not log through the EventLog they observe.
type Observer interface {
	Observe(d Dispatch)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(d Dispatch)

// Observe calls f(d).
func (f ObserverFunc) Observe(d Dispatch) { f(d) }

// EventLogOptions configures an EventLog. Zero values take defaults.
type EventLogOptions struct {
	BufferSize    int
	FlushInterval time.Duration
	Sink          Sink
	Logger        *log.Logger
	Now           func() time.Time
}

// EventLogStats counts what the EventLog has done since creation.
type EventLogStats struct {
	Dispatched int64 `json:"dispatched"`
	Buffered   int64 `json:"buffered"`
	Flushes    int64 `json:"flushes"`
}

// EventLog decorates events with session context and dispatches them either
// immediately or through a bounded FIFO buffer drained by a ticker.
type EventLog struct {
	mu       sync.Mutex
	buffer   []Dispatch
	capacity int
	contexts map[string]*models.SessionContext
	stats    EventLogStats
	started  bool
	closed   bool

	// dispatchMu serialises delivery so the sink sees events in append order.
	// Lock order: mu, then dispatchMu.
	dispatchMu sync.Mutex
	sink       Sink
	observers  []Observer

	interval time.Duration
	now      func() time.Time
	logger   *log.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewEventLog creates an EventLog. Call Start to begin periodic draining.
func NewEventLog(opts EventLogOptions) *EventLog {
	l := &EventLog{
		capacity: opts.BufferSize,
		contexts: make(map[string]*models.SessionContext),
		sink:     opts.Sink,
		interval: opts.FlushInterval,
		now:      opts.Now,
		logger:   opts.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if l.capacity <= 0 {
		l.capacity = defaultEventBufferSize
	}
	if l.interval <= 0 {
		l.interval = defaultEventFlushInterval
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.sink == nil {
		l.sink = func(string, string, map[string]any) {}
	}
	return l
}

// LoggerSink returns a Sink that writes events to the process logger.
func LoggerSink(logger *log.Logger) Sink {
	return func(category, message string, meta map[string]any) {
		var e *log.Entry
		switch category {
		case "error":
			e = logger.Error()
		case "retry":
			e = logger.Warn()
		case "timing", "parallel", "batch", "polling", "buffer":
			e = logger.Debug()
		default:
			e = logger.Info()
		}
		e.Str("category", category).Any("meta", logging.Redact(meta)).Msg(message)
	}
}

// Subscribe registers an observer for every subsequently dispatched event.
func (l *EventLog) Subscribe(o Observer) {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()
	l.observers = append(l.observers, o)
}

// Start launches the periodic drain. It returns immediately.
func (l *EventLog) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Flush()
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Log records an event. High-frequency categories and events logged with
// WithAsync(true) are buffered; everything else reaches the sink before Log
// returns.
func (l *EventLog) Log(category, message string, data map[string]any, opts ...LogOption) {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}
	l.log(category, message, data, o)
}

func (l *EventLog) log(category, message string, data map[string]any, o logOptions) {
	l.mu.Lock()
	d := l.decorateLocked(category, message, data, o)

	async := highFrequencyCategories[category] || (o.async != nil && *o.async)
	if async && !l.closed {
		l.buffer = append(l.buffer, d)
		l.stats.Buffered++
		if len(l.buffer) < l.capacity {
			l.mu.Unlock()
			return
		}
		batch := l.takeLocked()
		l.dispatchMu.Lock()
		l.mu.Unlock()
		defer l.dispatchMu.Unlock()
		l.deliver(batch)
		return
	}

	l.stats.Dispatched++
	l.dispatchMu.Lock()
	l.mu.Unlock()
	defer l.dispatchMu.Unlock()
	l.deliver([]Dispatch{d})
}

// decorateLocked applies the session context prefix and merges context into
// the event data.
func (l *EventLog) decorateLocked(category, message string, data map[string]any, o logOptions) Dispatch {
	meta := make(map[string]any, len(data)+8)
	for k, v := range data {
		meta[k] = v
	}

	if o.sessionID != "" {
		if ctx, ok := l.contexts[o.sessionID]; ok {
			message = contextPrefix(*ctx, o.correlationID) + message
			for k, v := range ctx.Fields() {
				meta[k] = v
			}
		} else {
			meta["sessionId"] = o.sessionID
		}
		for k, v := range o.extra {
			meta[k] = v
		}
		if o.correlationID != "" {
			meta["correlationId"] = o.correlationID
		}
	}

	return Dispatch{
		Category:  category,
		Message:   message,
		Meta:      meta,
		Timestamp: l.now(),
	}
}

// Flush drains up to one buffer's worth of the oldest events synchronously
// and returns how many were dispatched.
func (l *EventLog) Flush() int {
	l.mu.Lock()
	batch := l.takeLocked()
	if len(batch) == 0 {
		l.mu.Unlock()
		return 0
	}
	l.dispatchMu.Lock()
	l.mu.Unlock()
	defer l.dispatchMu.Unlock()

	l.deliver(batch)
	return len(batch)
}

func (l *EventLog) takeLocked() []Dispatch {
	n := len(l.buffer)
	if n == 0 {
		return nil
	}
	if n > l.capacity {
		n = l.capacity
	}
	batch := make([]Dispatch, n)
	copy(batch, l.buffer[:n])
	l.buffer = append(l.buffer[:0:0], l.buffer[n:]...)
	l.stats.Flushes++
	l.stats.Dispatched += int64(n)
	return batch
}

// deliver must be called with dispatchMu held.
func (l *EventLog) deliver(batch []Dispatch) {
	for _, d := range batch {
		l.safeCall(d, func() { l.sink(d.Category, d.Message, d.Meta) })
		for _, o := range l.observers {
			l.safeCall(d, func() { o.Observe(d) })
		}
	}
}

func (l *EventLog) safeCall(d Dispatch, fn func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error().
				Str("category", d.Category).
				Str("panic", fmt.Sprint(r)).
				Msg("event dispatch panicked")
		}
	}()
	fn()
}

// BufferLen returns the number of events waiting to be drained.
func (l *EventLog) BufferLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Capacity returns the buffer capacity.
func (l *EventLog) Capacity() int {
	return l.capacity
}

// Stats returns a snapshot of the dispatch counters.
func (l *EventLog) Stats() EventLogStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Shutdown stops the ticker, drains the buffer once and releases the context
// map. Later calls are no-ops; events logged afterwards dispatch immediately.
func (l *EventLog) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	close(l.stopCh)
	if started {
		<-l.doneCh
	}

	l.Flush()

	l.mu.Lock()
	l.buffer = nil
	l.contexts = make(map[string]*models.SessionContext)
	l.mu.Unlock()
}
