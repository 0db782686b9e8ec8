// Package dispatcher routes host commands to handlers. Handlers run inline
// or behind a per-command queue drained by one goroutine, which keeps the
// events of one command in arrival order.
package dispatcher

import (
	"fmt"
	"sync"
	"time"
)

// Event represents an incoming command from the game host.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered queues up to size events and returns "queued" immediately.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full buffer wait for room instead of dropping the event.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs the start, duration and outcome of every call.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *instruments

	hmu      sync.RWMutex
	handlers map[string]HandlerFunc

	// pending counts buffered events not yet handled
	pending sync.WaitGroup

	mu      sync.RWMutex
	buffers map[string]chan Event
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
	}
	in, err := newInstruments(d.QueueLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = in
	return d, nil
}

// Register adds or replaces the handler for command.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	handler := d.measured(command, h)
	if o.bufferSize > 0 {
		handler = d.withBuffer(command, o.bufferSize, o.blocking, handler)
	}
	if o.logged {
		handler = d.withLogging(command, handler)
	}

	d.hmu.Lock()
	d.handlers[command] = handler
	d.hmu.Unlock()
}

// Dispatch routes an event to its registered handler.
// Handlers may be registered while other events are being dispatched.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.hmu.RLock()
	h, ok := d.handlers[e.Command]
	d.hmu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Wait blocks until every buffered event accepted so far has been handled.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// QueueLengths reports the current depth of each buffered command's queue.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for cmd, buf := range d.buffers {
		out[cmd] = len(buf)
	}
	return out
}

func (d *Dispatcher) measured(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		res, err := h(e)
		d.metrics.observe(command, time.Since(start), err)
		return res, err
	}
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	go func() {
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "command", command, "error", err)
			}
			d.pending.Done()
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			d.pending.Add(1)
			buffer <- e
			return "queued", nil
		}
	}

	return func(e Event) (any, error) {
		d.pending.Add(1)
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.pending.Done()
			d.metrics.drop(command)
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
