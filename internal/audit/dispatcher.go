package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering and redelivery.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// DrainAttempts bounds deliveries per event after Close.
	DrainAttempts int
	// MaxAttempts bounds deliveries per event while running. Zero retries
	// until the sink accepts the event.
	MaxAttempts int
}

// Dispatcher asynchronously forwards audit events to a sink. A failed
// delivery is retried with exponential backoff. An event still rejected
// after MaxAttempts, or after DrainAttempts once closing, is written to the
// error log in full and abandoned so later events keep flowing.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	logger    *slog.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	retried   atomic.Uint64
	lost      atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink, logger *slog.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	if cfg.DrainAttempts <= 0 {
		cfg.DrainAttempts = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	backoff := d.cfg.RetryBackoff
	attempts, drainAttempts := 0, 0

	for {
		err := d.sink.Emit(context.Background(), event)
		if err == nil {
			return
		}

		attempts++
		if d.closed.Load() {
			drainAttempts++
			if drainAttempts >= d.cfg.DrainAttempts {
				d.deadLetter(event, err)
				return
			}
		} else if d.cfg.MaxAttempts > 0 && attempts >= d.cfg.MaxAttempts {
			d.deadLetter(event, err)
			return
		}

		d.retried.Add(1)
		d.logger.Warn("audit delivery failed, retrying", "event_id", event.ID, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.done:
			// Keep retrying without waiting for the full backoff once closing.
			timer.Stop()
		}

		backoff *= 2
		if backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}
}

func (d *Dispatcher) deadLetter(event Event, err error) {
	d.lost.Add(1)
	d.logger.Error("audit event abandoned",
		"event_id", event.ID,
		"event_type", event.EventType,
		"user_id", event.UserID,
		"session_id", event.SessionID,
		"ip", event.IP,
		"success", event.Success,
		"severity", event.Severity,
		"error_code", event.Error,
		"timestamp", event.Timestamp,
		"metadata", event.Metadata,
		"error", err,
	)
}

// Emit enqueues event. It never blocks the caller when DropIfFull is set;
// otherwise it waits for buffer space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops intake and drains buffered events.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped counts events rejected at enqueue time.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Retried counts failed delivery attempts that were retried.
func (d *Dispatcher) Retried() uint64 {
	if d == nil {
		return 0
	}
	return d.retried.Load()
}

// Lost counts events abandoned after exhausting their delivery attempts.
func (d *Dispatcher) Lost() uint64 {
	if d == nil {
		return 0
	}
	return d.lost.Load()
}
