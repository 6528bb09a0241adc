package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the buffer is saturated; callers log it and
// carry on, they never fail the triggering request.
var ErrQueueFull = errors.New("mail queue full")

// DispatcherConfig tunes the background worker.
type DispatcherConfig struct {
	BufferSize  int
	MaxAttempts int
	RetryDelay  time.Duration
}

type job struct {
	id       string
	msg      Message
	attempts int
}

// Dispatcher queues messages and delivers them on a worker goroutine,
// retrying transient failures a bounded number of times.
type Dispatcher struct {
	cfg       DispatcherConfig
	sender    Sender
	logger    *slog.Logger
	ch        chan job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewDispatcher starts the worker. Close must be called on shutdown to drain
// the queue.
func NewDispatcher(cfg DispatcherConfig, sender Sender, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		ch:     make(chan job, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue hands a message to the worker without blocking. A full buffer
// drops the message and returns ErrQueueFull.
func (d *Dispatcher) Enqueue(_ context.Context, msg Message) error {
	// Checked on its own first: a select with a closed done channel and
	// free buffer space picks a case at random, which would let a message
	// slip into the buffer after shutdown with a nil return.
	select {
	case <-d.done:
		d.dropped.Add(1)
		return ErrQueueFull
	default:
	}

	j := job{id: uuid.NewString(), msg: msg}
	select {
	case d.ch <- j:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many messages were discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting work, drains buffered jobs, and waits for the
// worker to exit.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
		// An Enqueue that passed the done check before close(done) can
		// still land a job after the worker's drain pass; deliver those
		// stragglers here so an accepted message is never lost.
		for {
			select {
			case j := <-d.ch:
				d.deliver(j)
			default:
				return
			}
		}
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case j := <-d.ch:
			d.deliver(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	for {
		j.attempts++
		err := d.sender.Send(context.Background(), j.msg)
		if err == nil {
			d.logger.Debug("mail delivered", "job", j.id, "to", j.msg.To, "attempts", j.attempts)
			return
		}
		if j.attempts >= d.cfg.MaxAttempts {
			d.logger.Error("mail delivery abandoned", "job", j.id, "to", j.msg.To, "attempts", j.attempts, "err", err)
			return
		}
		d.logger.Warn("mail delivery retrying", "job", j.id, "to", j.msg.To, "attempt", j.attempts, "err", err)

		select {
		case <-time.After(d.cfg.RetryDelay):
		case <-d.done:
			// Shutdown in progress: one last immediate attempt via the
			// drain loop semantics, then give up on further delays.
			if err := d.sender.Send(context.Background(), j.msg); err != nil {
				d.logger.Error("mail delivery abandoned at shutdown", "job", j.id, "to", j.msg.To, "err", err)
			}
			return
		}
	}
}
