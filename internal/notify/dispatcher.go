package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jobhub/internal/errors"
	"jobhub/internal/logger"
	"jobhub/internal/storage"
)

// Ledger durably records notifications.
type Ledger interface {
	CreateNotification(ctx context.Context, n *storage.Notification) error
}

// Publisher pushes a payload to every connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Stats are cumulative counters since the dispatcher started.
type Stats struct {
	Delivered       int64 `json:"delivered"`
	Dropped         int64 `json:"dropped"`
	LedgerFailures  int64 `json:"ledger_failures"`
	PublishFailures int64 `json:"publish_failures"`
}

// Dispatcher runs the ledger write and the presence publish of each event on
// a fixed worker pool fed by a bounded queue. Notify never blocks: when the
// queue is full the event is dropped and logged.
type Dispatcher struct {
	ledger    Ledger
	publisher Publisher
	timeout   time.Duration
	logger    *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup

	delivered, dropped, ledgerFailures, publishFailures atomic.Int64
}

// NewDispatcher starts the workers. publisher may be nil when no presence
// transport is configured.
func NewDispatcher(ledger Ledger, publisher Publisher, opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Logger
	}

	d := &Dispatcher{
		ledger:    ledger,
		publisher: publisher,
		timeout:   opts.Timeout,
		logger:    log.Named("notify"),
		queue:     make(chan Event, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Infow("Notification workers started", "workers", opts.Workers, "queue_size", opts.QueueSize)
	return d
}

// Notify enqueues e and reports whether it was accepted.
func (d *Dispatcher) Notify(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.queue <- e:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warnw("Notification queue full, dropping event",
			"kind", e.Kind,
			logger.FieldRecipientID, e.RecipientUserID,
			logger.FieldApplicationID, e.ApplicationID,
			logger.FieldJobID, e.JobID,
		)
		return false
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Infow("Notification workers stopped", "delivered", d.delivered.Load(), "dropped", d.dropped.Load())
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered:       d.delivered.Load(),
		Dropped:         d.dropped.Load(),
		LedgerFailures:  d.ledgerFailures.Load(),
		PublishFailures: d.publishFailures.Load(),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(e)
	}
}

// deliver attempts both sinks independently. Errors and panics are logged
// with the event's ids and never propagate.
func (d *Dispatcher) deliver(e Event) {
	start := time.Now()
	ledgerErr := d.run("ledger", e, func(ctx context.Context) error {
		return d.ledger.CreateNotification(ctx, e.Notification())
	})
	if ledgerErr != nil {
		d.ledgerFailures.Add(1)
	}

	if d.publisher != nil {
		publishErr := d.run("presence", e, func(ctx context.Context) error {
			payload, err := Payload(e)
			if err != nil {
				return err
			}
			return d.publisher.Publish(ctx, e.RecipientUserID, payload)
		})
		if publishErr != nil {
			d.publishFailures.Add(1)
		}
	}

	d.delivered.Add(1)
	d.logger.Debugw("Notification delivered",
		"kind", e.Kind,
		logger.FieldRecipientID, e.RecipientUserID,
		logger.FieldApplicationID, e.ApplicationID,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
}

func (d *Dispatcher) run(sink string, e Event, fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
		if err != nil {
			d.logger.Errorw("Notification sink failed",
				logger.FieldSink, sink,
				"kind", e.Kind,
				logger.FieldRecipientID, e.RecipientUserID,
				logger.FieldApplicationID, e.ApplicationID,
				logger.FieldJobID, e.JobID,
				logger.FieldError, err,
			)
		}
	}()

	return fn(ctx)
}
