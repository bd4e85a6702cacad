// Package sender delivers outbound Telegram calls on sharded workers.
// Jobs sharing a key run on the same worker in enqueue order, so the replies of
// one chat never overtake each other.
package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("sender: queue closed")
	// ErrQueueFull is returned when the owning shard stayed full for EnqueueWait.
	ErrQueueFull = errors.New("sender: queue full")
)

// Options controls the dispatcher. Zero values select the defaults.
type Options struct {
	// QueueSize is the buffer of each shard.
	QueueSize int
	// Workers is the number of shards, one goroutine each.
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// EnqueueWait bounds how long Enqueue waits for a slot in a full shard.
	EnqueueWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 5 * time.Second
	}
	return o
}

// job is one outbound call. Run must be safe to repeat when retries are enabled.
type job struct {
	Key      string
	Action   string
	Endpoint string
	Run      func() error

	ctx context.Context
}

// Dispatcher runs jobs on xxhash-sharded single-goroutine workers.
type Dispatcher struct {
	opts   Options
	shards []chan job
	wg     sync.WaitGroup

	gate   sync.RWMutex
	closed bool

	sent, failed atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, shards: make([]chan job, opts.Workers)}
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		d.wg.Add(1)
		go func(in <-chan job) {
			defer d.wg.Done()
			for j := range in {
				d.deliver(j)
			}
		}(d.shards[i])
	}
	return d
}

// Shard returns the worker index serving key.
func (d *Dispatcher) Shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(d.shards)))
}

// Enqueue schedules a job behind the jobs already queued for key. When the
// shard is full it waits up to EnqueueWait for a slot, then gives up with
// ErrQueueFull; it never lets the job jump the queue. The job keeps ctx values
// for logging but outlives its cancellation.
func (d *Dispatcher) Enqueue(ctx context.Context, key, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	j := job{Key: key, Action: action, Endpoint: endpoint, Run: run, ctx: ctx}

	d.gate.RLock()
	defer d.gate.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	shard := d.shards[d.Shard(key)]
	select {
	case shard <- j:
		return nil
	default:
	}

	timer := time.NewTimer(d.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case shard <- j:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SentCount returns the number of delivered jobs.
func (d *Dispatcher) SentCount() uint64 { return d.sent.Load() }

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

// Close stops intake and waits until queued jobs are done. It is safe to call twice.
func (d *Dispatcher) Close() {
	d.gate.Lock()
	if d.closed {
		d.gate.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.gate.Unlock()
	d.wg.Wait()
}
