package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// flushThreshold is the batch size that triggers a write without waiting for the ticker.
const flushThreshold = 100

// Recorder accepts entries for asynchronous persistence.
type Recorder interface {
	// Record queues e. It never blocks; a nil entry is ignored.
	Record(e *Entry)
	Close() error
}

// BufferedRecorder collects entries in a channel and writes them to a Store
// when a batch fills up or the flush interval elapses.
type BufferedRecorder struct {
	store  Store
	logger *slog.Logger
	buffer chan *Entry
	done   chan struct{}
	loop   sync.WaitGroup
	// inflight tracks Record calls so Close never closes buffer under a sender.
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewBufferedRecorder starts the background flush loop. Zero config fields
// take their DefaultConfig values.
func NewBufferedRecorder(store Store, cfg Config, logger *slog.Logger) *BufferedRecorder {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &BufferedRecorder{
		store:  store,
		logger: logger,
		buffer: make(chan *Entry, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	r.loop.Add(1)
	go r.flushLoop(cfg.FlushInterval)
	return r
}

// Record queues e for writing. When the buffer is full or the recorder is
// closed the entry is dropped.
func (r *BufferedRecorder) Record(e *Entry) {
	if e == nil || r.closed.Load() {
		return
	}
	r.inflight.Add(1)
	defer r.inflight.Done()
	if r.closed.Load() {
		return
	}

	select {
	case r.buffer <- e:
	default:
		r.logger.Warn("usage buffer full, dropping entry",
			"request_id", e.RequestID,
			"service", e.Service,
		)
	}
}

// Close drains queued entries, writes them and closes the store. It is idempotent.
func (r *BufferedRecorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.inflight.Wait()
	close(r.done)
	r.loop.Wait()
	return r.store.Close()
}

func (r *BufferedRecorder) flushLoop(interval time.Duration) {
	defer r.loop.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushThreshold)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = make([]*Entry, 0, flushThreshold)
	}

	for {
		select {
		case e := <-r.buffer:
			batch = append(batch, e)
			if len(batch) >= flushThreshold {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			close(r.buffer)
			for e := range r.buffer {
				batch = append(batch, e)
			}
			flush()
			return
		}
	}
}

func (r *BufferedRecorder) write(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.store.WriteBatch(ctx, batch); err != nil {
		r.logger.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}

// NoopRecorder discards every entry. It is used when recording is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(*Entry) {}

func (NoopRecorder) Close() error { return nil }
