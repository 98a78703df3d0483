package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
)

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

// Recorder accepts audit events without blocking the caller and writes them
// to a sink on a background goroutine. Events offered while the buffer is
// full are counted and dropped rather than stalling a login path.
type Recorder struct {
	sink    ports.AuditSink
	events  chan domain.AuditEvent
	wg      sync.WaitGroup
	dropped atomic.Uint64
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a Recorder with the given buffer size and starts its
// worker. If buffer <= 0, defaultBuffer is used.
func NewRecorder(sink ports.AuditSink, buffer int, log zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		sink:   sink,
		events: make(chan domain.AuditEvent, buffer),
		log:    log,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record offers an event to the recorder. It never blocks.
func (r *Recorder) Record(event domain.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.events <- event:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded due to a full buffer or a
// closed recorder.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting events, drains the buffer, and waits for the worker
// to finish. It is safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.Write(ctx, event); err != nil {
			r.log.Error().Err(err).
				Str("action", event.Action).
				Msg("audit write failed")
		}
		cancel()
	}
}
