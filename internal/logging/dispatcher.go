package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// #region config
// DispatcherConfig bounds background audit writes.
type DispatcherConfig struct {
	MaxInFlight  int64         // concurrent writes before new records are dropped
	WriteTimeout time.Duration // per record, across all sinks
}

// DefaultDispatcherConfig returns the bounds used when none are configured.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxInFlight:  64,
		WriteTimeout: 5 * time.Second,
	}
}
// #endregion config

// #region dispatcher
// Dispatcher writes audit records to every sink in the background.
// Emit never blocks: when MaxInFlight writes are pending the record is
// dropped and counted.
type Dispatcher struct {
	sinks  []Sink
	cfg    DispatcherConfig
	logger *zap.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu      sync.RWMutex // guards closed against wg.Add racing Close
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewDispatcher creates a dispatcher over sinks. A nil logger discards.
func NewDispatcher(logger *zap.Logger, cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sinks:  sinks,
		cfg:    cfg,
		logger: logger,
		sem:    semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// Emit schedules rec for writing and returns immediately. It fills in the
// record id and timestamp so every sink stores the same values.
func (d *Dispatcher) Emit(rec AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(d.sinks) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || !d.sem.TryAcquire(1) {
		d.dropped.Add(1)
		d.logger.Warn("[AUDIT] record dropped",
			zap.String("id", rec.ID),
			zap.String("stage", rec.Stage),
			zap.Bool("closed", d.closed))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.write(rec)
	}()
}

func (d *Dispatcher) write(rec AuditRecord) {
	// Detached from the request context: the learner response may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	for _, s := range d.sinks {
		if err := s.Write(ctx, rec); err != nil {
			d.failed.Add(1)
			d.logger.Warn("[AUDIT] write failed",
				zap.String("id", rec.ID),
				zap.String("learner_id", rec.LearnerID),
				zap.String("stage", rec.Stage),
				zap.Error(err))
		}
	}
}

// Close stops accepting records and waits for pending writes or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many records were discarded without a write attempt.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed returns how many sink writes returned an error.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }
// #endregion dispatcher
