package logging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/goleak"
)

// #region fakes
type memorySink struct {
	mu   sync.Mutex
	recs []AuditRecord
}

func (m *memorySink) Write(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memorySink) records() []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditRecord(nil), m.recs...)
}

type failingSink struct{}

func (failingSink) Write(context.Context, AuditRecord) error {
	return errors.New("disk full")
}

// blockingSink holds every write until release is closed.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSink) Write(ctx context.Context, _ AuditRecord) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

// #endregion fakes

// #region dispatcher-tests
func TestDispatcher_FansOutToEverySink(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := &memorySink{}, &memorySink{}
	d := NewDispatcher(nil, DispatcherConfig{}, a, b)

	d.Emit(AuditRecord{Stage: "letter_writing", Outcome: "rejected"})
	d.Emit(AuditRecord{Stage: "letter_writing", Outcome: "advance"})

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(a.records()) != 2 || len(b.records()) != 2 {
		t.Fatalf("expected 2 records per sink, got %d and %d", len(a.records()), len(b.records()))
	}

	// Both sinks must see identical ids for the same record.
	ids := map[string]bool{}
	for _, r := range a.records() {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Errorf("record missing id or timestamp: %+v", r)
		}
		ids[r.ID] = true
	}
	for _, r := range b.records() {
		if !ids[r.ID] {
			t.Errorf("sink b saw unknown id %q", r.ID)
		}
	}
}

func TestDispatcher_FailureIsCountedNotFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := &memorySink{}
	d := NewDispatcher(nil, DispatcherConfig{}, failingSink{}, good)
	d.Emit(AuditRecord{Stage: "free_writing"})
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.Failed() != 1 {
		t.Errorf("expected 1 failed write, got %d", d.Failed())
	}
	if len(good.records()) != 1 {
		t.Errorf("healthy sink should still receive the record")
	}
}

func TestDispatcher_DropsWhenSaturated(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(nil, DispatcherConfig{MaxInFlight: 1, WriteTimeout: 5 * time.Second}, sink)

	d.Emit(AuditRecord{Stage: "book_review"})
	<-sink.started

	start := time.Now()
	d.Emit(AuditRecord{Stage: "book_review"})
	if time.Since(start) > time.Second {
		t.Error("Emit blocked on a saturated dispatcher")
	}
	if d.Dropped() != 1 {
		t.Errorf("expected 1 dropped record, got %d", d.Dropped())
	}

	close(sink.release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDispatcher_CloseHonorsContext(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(nil, DispatcherConfig{MaxInFlight: 1, WriteTimeout: 5 * time.Second}, sink)
	d.Emit(AuditRecord{Stage: "plot_brainstorm"})
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(sink.release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDispatcher_EmitAfterCloseDrops(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(nil, DispatcherConfig{}, sink)
	_ = d.Close(context.Background())

	d.Emit(AuditRecord{Stage: "letter_setup"})
	if d.Dropped() != 1 || len(sink.records()) != 0 {
		t.Errorf("expected record dropped after close, dropped=%d written=%d", d.Dropped(), len(sink.records()))
	}
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{})
	d.Emit(AuditRecord{Stage: "letter_setup"})
	if d.Dropped() != 0 {
		t.Error("no sinks is not a drop")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// #endregion dispatcher-tests

// #region redis-sink-tests
func TestRedisSink_Write(t *testing.T) {
	fake := &fakeStream{}
	sink := NewRedisSink(fake, "", 1000)

	if err := sink.Write(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(fake.args) != 1 {
		t.Fatalf("expected 1 XADD, got %d", len(fake.args))
	}
	got := fake.args[0]
	if got.Stream != DefaultStream {
		t.Errorf("expected stream %q, got %q", DefaultStream, got.Stream)
	}
	if got.MaxLen != 1000 || !got.Approx {
		t.Errorf("expected approximate cap 1000, got %d approx=%v", got.MaxLen, got.Approx)
	}
	values := got.Values.(map[string]interface{})
	if values["id"] != "rec-1" || values["outcome"] != "advance" {
		t.Errorf("unexpected values: %v", values)
	}
	if values["created_at"] != "2026-01-01T00:00:00.000000000Z" {
		t.Errorf("unexpected created_at: %v", values["created_at"])
	}
}

func TestRedisSink_Uncapped(t *testing.T) {
	fake := &fakeStream{}
	sink := NewRedisSink(fake, "custom", 0)
	if err := sink.Write(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fake.args[0].Stream != "custom" || fake.args[0].MaxLen != 0 {
		t.Errorf("unexpected args: %+v", fake.args[0])
	}
}

func TestRedisSink_Error(t *testing.T) {
	fake := &fakeStream{err: errors.New("connection refused")}
	sink := NewRedisSink(fake, "", 0)
	if err := sink.Write(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected error from failed XADD")
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

// #endregion redis-sink-tests
