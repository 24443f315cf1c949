package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/repair-center/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func TestSubscribe_ReplacesSameName(t *testing.T) {
	d := NewDispatcher()
	var first, second int32

	d.Subscribe("cache", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&first, 1)
		return nil
	}, event.TypePaymentCreated, event.TypePaymentSettled)
	d.Subscribe("cache", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	}, event.TypePaymentSettled)

	if got := d.ListHandlers(event.TypePaymentSettled); len(got) != 1 {
		t.Fatalf("ListHandlers() = %v, want one handler", got)
	}

	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypePaymentSettled, 1, nil))
	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypePaymentCreated, 1, nil))

	if first != 1 || second != 1 {
		t.Errorf("first=%d second=%d, want 1/1", first, second)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }
	d.Subscribe("a", noop, event.TypeWorkflowReceived, event.TypeWorkflowTransitioned)
	d.Subscribe("b", noop, event.TypeWorkflowTransitioned)

	d.Unsubscribe("a")

	if got := d.ListHandlers(event.TypeWorkflowReceived); len(got) != 0 {
		t.Errorf("handlers after unsubscribe = %v", got)
	}
	if got := d.ListHandlers(event.TypeWorkflowTransitioned); len(got) != 1 || got[0] != "b" {
		t.Errorf("handlers after unsubscribe = %v", got)
	}
}

func TestDispatch_RunsAllAndJoinsErrors(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	errBoom := errors.New("boom")
	var ran []string

	d.Subscribe("fails", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "fails")
		return errBoom
	}, event.TypeApprovalResolved)
	d.Subscribe("panics", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "panics")
		panic("bad handler")
	}, event.TypeApprovalResolved)
	d.Subscribe("ok", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "ok")
		return nil
	}, event.TypeApprovalResolved)

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeApprovalResolved, 5, nil))
	if !errors.Is(err, errBoom) {
		t.Errorf("Dispatch() error = %v, want errBoom", err)
	}
	if len(ran) != 3 || ran[2] != "ok" {
		t.Errorf("handlers ran = %v", ran)
	}
	if logger.ErrorCount() != 2 {
		t.Errorf("logged errors = %d, want 2", logger.ErrorCount())
	}
}

func TestDispatchAsync_DetachedFromCancel(t *testing.T) {
	d := NewDispatcher()
	done := make(chan error, 1)

	d.Subscribe("watch", func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
		return nil
	}, event.TypePaymentSettled)

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, event.NewEvent(event.TypePaymentSettled, 1, nil))
	cancel()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("handler saw cancelled context: %v", err)
	}
}

func TestClose(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v, want ErrClosed", err)
	}
	if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeWorkflowReceived, 1, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() after close = %v, want ErrClosed", err)
	}
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var count int64
	d.Subscribe("count", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt64(&count, 1)
		return nil
	}, event.TypeWorkflowTransitioned)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.DispatchAsync(context.Background(), event.NewEvent(event.TypeWorkflowTransitioned, int64(i), nil))
		}(i)
	}
	wg.Wait()
	_ = d.Close()

	if got := atomic.LoadInt64(&count); got != 50 {
		t.Errorf("handled = %d, want 50", got)
	}
}
