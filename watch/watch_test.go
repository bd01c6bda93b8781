package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/diagrammer/dbopen"
	"github.com/hazyhaar/diagrammer/store"
)

type counter struct{ v atomic.Int64 }

func (c *counter) version(context.Context) (int64, error) { return c.v.Load(), nil }

func TestOnChangeFiresOnVersionChange(t *testing.T) {
	var c counter
	var reloads atomic.Int32
	w := New(c.version, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	c.v.Store(1)
	time.Sleep(80 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected 1 reload, got %d", got)
	}

	c.v.Store(2)
	time.Sleep(80 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Fatalf("expected 2 reloads, got %d", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Fatalf("expected still 2, got %d", got)
	}
}

func TestOnChangeDebounce(t *testing.T) {
	var c counter
	var reloads atomic.Int32
	w := New(c.version, Options{Interval: 20 * time.Millisecond, Debounce: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	for i := int64(1); i <= 5; i++ {
		c.v.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("expected 0 reloads during debounce, got %d", got)
	}
	time.Sleep(200 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected exactly 1 debounced reload, got %d", got)
	}
}

func TestOnChangeErrorRetries(t *testing.T) {
	var c counter
	var calls atomic.Int32
	w := New(c.version, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("reload failed")
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	c.v.Store(1)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := w.WaitForVersion(waitCtx, 1); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	if got := calls.Load(); got < 2 {
		t.Fatalf("expected a retry after failure, got %d calls", got)
	}
	if s := w.Stats(); s.Errors == 0 || s.Reloads == 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestWaitForVersionTimeout(t *testing.T) {
	var c counter
	w := New(c.version, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func(context.Context) error { return nil })

	waitCtx, waitCancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer waitCancel()
	if err := w.WaitForVersion(waitCtx, 99); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestStoreVersionDrivesReload(t *testing.T) {
	st := store.New(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)))
	w := New(st.Version, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan string, 4)
	go w.OnChange(ctx, func(ctx context.Context) error {
		es, ok, err := st.LoadEditorState(ctx)
		if err != nil {
			return err
		}
		if ok {
			got <- es.Code
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if _, err := st.SaveEditorState(ctx, "graph TD\nA-->B"); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-got:
		if code != "graph TD\nA-->B" {
			t.Fatalf("code = %q", code)
		}
	case <-ctx.Done():
		t.Fatal("reload never ran")
	}
}
