package events

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingObserver implements Observer for testing.
type recordingObserver struct {
	mu    sync.Mutex
	calls []observed
}

type observed struct {
	name      string
	listeners int
	err       error
}

func (o *recordingObserver) Emitted(name string, listeners int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observed{name: name, listeners: listeners, err: err})
}

func TestEmit_HelloScenario(t *testing.T) {
	e := New()
	var order []string

	e.On("hello", func(...any) error { order = append(order, "first listener"); return nil })
	e.On("hello", func(...any) error { order = append(order, "second listener"); return nil })

	if err := e.Emit("hello"); err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}

	want := []string{"first listener", "second listener"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestEmit_RegistrationOrder(t *testing.T) {
	for _, n := range []int{1, 2, 5, 50} {
		t.Run(fmt.Sprintf("%d_listeners", n), func(t *testing.T) {
			e := New()
			var got []int
			for i := 0; i < n; i++ {
				i := i
				e.On("evt", func(...any) error {
					got = append(got, i)
					return nil
				})
			}
			if err := e.Emit("evt"); err != nil {
				t.Fatalf("Emit: %v", err)
			}
			if len(got) != n {
				t.Fatalf("invoked %d listeners, want %d", len(got), n)
			}
			for i, v := range got {
				if v != i {
					t.Fatalf("listener at position %d was %d", i, v)
				}
			}
		})
	}
}

func TestEmit_NoListeners(t *testing.T) {
	obs := &recordingObserver{}
	e := New(WithObserver(obs))

	if err := e.Emit("nobody-home", 1, 2, 3); err != nil {
		t.Errorf("Emit with no listeners returned %v", err)
	}
	if len(obs.calls) != 0 {
		t.Errorf("observer called %d times for empty emission", len(obs.calls))
	}
}

func TestEmit_DuplicateListener(t *testing.T) {
	e := New()
	calls := 0
	l := func(...any) error { calls++; return nil }

	e.On("dup", l)
	e.On("dup", l)

	if err := e.Emit("dup"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if e.ListenerCount("dup") != 2 {
		t.Errorf("ListenerCount = %d, want 2", e.ListenerCount("dup"))
	}
}

func TestEmit_PassesArgs(t *testing.T) {
	e := New()
	var got []any
	e.On("data", func(args ...any) error {
		got = args
		return nil
	})

	if err := e.Emit("data", "chunk", 42); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(got) != 2 || got[0] != "chunk" || got[1] != 42 {
		t.Errorf("args = %v", got)
	}
}

func TestEmit_FailFast(t *testing.T) {
	obs := &recordingObserver{}
	e := New(WithObserver(obs))
	boom := errors.New("boom")
	var ran []int

	e.On("evt", func(...any) error { ran = append(ran, 0); return nil })
	e.On("evt", func(...any) error { ran = append(ran, 1); return boom })
	e.On("evt", func(...any) error { ran = append(ran, 2); return nil })

	err := e.Emit("evt")
	if !errors.Is(err, boom) {
		t.Fatalf("Emit error = %v, want %v", err, boom)
	}

	var lerr *ListenerError
	if !errors.As(err, &lerr) {
		t.Fatalf("error is not *ListenerError: %T", err)
	}
	if lerr.Event != "evt" || lerr.Index != 1 {
		t.Errorf("ListenerError = %+v", lerr)
	}
	if len(ran) != 2 {
		t.Errorf("ran = %v, third listener must not run", ran)
	}

	if len(obs.calls) != 1 || !errors.Is(obs.calls[0].err, boom) || obs.calls[0].listeners != 3 {
		t.Errorf("observer calls = %+v", obs.calls)
	}

	// The registry is unaffected: the next emission starts from the first listener again.
	ran = nil
	_ = e.Emit("evt")
	if len(ran) != 2 || ran[0] != 0 {
		t.Errorf("second emission ran = %v", ran)
	}
}

func TestEmit_PanicPropagates(t *testing.T) {
	e := New()
	second := false
	e.On("evt", func(...any) error { panic("listener panic") })
	e.On("evt", func(...any) error { second = true; return nil })

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic to propagate to caller")
		}
		if second {
			t.Error("second listener ran after panic")
		}
	}()
	_ = e.Emit("evt")
}

func TestEmit_ListenerAddedDuringEmission(t *testing.T) {
	e := New()
	lateCalls := 0

	e.On("evt", func(...any) error {
		e.On("evt", func(...any) error { lateCalls++; return nil })
		return nil
	})

	if err := e.Emit("evt"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if lateCalls != 0 {
		t.Errorf("listener added during emission ran %d times", lateCalls)
	}

	// It is part of the registry for the next emission.
	if err := e.Emit("evt"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if lateCalls != 1 {
		t.Errorf("lateCalls = %d, want 1", lateCalls)
	}
}

func TestEmit_NamesAreIndependent(t *testing.T) {
	e := New()
	a, b := 0, 0
	e.On("a", func(...any) error { a++; return nil })
	e.On("b", func(...any) error { b++; return nil })

	_ = e.Emit("a")
	_ = e.Emit("a")

	if a != 2 || b != 0 {
		t.Errorf("a=%d b=%d, want a=2 b=0", a, b)
	}
}

func TestOn_NilListenerIgnored(t *testing.T) {
	e := New()
	e.On("evt", nil)
	if e.ListenerCount("evt") != 0 {
		t.Errorf("nil listener was registered")
	}
	if err := e.Emit("evt"); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestListenersAndEventNames(t *testing.T) {
	e := New()
	e.On("zeta", func(...any) error { return nil })
	e.On("alpha", func(...any) error { return nil })
	e.On("alpha", func(...any) error { return nil })

	names := e.EventNames()
	if strings.Join(names, ",") != "alpha,zeta" {
		t.Errorf("EventNames = %v", names)
	}

	ls := e.Listeners("alpha")
	if len(ls) != 2 {
		t.Fatalf("Listeners len = %d, want 2", len(ls))
	}
	// Mutating the copy must not touch the registry.
	ls[0] = nil
	if e.Listeners("alpha")[0] == nil {
		t.Error("Listeners returned the internal slice")
	}
	if len(e.Listeners("missing")) != 0 {
		t.Error("Listeners for unknown name should be empty")
	}
}

func TestEmit_ConcurrentOnAndEmit(t *testing.T) {
	e := New()
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.On("evt", func(...any) error {
				mu.Lock()
				total++
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = e.Emit("evt")
		}()
	}
	wg.Wait()

	if e.ListenerCount("evt") != 10 {
		t.Errorf("ListenerCount = %d, want 10", e.ListenerCount("evt"))
	}

	mu.Lock()
	before := total
	mu.Unlock()
	_ = e.Emit("evt")
	mu.Lock()
	defer mu.Unlock()
	if total-before != 10 {
		t.Errorf("final emission invoked %d listeners, want 10", total-before)
	}
}

func TestEmit_DebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := New(WithLogger(logger))
	e.On("traced", func(...any) error { return nil })

	_ = e.Emit("traced")

	if !strings.Contains(buf.String(), "event_emitted") || !strings.Contains(buf.String(), "event=traced") {
		t.Errorf("debug log missing emission trace: %s", buf.String())
	}
}

func TestPublisher_SubscribePublish(t *testing.T) {
	var p Publisher = New()
	var got []any

	p.Subscribe("topic", func(payload any) error {
		got = append(got, payload)
		return nil
	})
	p.Subscribe("topic", func(payload any) error {
		got = append(got, "second")
		return nil
	})

	if err := p.Publish("topic", "payload"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 2 || got[0] != "payload" || got[1] != "second" {
		t.Errorf("got = %v", got)
	}
}

func TestPublisher_HandlerError(t *testing.T) {
	e := New()
	errBad := errors.New("bad payload")
	e.Subscribe("topic", func(any) error { return errBad })

	if err := e.Publish("topic", nil); !errors.Is(err, errBad) {
		t.Errorf("Publish error = %v, want %v", err, errBad)
	}
}

func TestSubscribe_EmitWithoutArgsDeliversNil(t *testing.T) {
	e := New()
	called := false
	e.Subscribe("topic", func(payload any) error {
		called = true
		if payload != nil {
			t.Errorf("payload = %v, want nil", payload)
		}
		return nil
	})
	_ = e.Emit("topic")
	if !called {
		t.Error("handler not called")
	}
}
