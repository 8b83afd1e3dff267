package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()
	fg := newGroup()
	var called []string
	err := fg.Execute(context.Background(), func(name, v string) error {
		called = append(called, name)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(called, []string{"primary"}) {
		t.Fatalf("called = %v, want [primary]", called)
	}
}

func TestFallbackGroup_Failover(t *testing.T) {
	t.Parallel()
	fg := newGroup()
	got, err := ExecuteWithResult(context.Background(), fg, func(_ string, v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return "from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from secondary" {
		t.Errorf("got %q", got)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	fg := newGroup()
	err := fg.Execute(context.Background(), func(string, string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want to wrap the last error", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsEntry(t *testing.T) {
	t.Parallel()
	fg := newGroup()
	failPrimary := func(name, _ string) error {
		if name == "primary" {
			return errTest
		}
		return nil
	}
	_ = fg.Execute(context.Background(), failPrimary)
	_ = fg.Execute(context.Background(), failPrimary)
	if fg.States()["primary"] != StateOpen {
		t.Fatalf("primary state = %v, want open", fg.States()["primary"])
	}

	var called []string
	_ = fg.Execute(context.Background(), func(name, _ string) error {
		called = append(called, name)
		return nil
	})
	if !slices.Equal(called, []string{"secondary"}) {
		t.Errorf("called = %v, want only the secondary", called)
	}
}

func TestFallbackGroup_CancelledContextStops(t *testing.T) {
	t.Parallel()
	fg := newGroup()
	ctx, cancel := context.WithCancel(context.Background())

	var called []string
	err := fg.Execute(ctx, func(name, _ string) error {
		called = append(called, name)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(called, []string{"primary"}) {
		t.Errorf("called = %v, want the primary only", called)
	}
	if fg.States()["primary"] != StateClosed {
		t.Error("cancellation counted against the primary")
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	if got := newGroup().Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names = %v", got)
	}
}
