package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCascadeFirstSuccessWins(t *testing.T) {
	c := NewCascade[string](BreakerConfig{}).
		Add("primary", "a").
		Add("secondary", "b")

	var tried []string
	got, err := RunResult(context.Background(), c, func(_ context.Context, v string) (string, error) {
		tried = append(tried, v)
		return "result-" + v, nil
	})
	if err != nil {
		t.Fatalf("RunResult: %v", err)
	}
	if got != "result-a" {
		t.Fatalf("got %q, want result from primary", got)
	}
	if len(tried) != 1 {
		t.Fatalf("tried %v, want primary only", tried)
	}
}

func TestCascadeFallsThroughOnFailure(t *testing.T) {
	c := NewCascade[int](BreakerConfig{}).
		Add("us-central1/gemini-2.0-flash", 1).
		Add("us-east1/gemini-2.0-flash", 2).
		Add("us-central1/gemini-1.5-pro", 3)

	got, err := RunResult(context.Background(), c, func(_ context.Context, v int) (int, error) {
		if v < 3 {
			return 0, errBoom
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("RunResult: %v", err)
	}
	if got != 30 {
		t.Fatalf("got %d, want 30 from third entry", got)
	}
}

func TestCascadeExhaustedJoinsErrors(t *testing.T) {
	errA := errors.New("region unavailable")
	errB := errors.New("model overloaded")
	c := NewCascade[string](BreakerConfig{}).
		Add("a", "a").
		Add("b", "b")

	_, err := RunResult(context.Background(), c, func(_ context.Context, v string) (string, error) {
		if v == "a" {
			return "", errA
		}
		return "", errB
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("joined error should carry both attempt failures: %v", err)
	}
}

func TestCascadeSkipsOpenBreakers(t *testing.T) {
	c := NewCascade[string](BreakerConfig{MaxFailures: 1, Cooldown: time.Hour}).
		Add("flaky", "flaky").
		Add("healthy", "healthy")

	// First run trips the flaky entry's breaker.
	_, err := RunResult(context.Background(), c, func(_ context.Context, v string) (string, error) {
		if v == "flaky" {
			return "", errBoom
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run must not touch the flaky entry at all.
	var tried []string
	got, err := RunResult(context.Background(), c, func(_ context.Context, v string) (string, error) {
		tried = append(tried, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got != "healthy" || len(tried) != 1 {
		t.Fatalf("tried %v, want healthy only", tried)
	}
}

func TestCascadeHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCascade[int](BreakerConfig{}).Add("a", 1).Add("b", 2)

	calls := 0
	_, err := RunResult(ctx, c, func(_ context.Context, v int) (int, error) {
		calls++
		cancel() // cancel mid-cascade; the next entry must not run
		return 0, errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times after cancellation, want 1", calls)
	}
}

func TestCascadeAllBreakersOpen(t *testing.T) {
	c := NewCascade[string](BreakerConfig{MaxFailures: 1, Cooldown: time.Hour}).Add("only", "v")

	_, _ = RunResult(context.Background(), c, func(_ context.Context, _ string) (string, error) {
		return "", errBoom
	})
	_, err := RunResult(context.Background(), c, func(_ context.Context, _ string) (string, error) {
		return "ok", nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted when every breaker is open", err)
	}
}

func TestCascadeRun(t *testing.T) {
	c := NewCascade[string](BreakerConfig{}).Add("x", "x")
	if err := c.Run(context.Background(), func(_ context.Context, _ string) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := c.Names(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("Names = %v", got)
	}
}
