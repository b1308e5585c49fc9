package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, BaseDelay: time.Millisecond}, nil,
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastErrorOnExhaustion(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := Do(context.Background(), Config{Attempts: 2, BaseDelay: time.Millisecond}, nil,
		func(ctx context.Context) error {
			calls++
			return wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("blocked")
	err := Do(context.Background(), Config{
		Attempts:  5,
		BaseDelay: time.Millisecond,
		Permanent: func(err error) bool { return errors.Is(err, permanent) },
	}, nil, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after permanent error)", calls)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Config{Attempts: 3, BaseDelay: time.Millisecond}, nil,
		func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestBackoffGrowsWithAttempt(t *testing.T) {
	base := 100 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{0, 100 * time.Millisecond}, // clamped
	}
	for _, tt := range tests {
		if got := Backoff(base, tt.attempt, 0); got != tt.want {
			t.Errorf("Backoff(%v, %d, 0) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterStaysWithinBound(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := Backoff(base, 2, 0.5)
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("Backoff with 0.5 jitter = %v, want within [200ms, 300ms]", got)
		}
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if Sleep(ctx, 5*time.Second) {
		t.Fatal("Sleep() = true, want false on cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Sleep returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if !Sleep(context.Background(), 0) {
		t.Fatal("Sleep(ctx, 0) = false, want true")
	}
}
