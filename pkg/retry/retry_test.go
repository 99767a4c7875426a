package retry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestDoValueSucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		Attempts:  3,
		BaseDelay: time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	calls := 0
	value, err := DoValue(context.Background(), "flaky", p, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "ok" {
		t.Fatalf("expected ok, got %q", value)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("expected backoff 1s,2s got %v", delays)
	}
}

func TestDoReturnsLastErrorUnchanged(t *testing.T) {
	sentinel := errors.New("store unavailable")
	p := Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}

	calls := 0
	err := Do(context.Background(), "load", p, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, "cancelled", Policy{Attempts: 3, BaseDelay: time.Minute}, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single invocation before cancel stops retries, got %d", calls)
	}
}

func TestDoSingleAttemptNeverSleeps(t *testing.T) {
	p := Policy{
		Attempts:  1,
		BaseDelay: time.Hour,
		sleep: func(ctx context.Context, d time.Duration) error {
			t.Fatal("sleep should not be called")
			return nil
		},
	}
	err := Do(context.Background(), "once", p, func() error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
}
