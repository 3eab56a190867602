package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs against a live server when FITBITE_TEST_REDIS_URL is set.
func openTestStore(t *testing.T) *CounterStore {
	t.Helper()
	url := os.Getenv("FITBITE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FITBITE_TEST_REDIS_URL not set")
	}
	s, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCounterStore_Window(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := int64(1); i <= 3; i++ {
		n, reset, err := s.Incr(ctx, key, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Errorf("expected count %d, got %d", i, n)
		}
		if time.Until(reset) > 200*time.Millisecond {
			t.Errorf("reset too far out: %v", reset)
		}
	}

	time.Sleep(300 * time.Millisecond)
	n, _, err := s.Incr(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a fresh window, got count %d", n)
	}
}

func TestOpen_BadURL(t *testing.T) {
	if _, err := Open(context.Background(), "not a url"); err == nil {
		t.Error("expected error for malformed url")
	}
}
