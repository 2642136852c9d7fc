//go:build redis

package server

import (
	"fmt"
	"os"
	"testing"
	"time"
)

// Requires a reachable Redis; set VEHREG_TEST_REDIS_ADDR to enable.
func TestRedisStoreAllow(t *testing.T) {
	addr := os.Getenv("VEHREG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VEHREG_TEST_REDIS_ADDR not set")
	}

	store := newRedisStore(addr, os.Getenv("VEHREG_TEST_REDIS_PASSWORD"), time.Second)
	t.Cleanup(func() {
		_ = store.Close()
	})

	key := fmt.Sprintf("vehreg:test:%d", time.Now().UnixNano())

	allowed, retry, err := store.Allow(key, 2, time.Second)
	if err != nil || !allowed || retry != 0 {
		t.Fatalf("first allow unexpected: allowed=%v retry=%v err=%v", allowed, retry, err)
	}
	allowed, _, err = store.Allow(key, 2, time.Second)
	if err != nil || !allowed {
		t.Fatalf("second allow unexpected: allowed=%v err=%v", allowed, err)
	}
	allowed, retry, err = store.Allow(key, 2, time.Second)
	if err != nil {
		t.Fatalf("third allow err: %v", err)
	}
	if allowed {
		t.Fatalf("expected throttle on third attempt")
	}
	if retry < 0 {
		t.Fatalf("expected non-negative retry, got %v", retry)
	}

	// The window expires and attempts are admitted again.
	time.Sleep(1100 * time.Millisecond)
	allowed, _, err = store.Allow(key, 2, time.Second)
	if err != nil || !allowed {
		t.Fatalf("post-expiry allow unexpected: allowed=%v err=%v", allowed, err)
	}
}
