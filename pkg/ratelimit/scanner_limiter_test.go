package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter_SeparateBucketsPerHost(t *testing.T) {
	hl := NewHostLimiter(&Config{RequestsPerSecond: 1, BurstSize: 1})
	ctx := context.Background()

	urls := []string{
		"https://www.dropbox.com/s/a",
		"https://drive.google.com/file/d/x",
		"https://DRIVE.google.com/file/d/y",
		"not a url",
	}
	for _, u := range urls[:2] {
		if err := hl.WaitURL(ctx, u); err != nil {
			t.Fatalf("WaitURL(%q) error = %v", u, err)
		}
	}
	if err := hl.WaitURL(ctx, urls[3]); err != nil {
		t.Fatalf("WaitURL(%q) error = %v", urls[3], err)
	}
	if got := hl.Hosts(); got != 3 {
		t.Errorf("Hosts() = %d, want 3", got)
	}

	// drive.google.com bucket is drained; a short deadline must expire.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := hl.WaitURL(shortCtx, urls[2]); err == nil {
		t.Error("expected wait on drained bucket to fail under short deadline")
	}
}

func TestHostLimiter_Disabled(t *testing.T) {
	hl := NewHostLimiter(&Config{RequestsPerSecond: 0})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := hl.WaitURL(ctx, "https://www.dropbox.com/s/a"); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
}

func TestHostLimiter_CanceledContext(t *testing.T) {
	hl := NewHostLimiter(&Config{RequestsPerSecond: 0.001, BurstSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	_ = hl.WaitURL(ctx, "https://a.example")
	cancel()
	if err := hl.WaitURL(ctx, "https://a.example"); err == nil {
		t.Error("expected error for canceled context")
	}
}
