package texttospeech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luminaedu/lumina-core/core/audio"
)

type countingSynthesizer struct {
	calls atomic.Int64
	gate  chan struct{}
	err   error
}

func (s *countingSynthesizer) Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return []byte(text), nil
}

func (s *countingSynthesizer) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func TestCacheReturnsCachedClipWithoutResynthesis(t *testing.T) {
	synthesizer := &countingSynthesizer{}
	cache := NewCache(synthesizer)

	first, err := cache.Synthesize(t.Context(), "hello")
	if err != nil {
		t.Fatalf("Expected first synthesis to succeed, got: %v", err)
	}

	second, err := cache.Synthesize(t.Context(), "hello")
	if err != nil {
		t.Fatalf("Expected cached synthesis to succeed, got: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("Expected cached clip to match original (%q != %q)", first, second)
	}
	if calls := synthesizer.calls.Load(); calls != 1 {
		t.Fatalf("Expected a single gateway call, got %d", calls)
	}
}

func TestCacheCoalescesConcurrentRequests(t *testing.T) {
	synthesizer := &countingSynthesizer{gate: make(chan struct{})}
	cache := NewCache(synthesizer)

	const requesters = 5
	var wg sync.WaitGroup
	results := make([][]byte, requesters)
	errs := make([]error, requesters)
	for i := range requesters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cache.Synthesize(t.Context(), "narration")
		}()
	}

	// Give every requester a chance to reach the cache before releasing
	// the synthesis.
	time.Sleep(50 * time.Millisecond)
	close(synthesizer.gate)
	wg.Wait()

	for i := range requesters {
		if errs[i] != nil {
			t.Fatalf("Expected request %d to succeed, got: %v", i, errs[i])
		}
		if string(results[i]) != "narration" {
			t.Fatalf("Expected request %d to receive the clip, got %q", i, results[i])
		}
	}
	if calls := synthesizer.calls.Load(); calls != 1 {
		t.Fatalf("Expected concurrent requests to coalesce into one call, got %d", calls)
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	synthesizer := &countingSynthesizer{err: errors.New("gateway unavailable")}
	cache := NewCache(synthesizer)

	if _, err := cache.Synthesize(t.Context(), "hello"); err == nil {
		t.Fatal("Expected synthesis failure to propagate")
	}

	synthesizer.err = nil
	if _, err := cache.Synthesize(t.Context(), "hello"); err != nil {
		t.Fatalf("Expected retry after failure to succeed, got: %v", err)
	}

	if calls := synthesizer.calls.Load(); calls != 2 {
		t.Fatalf("Expected failure to stay uncached (2 calls), got %d", calls)
	}
}

func TestCacheKeysOnLanguage(t *testing.T) {
	synthesizer := &countingSynthesizer{}
	cache := NewCache(synthesizer)

	if _, err := cache.Synthesize(t.Context(), "hello", WithLanguage("en-US")); err != nil {
		t.Fatalf("Expected synthesis to succeed, got: %v", err)
	}
	if _, err := cache.Synthesize(t.Context(), "hello", WithLanguage("hr-HR")); err != nil {
		t.Fatalf("Expected synthesis to succeed, got: %v", err)
	}

	if calls := synthesizer.calls.Load(); calls != 2 {
		t.Fatalf("Expected per-language cache entries (2 calls), got %d", calls)
	}
	if _, ok := cache.Lookup("hello", WithLanguage("en-US")); !ok {
		t.Fatal("Expected en-US clip to be cached")
	}
}
