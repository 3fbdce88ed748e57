package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"AgoraChain/internal/llm"
)

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: "[Response]:ok"}, nil
}

func TestFingerprintDistinguishesConfigs(t *testing.T) {
	base := NewFingerprint("指令", 0.3, 124)

	if base != NewFingerprint("指令", 0.3, 124) {
		t.Fatalf("identical config must yield identical fingerprint")
	}
	if base == NewFingerprint("指令", 0.4, 124) {
		t.Fatalf("temperature must change the fingerprint")
	}
	if base == NewFingerprint("指令", 0.3, 125) {
		t.Fatalf("max tokens must change the fingerprint")
	}
	if base == NewFingerprint("其他指令", 0.3, 124) {
		t.Fatalf("instructions must change the fingerprint")
	}
}

func TestGetOrCreateSingleBuilderInvocation(t *testing.T) {
	cache := NewCache()
	fp := NewFingerprint("指令", 0.3, 124)

	var builds atomic.Int32
	builder := func() (*Session, error) {
		builds.Add(1)
		return New(stubLLM{}, Config{Instructions: "指令", Temperature: 0.3, MaxTokens: 124})
	}

	const callers = 100
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s, err := cache.GetOrCreate(fp, builder)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			sessions[idx] = s
		}(i)
	}
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Fatalf("builder invoked %d times, want 1", got)
	}
	for _, s := range sessions {
		if s != sessions[0] {
			t.Fatalf("all callers must receive the same session")
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", cache.Len())
	}
}

func TestGetOrCreateDistinctFingerprints(t *testing.T) {
	cache := NewCache()

	build := func() (*Session, error) {
		return New(stubLLM{}, Config{})
	}

	a, err := cache.GetOrCreate(NewFingerprint("a", 0.1, 10), build)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := cache.GetOrCreate(NewFingerprint("b", 0.1, 10), build)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a == b {
		t.Fatalf("distinct fingerprints must not share sessions")
	}
	if a.ThreadID() == b.ThreadID() {
		t.Fatalf("distinct sessions must not share thread ids")
	}
}

func TestGetOrCreateRetriesAfterBuilderFailure(t *testing.T) {
	cache := NewCache()
	fp := NewFingerprint("a", 0.1, 10)

	boom := errors.New("boom")
	if _, err := cache.GetOrCreate(fp, func() (*Session, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected builder error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed build must not be cached")
	}

	s, err := cache.GetOrCreate(fp, func() (*Session, error) { return New(stubLLM{}, Config{}) })
	if err != nil {
		t.Fatalf("GetOrCreate after failure: %v", err)
	}
	if s == nil {
		t.Fatalf("expected session")
	}
}
