package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"art-studio-server/modules/history"
	"art-studio-server/modules/inference"
)

// fakeGenerator returns "image-N" for the Nth call. failAt >= 0 makes that
// call fail; block makes every call wait for release or cancellation.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	failAt   int
	err      error
	block    bool
	release  chan struct{}
	started  chan struct{}
	requests []inference.Request
	seeds    []uint32
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		failAt:  -1,
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (f *fakeGenerator) Generate(ctx context.Context, req inference.Request, seed uint32) ([]byte, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.seeds = append(f.seeds, seed)
	failAt, err, block := f.failAt, f.err, f.block
	f.mu.Unlock()

	f.started <- struct{}{}
	if block {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, &inference.GenerationError{Message: "generation cancelled", Err: ctx.Err()}
		}
	}
	if call == failAt {
		if err == nil {
			err = errors.New("backend unavailable")
		}
		return nil, err
	}
	return []byte(fmt.Sprintf("image-%d", call)), nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// sequenceSeeds yields start, start+1, ...
func sequenceSeeds(start uint32) inference.SeedSource {
	var mu sync.Mutex
	next := start
	return func() uint32 {
		mu.Lock()
		defer mu.Unlock()
		s := next
		next++
		return s
	}
}

func memoryFactory() history.Factory {
	return func(string) history.Store { return history.NewMemoryStore(history.DefaultLimit) }
}

// failingStore refuses every append.
type failingStore struct {
	*history.MemoryStore
}

func (failingStore) Append(context.Context, history.Record) (int, error) {
	return 0, errors.New("redis: connection refused")
}

func failingFactory() history.Factory {
	return func(string) history.Store {
		return failingStore{history.NewMemoryStore(history.DefaultLimit)}
	}
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local) }
}

func baseRequest() GenerationRequest {
	return GenerationRequest{
		BasePrompt:    "cat",
		Style:         "Cyberpunk",
		GuidanceScale: DefaultGuidanceScale,
		Steps:         DefaultSteps,
		NumVariations: 1,
		Width:         512,
		Height:        512,
	}
}
