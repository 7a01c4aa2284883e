package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luminaedu/lumina-core/core/lessons"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]*lessons.VisualReference
	errs    map[string]error
	gate    chan struct{}
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (*lessons.VisualReference, error) {
	s.mu.Lock()
	gate := s.gate
	result := s.results[query]
	err := s.errs[query]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, err
}

func visualPlan(queries ...string) *lessons.LessonPlan {
	plan := &lessons.LessonPlan{
		ID:      uuid.New(),
		Topic:   "enriched topic",
		Version: uuid.New(),
	}
	for i, query := range queries {
		plan.Steps = append(plan.Steps, lessons.LessonStep{
			Index:       i,
			Narration:   map[string]string{"en": "text"},
			VisualQuery: query,
		})
	}
	return plan
}

func newEnrichmentPlayer(searcher *fakeSearcher, resolved *[]int, resolvedMu *sync.Mutex) *Player {
	return NewPlayer(
		WithTimingPolicy(fastTiming()),
		WithMuted(true),
		WithVisualSearcher(searcher),
		WithVisualResolvedCallback(func(index int) {
			resolvedMu.Lock()
			*resolved = append(*resolved, index)
			resolvedMu.Unlock()
		}),
	)
}

func TestEnrichmentMergesVisualsPerStep(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]*lessons.VisualReference{
		"magma": {URL: "https://example.com/magma.jpg", SourceName: "commons"},
		"crust": {URL: "https://example.com/crust.jpg", SourceName: "commons"},
	}}

	var resolvedMu sync.Mutex
	var resolved []int
	player := newEnrichmentPlayer(searcher, &resolved, &resolvedMu)
	defer player.Close()

	plan := visualPlan("magma", "crust")
	player.SetPlan(plan)

	waitFor(t, "both visuals to resolve", func() bool {
		resolvedMu.Lock()
		defer resolvedMu.Unlock()
		return len(resolved) == 2
	})

	player.mu.Lock()
	defer player.mu.Unlock()
	if plan.Steps[0].Visual == nil || plan.Steps[0].Visual.URL != "https://example.com/magma.jpg" {
		t.Fatalf("expected step 0 visual to be merged, got %+v", plan.Steps[0].Visual)
	}
	if plan.Steps[1].Visual == nil || plan.Steps[1].Visual.URL != "https://example.com/crust.jpg" {
		t.Fatalf("expected step 1 visual to be merged, got %+v", plan.Steps[1].Visual)
	}
	if plan.Steps[0].Narration["en"] != "text" {
		t.Fatal("expected merge to leave other step fields untouched")
	}
}

func TestStaleEnrichmentNeverTouchesTheNewPlan(t *testing.T) {
	searcher := &fakeSearcher{
		gate: make(chan struct{}),
		results: map[string]*lessons.VisualReference{
			"old query": {URL: "https://example.com/old.jpg"},
			"new query": {URL: "https://example.com/new.jpg"},
		},
	}

	var resolvedMu sync.Mutex
	var resolved []int
	player := newEnrichmentPlayer(searcher, &resolved, &resolvedMu)
	defer player.Close()

	oldPlan := visualPlan("old query")
	player.SetPlan(oldPlan)
	newPlan := visualPlan("new query")
	player.SetPlan(newPlan)

	close(searcher.gate)
	waitFor(t, "the active plan's visual to resolve", func() bool {
		resolvedMu.Lock()
		defer resolvedMu.Unlock()
		return len(resolved) >= 1
	})
	time.Sleep(20 * time.Millisecond)

	player.mu.Lock()
	defer player.mu.Unlock()
	if oldPlan.Steps[0].Visual != nil {
		t.Fatalf("expected abandoned plan to stay untouched, got %+v", oldPlan.Steps[0].Visual)
	}
	if newPlan.Steps[0].Visual == nil || newPlan.Steps[0].Visual.URL != "https://example.com/new.jpg" {
		t.Fatalf("expected the active plan's visual to merge, got %+v", newPlan.Steps[0].Visual)
	}
}

func TestMissingVisualFallsBackToPlaceholder(t *testing.T) {
	searcher := &fakeSearcher{} // every search resolves to nil, nil

	var resolvedMu sync.Mutex
	var resolved []int
	player := newEnrichmentPlayer(searcher, &resolved, &resolvedMu)
	defer player.Close()

	plan := visualPlan("unfindable diagram")
	player.SetPlan(plan)

	waitFor(t, "the placeholder visual to resolve", func() bool {
		resolvedMu.Lock()
		defer resolvedMu.Unlock()
		return len(resolved) == 1
	})

	player.mu.Lock()
	defer player.mu.Unlock()
	if plan.Steps[0].Visual == nil {
		t.Fatal("expected a placeholder visual")
	}
	if plan.Steps[0].Visual.SourceName != "placeholder" {
		t.Fatalf("expected a placeholder source, got %q", plan.Steps[0].Visual.SourceName)
	}
}

func TestFailedSearchLeavesStepWithoutVisual(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string]*lessons.VisualReference{
			"works": {URL: "https://example.com/works.jpg"},
		},
		errs: map[string]error{
			"breaks": errors.New("search unavailable"),
		},
	}

	var resolvedMu sync.Mutex
	var resolved []int
	player := newEnrichmentPlayer(searcher, &resolved, &resolvedMu)
	defer player.Close()

	plan := visualPlan("breaks", "works")
	player.SetPlan(plan)

	waitFor(t, "the healthy step's visual to resolve", func() bool {
		resolvedMu.Lock()
		defer resolvedMu.Unlock()
		return len(resolved) == 1
	})
	time.Sleep(20 * time.Millisecond)

	player.mu.Lock()
	defer player.mu.Unlock()
	if plan.Steps[0].Visual != nil {
		t.Fatalf("expected the failed step to stay without a visual, got %+v", plan.Steps[0].Visual)
	}
	if plan.Steps[1].Visual == nil {
		t.Fatal("expected the healthy step's visual to merge")
	}
}
