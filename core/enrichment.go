package playback

import (
	"context"

	"github.com/google/uuid"
	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/core/visuals"
)

// enrichPlan fans out one visual search per step that lacks a resolved
// visual, each worker isolated from the others' failures. Results are
// merged back one step at a time, and only while the plan they were
// requested for is still the active one.
func (p *Player) enrichPlan(plan *lessons.LessonPlan) {
	if p.visualSearcher == nil || plan == nil {
		return
	}

	version := plan.Version
	for _, step := range plan.Steps {
		if step.Visual != nil || step.VisualQuery == "" {
			continue
		}

		go func() {
			worker := panicSafeNamedWorker("enrichment", func(ctx context.Context) error {
				return p.enrichStep(ctx, version, step.Index, step.VisualQuery)
			})
			if err := worker(p.baseContext); err != nil {
				logger.WarnContext(p.baseContext, "visual enrichment failed",
					"step", step.Index, "error", err)
			}
		}()
	}
}

func (p *Player) enrichStep(ctx context.Context, version uuid.UUID, index int, query string) error {
	visual, err := p.visualSearcher.Search(ctx, query)
	if err != nil {
		// Logged by the worker wrapper; the step keeps going without a
		// visual and is not retried.
		return err
	}
	if visual == nil {
		visual = &lessons.VisualReference{
			URL:        visuals.FallbackURL(query),
			SourceName: "placeholder",
		}
	}

	p.mergeVisual(version, index, visual)
	return nil
}

// mergeVisual writes a resolved visual into exactly one step of the active
// plan. A result carrying a superseded plan version is discarded untouched.
func (p *Player) mergeVisual(version uuid.UUID, index int, visual *lessons.VisualReference) {
	p.mu.Lock()

	if p.plan == nil || p.plan.Version != version {
		p.mu.Unlock()
		return
	}
	if index < 0 || index >= len(p.plan.Steps) {
		p.mu.Unlock()
		return
	}

	p.plan.Steps[index].Visual = visual
	p.mu.Unlock()

	p.callbacks.onVisualResolved(index)
}
