package playback

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/core/texttospeech"
)

// preparationTask readies one step's media: it waits (bounded) for the
// step's visual, fetches narration audio unless the step was muted when
// preparation started, and applies a settle delay before reporting back.
//
// Cancellation is cooperative: the task re-checks its flag after every
// suspension point and a cancelled task never reports results. The player
// additionally discards results whose generation has been superseded, so a
// task that missed its cancellation window is still harmless.
type preparationTask struct {
	player *Player

	step       lessons.LessonStep
	generation uint64
	narration  string
	language   string
	muted      bool

	cancelled atomic.Bool
	cancel    context.CancelFunc
}

func (p *Player) newPreparationTask(step lessons.LessonStep, generation uint64) *preparationTask {
	narration := step.NarrationIn(p.language)
	if p.exploring && step.ExplorationNarrationIn(p.language) != "" {
		narration = step.ExplorationNarrationIn(p.language)
	}

	return &preparationTask{
		player:     p,
		step:       step,
		generation: generation,
		narration:  narration,
		language:   p.language,
		muted:      p.muted,
	}
}

func (t *preparationTask) markCancelled() {
	t.cancelled.Store(true)
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *preparationTask) run(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "prepare step")
	defer span.End()

	ctx, t.cancel = context.WithCancel(ctx)
	defer t.cancel()

	player := t.player

	t.awaitVisual(ctx)
	if t.cancelled.Load() {
		return
	}

	var audioData []byte
	if !t.muted && t.narration != "" && player.synthesizer != nil {
		var err error
		audioData, err = player.synthesizer.Synthesize(ctx, t.narration,
			texttospeech.WithLanguage(t.language))
		if err != nil {
			// Degradable: playback falls through to the platform voice or
			// timed silence. Rate limiting backs off the same way; the
			// prefetcher will naturally retry for later steps.
			audioData = nil
			if !errors.Is(err, context.Canceled) {
				level := "synthesis failed"
				if errors.Is(err, texttospeech.ErrRateLimited) {
					level = "synthesis rate limited"
				}
				logger.WarnContext(ctx, level, "step", t.step.Index, "error", err)
			}
		}
	}
	if t.cancelled.Load() {
		return
	}

	t.settle(ctx)
	if t.cancelled.Load() {
		return
	}

	player.completePreparation(t, audioData)
}

// awaitVisual gives the presentation layer a bounded window to load the
// step's resolved visual. Timeouts and warm failures never block the step.
func (t *preparationTask) awaitVisual(ctx context.Context) {
	player := t.player
	if t.step.Visual == nil || player.visualWarmer == nil {
		return
	}

	warmCtx, cancel := context.WithTimeout(ctx, player.timing.VisualWait)
	defer cancel()

	if err := player.visualWarmer.Warm(warmCtx, t.step.Visual); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.WarnContext(ctx, "visual warm failed", "step", t.step.Index, "error", err)
	}
}

func (t *preparationTask) settle(ctx context.Context) {
	timer := time.NewTimer(t.player.timing.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
