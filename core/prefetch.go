package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luminaedu/lumina-core/core/texttospeech"
)

// prefetcher warms the synthesis cache with the next step's narration. It
// runs a fixed delay behind every index change so the current step's own
// preparation is never starved, and its result is only ever deposited into
// the cache; the sequencer never waits on it.
type prefetcher struct {
	player *Player

	mu    sync.Mutex
	timer *time.Timer
}

// schedule queues a cache warm for the given step index. A newer schedule
// replaces a pending one; staleness is re-checked again when the timer
// fires.
func (f *prefetcher) schedule(generation uint64, index int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.player.timing.PrefetchDelay, func() {
		f.warm(generation, index)
	})
}

func (f *prefetcher) warm(generation uint64, index int) {
	p := f.player

	p.mu.Lock()
	if generation != p.generation || p.plan == nil ||
		p.muted || p.liveSessionActive || p.synthesizer == nil {
		p.mu.Unlock()
		return
	}
	step, ok := p.plan.Step(index)
	if !ok {
		p.mu.Unlock()
		return
	}
	narration := step.NarrationIn(p.language)
	language := p.language
	synthesizer := p.synthesizer
	ctx := p.baseContext
	p.mu.Unlock()

	if narration == "" {
		return
	}

	// Pure cache warming: errors are dropped. A rate-limited warm simply
	// means the step prepares without a head start.
	if _, err := synthesizer.Synthesize(ctx, narration, texttospeech.WithLanguage(language)); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.DebugContext(ctx, "prefetch synthesis dropped", "step", index, "error", err)
	}
}
