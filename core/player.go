package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/core/visuals"
)

// Player is the playback orchestration engine: it owns the current step
// index and playback phase, prepares each step's media before playing it,
// plays with tiered fallback, auto-advances on completion, pre-warms the
// next step's audio, and arbitrates with the live free-form session.
//
// All externally driven changes (step index, plan, language, live session)
// bump an internal generation counter; asynchronous work captures the
// generation it was started under and its results are discarded when a
// later change has superseded it. The latest change always wins.
type Player struct {
	mu sync.Mutex

	plan      *lessons.LessonPlan
	stepIndex int
	phase     PlaybackPhase
	intent    playIntent
	muted     bool
	language  string
	exploring bool

	generation uint64

	prep       *preparationTask
	prepared   *preparedMedia
	graceTimer *time.Timer

	liveSessionActive bool
	liveSavedIntent   playIntent

	output         audioOutput
	synthesizer    Synthesizer
	visualSearcher visuals.Searcher
	visualWarmer   VisualWarmer
	prefetcher     prefetcher

	timing    TimingPolicy
	callbacks playerCallbacks

	baseContext context.Context
	cancelBase  context.CancelFunc
	closeOnce   sync.Once
}

// preparedMedia is the resolved output of a preparation task for the
// committed step index. Audio is nil when the step was prepared muted or
// synthesis degraded; playback then falls through the output tiers.
type preparedMedia struct {
	index     int
	narration string
	language  string
	audioData []byte
}

func NewPlayer(opts ...PlayerOption) *Player {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		phase:       PhaseIdle,
		intent:      intentPlaying,
		language:    "en",
		timing:      defaultTimingPolicy(),
		callbacks:   playerCallbacks{}.defaults(),
		baseContext: ctx,
		cancelBase:  cancel,
	}
	p.output.timing = &p.timing
	p.prefetcher.player = p

	defaults := p.callbacks
	for _, opt := range opts {
		opt(p)
	}
	p.callbacks = defaults.with(p.callbacks)

	return p
}

// Close tears the player down: audio stops, outstanding preparation and
// timers are cancelled, background work is released.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.generation++
		p.stopPlaybackLocked()
		p.cancelPreparationLocked()
		p.mu.Unlock()

		p.cancelBase()
	})
}

// SetPlan replaces the active lesson plan and resets playback to the first
// step. Any work started against the previous plan becomes stale. When a
// visual searcher is configured, background enrichment starts resolving
// visuals for steps that lack one.
func (p *Player) SetPlan(plan *lessons.LessonPlan) {
	p.mu.Lock()
	p.plan = plan
	if plan == nil {
		p.generation++
		p.stopPlaybackLocked()
		p.cancelPreparationLocked()
		p.prepared = nil
		p.setPhaseLocked(PhaseIdle)
		p.mu.Unlock()
		return
	}

	p.intent = intentPlaying
	p.setStepIndexLocked(0)
	p.mu.Unlock()

	p.enrichPlan(plan)
}

// Plan returns the active plan. The plan's visual fields may still be
// filled in by enrichment; use PlanSnapshot for a stable copy.
func (p *Player) Plan() *lessons.LessonPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan
}

// PlanSnapshot returns a deep copy of the active plan, safe to read while
// enrichment keeps filling in visuals. Returns false when no plan is loaded.
func (p *Player) PlanSnapshot() (lessons.LessonPlan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plan == nil {
		return lessons.LessonPlan{}, false
	}
	return p.plan.Snapshot(), true
}

// SetStepIndex makes the given step current. Index changes always win over
// in-flight work: current audio stops, the outstanding preparation task is
// cancelled, and a fresh preparation starts for the new index.
func (p *Player) SetStepIndex(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan == nil {
		return fmt.Errorf("no lesson plan loaded")
	}
	if index < 0 || index >= len(p.plan.Steps) {
		return fmt.Errorf("step index %d out of range [0, %d)", index, len(p.plan.Steps))
	}
	if index == p.stepIndex && p.phase != PhaseIdle && p.phase != PhaseCompleted {
		return nil
	}

	p.setStepIndexLocked(index)
	return nil
}

// setStepIndexLocked commits a new step index and kicks off preparation.
// Callers hold p.mu.
func (p *Player) setStepIndexLocked(index int) {
	p.generation++
	generation := p.generation

	p.stopPlaybackLocked()
	p.cancelPreparationLocked()
	p.prepared = nil
	p.stepIndex = index

	step, ok := p.plan.Step(index)
	if !ok {
		return
	}

	p.setPhaseLocked(PhaseLoading)
	go p.callbacks.onStepChanged(index)

	task := p.newPreparationTask(step, generation)
	p.prep = task
	go func() {
		run := panicSafeNamedWorker("preparation", func(ctx context.Context) error {
			task.run(ctx)
			return nil
		})
		if err := run(p.baseContext); err != nil {
			p.failPreparation(task, err)
		}
	}()

	p.prefetcher.schedule(generation, index+1)
}

// failPreparation handles the rare unrecoverable case: the preparation
// worker itself blew up, past every degradation tier. Stale failures are
// dropped like stale completions.
func (p *Player) failPreparation(task *preparationTask, err error) {
	p.mu.Lock()
	if task.cancelled.Load() || task.generation != p.generation {
		p.mu.Unlock()
		return
	}
	p.prep = nil
	p.setPhaseLocked(PhaseError)
	p.mu.Unlock()

	logger.Error("step preparation failed", "step", task.step.Index, "error", err)
	p.callbacks.onError(err)
}

// completePreparation receives a finished preparation task's result. Stale
// results (a later index change, plan switch or cancellation) are dropped
// without touching sequencer state.
func (p *Player) completePreparation(task *preparationTask, audioData []byte) {
	p.mu.Lock()

	if task.cancelled.Load() || task.generation != p.generation {
		p.mu.Unlock()
		return
	}

	p.prep = nil
	p.prepared = &preparedMedia{
		index:     task.step.Index,
		narration: task.narration,
		language:  task.language,
		audioData: audioData,
	}

	index := task.step.Index
	if p.intent == intentPlaying && !p.liveSessionActive {
		p.setPhaseLocked(PhasePlaying)
		p.startPlaybackLocked()
	} else {
		p.setPhaseLocked(PhasePaused)
	}
	p.mu.Unlock()

	p.callbacks.onStepReady(index)
}

// startPlaybackLocked plays the prepared media from the start. The mute
// flag is read here, at play time, not at preparation time. Callers hold
// p.mu.
func (p *Player) startPlaybackLocked() {
	media := p.prepared
	if media == nil {
		return
	}

	generation := p.generation
	p.output.play(p.baseContext, playRequest{
		audioData: media.audioData,
		narration: media.narration,
		language:  media.language,
		muted:     p.muted,
	}, func() {
		p.handlePlaybackEnded(generation)
	})
}

func (p *Player) stopPlaybackLocked() {
	p.output.stop()
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
}

func (p *Player) cancelPreparationLocked() {
	if p.prep != nil {
		p.prep.markCancelled()
		p.prep = nil
	}
}

// handlePlaybackEnded runs when the active step's audio finishes naturally
// (any tier). After a grace delay it advances to the next step, or
// completes the lesson on the last one.
func (p *Player) handlePlaybackEnded(generation uint64) {
	p.mu.Lock()

	if generation != p.generation || p.liveSessionActive || p.intent != intentPlaying {
		p.mu.Unlock()
		return
	}

	index := p.stepIndex
	p.graceTimer = time.AfterFunc(p.timing.GraceDelay, func() {
		p.advanceFrom(generation)
	})
	p.mu.Unlock()

	p.callbacks.onStepEnded(index)
}

func (p *Player) advanceFrom(generation uint64) {
	p.mu.Lock()

	if generation != p.generation || p.liveSessionActive ||
		p.intent != intentPlaying || p.exploring || p.plan == nil {
		p.mu.Unlock()
		return
	}

	if p.stepIndex+1 < len(p.plan.Steps) {
		p.setStepIndexLocked(p.stepIndex + 1)
		p.mu.Unlock()
		return
	}

	p.setPhaseLocked(PhaseCompleted)
	p.mu.Unlock()

	p.callbacks.onLessonCompleted()
}

func (p *Player) setPhaseLocked(phase PlaybackPhase) {
	if p.phase == phase {
		return
	}
	p.phase = phase
	go p.callbacks.onPhaseChanged(phase)
}

// Snapshot is a point-in-time copy of the player's externally relevant
// state.
type Snapshot struct {
	Phase             PlaybackPhase
	StepIndex         int
	StepReady         bool
	Muted             bool
	Language          string
	Exploring         bool
	LiveSessionActive bool
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Phase:             p.phase,
		StepIndex:         p.stepIndex,
		StepReady:         p.prepared != nil && p.prepared.index == p.stepIndex,
		Muted:             p.muted,
		Language:          p.language,
		Exploring:         p.exploring,
		LiveSessionActive: p.liveSessionActive,
	}
}
