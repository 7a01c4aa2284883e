package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luminaedu/lumina-core/core/audio"
	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/core/texttospeech"
)

// fastTiming keeps the pacing ordering (settle < grace, prefetch longest)
// while making tests run in milliseconds.
func fastTiming() TimingPolicy {
	return TimingPolicy{
		SettleDelay:    time.Millisecond,
		GraceDelay:     3 * time.Millisecond,
		PrefetchDelay:  15 * time.Millisecond,
		VisualWait:     20 * time.Millisecond,
		MinSilence:     30 * time.Millisecond,
		CharsPerSecond: 1000,
	}
}

func testPlan(narrations ...string) *lessons.LessonPlan {
	plan := &lessons.LessonPlan{
		ID:      uuid.New(),
		Topic:   "test topic",
		Version: uuid.New(),
	}
	for i, narration := range narrations {
		plan.Steps = append(plan.Steps, lessons.LessonStep{
			Index:     i,
			Title:     fmt.Sprintf("Step %d", i+1),
			Narration: map[string]string{"en": narration},
		})
	}
	return plan
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeSynthesizer returns the narration text as audio bytes. Calls can be
// gated to hold synthesis in flight, or forced to fail with err.
type fakeSynthesizer struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
	err   error
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	gate := s.gate
	err := s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (s *fakeSynthesizer) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *fakeSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSynthesizer) calledWith(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.calls {
		if call == text {
			return true
		}
	}
	return false
}

// fakeDevice records played clips. Draining is manual unless autoDrain is
// set, in which case each clip completes almost immediately. Completion is
// reported off the caller's goroutine, like a real device callback.
type fakeDevice struct {
	mu        sync.Mutex
	played    []string
	stops     int
	autoDrain bool
	onDrained func()
}

func (d *fakeDevice) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (d *fakeDevice) Play(pcm []byte, onDrained func()) error {
	d.mu.Lock()
	d.played = append(d.played, string(pcm))
	d.onDrained = onDrained
	autoDrain := d.autoDrain
	d.mu.Unlock()

	if autoDrain {
		go onDrained()
	}
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.onDrained = nil
	return nil
}

func (d *fakeDevice) drain() {
	d.mu.Lock()
	onDrained := d.onDrained
	d.onDrained = nil
	d.mu.Unlock()
	if onDrained != nil {
		go onDrained()
	}
}

func (d *fakeDevice) playedClips() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.played...)
}

func TestLastIndexWinsAcrossPreparations(t *testing.T) {
	synthesizer := &fakeSynthesizer{gate: make(chan struct{})}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("first step", "second step", "third step"))
	waitFor(t, "first preparation to start", func() bool { return synthesizer.callCount() >= 1 })

	if err := player.SetStepIndex(1); err != nil {
		t.Fatalf("expected index change to succeed, got: %v", err)
	}
	if err := player.SetStepIndex(2); err != nil {
		t.Fatalf("expected index change to succeed, got: %v", err)
	}

	close(synthesizer.gate)
	waitFor(t, "latest step to play", func() bool {
		snapshot := player.Snapshot()
		return snapshot.Phase == PhasePlaying && snapshot.StepIndex == 2
	})

	for _, clip := range device.playedClips() {
		if clip != "third step" {
			t.Fatalf("expected only the latest step's audio to play, got %q", clip)
		}
	}
	if len(device.playedClips()) == 0 {
		t.Fatal("expected the latest step's audio to play")
	}
}

func TestPlaybackAdvancesThroughStepsToCompleted(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{autoDrain: true}
	var endedMu sync.Mutex
	var ended []int

	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
		WithStepEndedCallback(func(index int) {
			endedMu.Lock()
			ended = append(ended, index)
			endedMu.Unlock()
		}),
	)
	defer player.Close()

	player.SetPlan(testPlan("one", "two", "three"))
	waitFor(t, "lesson to complete", func() bool { return player.Snapshot().Phase == PhaseCompleted })

	clips := device.playedClips()
	if len(clips) != 3 || clips[0] != "one" || clips[1] != "two" || clips[2] != "three" {
		t.Fatalf("expected steps to play in order, got %v", clips)
	}

	endedMu.Lock()
	defer endedMu.Unlock()
	if len(ended) != 3 || ended[0] != 0 || ended[1] != 1 || ended[2] != 2 {
		t.Fatalf("expected step-ended notifications in order, got %v", ended)
	}
}

func TestMutedLessonAdvancesOnTimedSilenceWithoutSynthesis(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
		WithMuted(true),
	)
	defer player.Close()

	player.SetPlan(testPlan(
		strings.Repeat("a", 30),
		strings.Repeat("b", 60),
		strings.Repeat("c", 90),
	))

	waitFor(t, "muted lesson to complete", func() bool { return player.Snapshot().Phase == PhaseCompleted })

	if calls := synthesizer.callCount(); calls != 0 {
		t.Fatalf("expected no synthesis while muted, got %d calls", calls)
	}
	if clips := device.playedClips(); len(clips) != 0 {
		t.Fatalf("expected no device audio while muted, got %v", clips)
	}
}

func TestRateLimitedSynthesisDegradesToTimedSilence(t *testing.T) {
	synthesizer := &fakeSynthesizer{err: texttospeech.ErrRateLimited}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("first step", "second step"))

	// The step still becomes ready and plays over the silence tier; rate
	// limiting never surfaces as a playback error.
	waitFor(t, "lesson to complete despite rate limiting", func() bool {
		return player.Snapshot().Phase == PhaseCompleted
	})

	if calls := synthesizer.callCount(); calls == 0 {
		t.Fatal("expected synthesis to be attempted")
	}
	if clips := device.playedClips(); len(clips) != 0 {
		t.Fatalf("expected no device audio for rate-limited steps, got %v", clips)
	}
}

// blockingWarmer never finishes; preparation's bounded wait has to cut it
// off.
type blockingWarmer struct{}

func (blockingWarmer) Warm(ctx context.Context, visual *lessons.VisualReference) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStuckVisualWarmNeverBlocksPreparation(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithVisualWarmer(blockingWarmer{}),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	plan := testPlan("first step", "second step")
	plan.Steps[0].Visual = &lessons.VisualReference{URL: "https://example.org/volcano.jpg"}
	player.SetPlan(plan)

	waitFor(t, "step to play despite the stuck visual", func() bool {
		snapshot := player.Snapshot()
		return snapshot.Phase == PhasePlaying && snapshot.StepIndex == 0
	})
	if clips := device.playedClips(); len(clips) != 1 || clips[0] != "first step" {
		t.Fatalf("expected the first step's audio to play, got %v", clips)
	}
}

func TestExplorationHoldsAutoAdvance(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{autoDrain: true}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetExploring(true)
	player.SetPlan(testPlan("first step", "second step"))

	waitFor(t, "first step to play", func() bool {
		snapshot := player.Snapshot()
		return snapshot.Phase == PhasePlaying && snapshot.StepIndex == 0
	})

	// The clip drains immediately; well past the grace delay the lesson
	// still holds the explored step.
	time.Sleep(20 * time.Millisecond)
	if snapshot := player.Snapshot(); snapshot.StepIndex != 0 || snapshot.Phase == PhaseCompleted {
		t.Fatalf("expected exploration to hold step 0, got step %d in phase %s",
			snapshot.StepIndex, snapshot.Phase)
	}
}

func TestIndexChangeStopsCurrentAudioImmediately(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("first step", "second step", "third step"))
	waitFor(t, "first step to play", func() bool {
		snapshot := player.Snapshot()
		return snapshot.Phase == PhasePlaying && snapshot.StepIndex == 0
	})

	if err := player.SetStepIndex(2); err != nil {
		t.Fatalf("expected index change to succeed, got: %v", err)
	}

	waitFor(t, "third step to play", func() bool {
		snapshot := player.Snapshot()
		return snapshot.Phase == PhasePlaying && snapshot.StepIndex == 2
	})

	device.mu.Lock()
	stops := device.stops
	device.mu.Unlock()
	if stops == 0 {
		t.Fatal("expected the first step's audio to be stopped")
	}

	// The abandoned first step must not resurrect once its clip drains.
	device.drain()
	time.Sleep(20 * time.Millisecond)
	if snapshot := player.Snapshot(); snapshot.StepIndex != 2 {
		t.Fatalf("expected step index to stay at 2, got %d", snapshot.StepIndex)
	}
}

func TestPausedIntentHoldsPreparedStepSilent(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("first step", "second step"))
	player.Pause()

	waitFor(t, "step to become ready", func() bool {
		snapshot := player.Snapshot()
		return snapshot.StepReady && snapshot.Phase == PhasePaused
	})
	if clips := device.playedClips(); len(clips) != 0 {
		t.Fatalf("expected no audio while paused, got %v", clips)
	}

	player.Play()
	waitFor(t, "step to play after resume", func() bool { return player.Snapshot().Phase == PhasePlaying })
	if clips := device.playedClips(); len(clips) != 1 || clips[0] != "first step" {
		t.Fatalf("expected the prepared step to play from the start, got %v", clips)
	}
}

func TestMuteDuringLoadingDoesNotResynthesize(t *testing.T) {
	synthesizer := &fakeSynthesizer{gate: make(chan struct{})}
	device := &fakeDevice{}
	player := NewPlayer(
		WithSynthesizer(synthesizer),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("only step"))
	waitFor(t, "synthesis to start", func() bool { return synthesizer.callCount() == 1 })

	player.SetMuted(true)
	close(synthesizer.gate)

	// Muted at play time means timed silence, not device audio, and no
	// second synthesis request.
	waitFor(t, "muted lesson to complete", func() bool { return player.Snapshot().Phase == PhaseCompleted })
	if calls := synthesizer.callCount(); calls != 1 {
		t.Fatalf("expected a single synthesis call, got %d", calls)
	}
	if clips := device.playedClips(); len(clips) != 0 {
		t.Fatalf("expected no device audio for a muted step, got %v", clips)
	}
}

func TestRestartReplaysFromFirstStep(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	device := &fakeDevice{autoDrain: true}
	cache := texttospeech.NewCache(synthesizer)
	player := NewPlayer(
		WithSynthesizer(cache),
		WithAudioDevice(device),
		WithTimingPolicy(fastTiming()),
	)
	defer player.Close()

	player.SetPlan(testPlan("solo"))
	waitFor(t, "lesson to complete", func() bool { return player.Snapshot().Phase == PhaseCompleted })

	player.Restart()
	waitFor(t, "lesson to complete again", func() bool {
		return player.Snapshot().Phase == PhaseCompleted && len(device.playedClips()) >= 2
	})

	// Replaying the same narration is served from the cache.
	if calls := synthesizer.callCount(); calls != 1 {
		t.Fatalf("expected one gateway call across replays, got %d", calls)
	}
}

func TestSetStepIndexOutOfRange(t *testing.T) {
	player := NewPlayer(WithTimingPolicy(fastTiming()))
	defer player.Close()

	if err := player.SetStepIndex(0); err == nil {
		t.Fatal("expected an error without a plan")
	}

	player.SetPlan(testPlan("only"))
	if err := player.SetStepIndex(5); err == nil {
		t.Fatal("expected an error for an out-of-range index")
	}
	if err := player.SetStepIndex(-1); err == nil {
		t.Fatal("expected an error for a negative index")
	}
}

func TestSilentDurationFormula(t *testing.T) {
	timing := defaultTimingPolicy()

	cases := []struct {
		length int
		want   time.Duration
	}{
		{30, 3 * time.Second},
		{60, 4 * time.Second},
		{90, 6 * time.Second},
	}
	for _, c := range cases {
		got := timing.silentDuration(strings.Repeat("x", c.length))
		if got != c.want {
			t.Fatalf("expected %v of silence for %d characters, got %v", c.want, c.length, got)
		}
	}
}
