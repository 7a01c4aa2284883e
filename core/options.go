package playback

import (
	"context"

	"github.com/luminaedu/lumina-core/core/audio"
	"github.com/luminaedu/lumina-core/core/lessons"
	"github.com/luminaedu/lumina-core/core/texttospeech"
	"github.com/luminaedu/lumina-core/core/visuals"
)

type PlayerOption func(*Player)

// Synthesizer is the speech synthesis gateway. Wrap a concrete client in a
// [texttospeech.Cache] so repeated plays of the same narration cost one
// gateway call.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
	EncodingInfo() audio.EncodingInfo
}

func WithSynthesizer(synthesizer Synthesizer) PlayerOption {
	return func(p *Player) { p.synthesizer = synthesizer }
}

// AudioDevice is a device playback channel that consumes whole clips.
type AudioDevice interface {
	EncodingInfo() audio.EncodingInfo
	// Play replaces any queued clip; onDrained fires once the device has
	// consumed the clip, unless a later Play or Stop supersedes it.
	Play(pcm []byte, onDrained func()) error
	Stop() error
}

func WithAudioDevice(device AudioDevice) PlayerOption {
	return func(p *Player) { p.output.device = device }
}

// PlatformVoice speaks text through a platform speech-synthesis voice. Used
// when no synthesized audio is available for an unmuted step.
type PlatformVoice interface {
	Speak(ctx context.Context, text string, language string) error
}

func WithPlatformVoice(voice PlatformVoice) PlayerOption {
	return func(p *Player) { p.output.platformVoice = voice }
}

func WithVisualSearcher(searcher visuals.Searcher) PlayerOption {
	return func(p *Player) { p.visualSearcher = searcher }
}

// VisualWarmer gives the presentation layer a chance to load a step's
// resolved visual before the step is declared ready. Preparation bounds the
// wait with the timing policy's VisualWait.
type VisualWarmer interface {
	Warm(ctx context.Context, visual *lessons.VisualReference) error
}

func WithVisualWarmer(warmer VisualWarmer) PlayerOption {
	return func(p *Player) { p.visualWarmer = warmer }
}

func WithTimingPolicy(timing TimingPolicy) PlayerOption {
	return func(p *Player) {
		if timing.MinSilence <= 0 || timing.CharsPerSecond <= 0 {
			return
		}
		p.timing = timing
	}
}

func WithLanguage(language string) PlayerOption {
	return func(p *Player) { p.language = language }
}

func WithMuted(muted bool) PlayerOption {
	return func(p *Player) { p.muted = muted }
}

// playerCallbacks are the player's outward notifications. Defaults are
// non-nil no-ops so call sites never nil-check.
type playerCallbacks struct {
	onPhaseChanged    func(phase PlaybackPhase)
	onStepChanged     func(index int)
	onStepReady       func(index int)
	onStepEnded       func(index int)
	onLessonCompleted func()
	onVisualResolved  func(index int)
	onError           func(err error)
}

func (c playerCallbacks) defaults() playerCallbacks {
	return playerCallbacks{
		onPhaseChanged:    func(PlaybackPhase) {},
		onStepChanged:     func(int) {},
		onStepReady:       func(int) {},
		onStepEnded:       func(int) {},
		onLessonCompleted: func() {},
		onVisualResolved:  func(int) {},
		onError:           func(error) {},
	}
}

func (c playerCallbacks) with(callbacks playerCallbacks) playerCallbacks {
	if callbacks.onPhaseChanged != nil {
		c.onPhaseChanged = callbacks.onPhaseChanged
	}
	if callbacks.onStepChanged != nil {
		c.onStepChanged = callbacks.onStepChanged
	}
	if callbacks.onStepReady != nil {
		c.onStepReady = callbacks.onStepReady
	}
	if callbacks.onStepEnded != nil {
		c.onStepEnded = callbacks.onStepEnded
	}
	if callbacks.onLessonCompleted != nil {
		c.onLessonCompleted = callbacks.onLessonCompleted
	}
	if callbacks.onVisualResolved != nil {
		c.onVisualResolved = callbacks.onVisualResolved
	}
	if callbacks.onError != nil {
		c.onError = callbacks.onError
	}
	return c
}

func WithPhaseChangedCallback(callback func(phase PlaybackPhase)) PlayerOption {
	return func(p *Player) { p.callbacks.onPhaseChanged = callback }
}

func WithStepChangedCallback(callback func(index int)) PlayerOption {
	return func(p *Player) { p.callbacks.onStepChanged = callback }
}

// WithStepReadyCallback registers a callback for when a step's media has
// finished preparing and the step is playable.
func WithStepReadyCallback(callback func(index int)) PlayerOption {
	return func(p *Player) { p.callbacks.onStepReady = callback }
}

func WithStepEndedCallback(callback func(index int)) PlayerOption {
	return func(p *Player) { p.callbacks.onStepEnded = callback }
}

func WithLessonCompletedCallback(callback func()) PlayerOption {
	return func(p *Player) { p.callbacks.onLessonCompleted = callback }
}

// WithVisualResolvedCallback registers a callback for when background
// enrichment merges a visual into the active plan's step.
func WithVisualResolvedCallback(callback func(index int)) PlayerOption {
	return func(p *Player) { p.callbacks.onVisualResolved = callback }
}

func WithErrorCallback(callback func(err error)) PlayerOption {
	return func(p *Player) { p.callbacks.onError = callback }
}
