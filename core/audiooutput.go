package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// audioOutput drives the device audio channel with an at-most-one-active
// handle invariant: starting playback first stops and releases whatever was
// playing. Three tiers serve a step, each tried only when the one above is
// unavailable:
//
//  1. decode-and-play synthesized audio through the device channel,
//  2. speak the narration through a platform voice (unmuted, no audio),
//  3. timed silence derived from the narration length (muted, or nothing
//     else worked), so the lesson still advances at a readable pace.
type audioOutput struct {
	device        AudioDevice
	platformVoice PlatformVoice
	timing        *TimingPolicy

	mu     sync.Mutex
	active *activeAudioHandle
}

type playRequest struct {
	audioData []byte
	narration string
	language  string
	muted     bool
}

// activeAudioHandle represents one step's claim on the audio channel.
// onEnded fires exactly once on natural completion and never after the
// handle has been superseded by a stop.
type activeAudioHandle struct {
	id      uuid.UUID
	onEnded func()

	once    sync.Once
	stopped atomic.Bool

	stopMu    sync.Mutex
	stopFuncs []func()
}

func (h *activeAudioHandle) addStop(stop func()) {
	h.stopMu.Lock()
	defer h.stopMu.Unlock()
	h.stopFuncs = append(h.stopFuncs, stop)
}

func (h *activeAudioHandle) stop() {
	if h == nil || !h.stopped.CompareAndSwap(false, true) {
		return
	}

	h.stopMu.Lock()
	stops := h.stopFuncs
	h.stopFuncs = nil
	h.stopMu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// finish reports natural completion. A superseded handle stays silent.
func (h *activeAudioHandle) finish() {
	if h.stopped.Load() {
		return
	}
	h.once.Do(h.onEnded)
}

func (o *audioOutput) play(ctx context.Context, req playRequest, onEnded func()) {
	handle := &activeAudioHandle{id: uuid.New(), onEnded: onEnded}

	o.mu.Lock()
	prior := o.active
	o.active = handle
	o.mu.Unlock()

	prior.stop()

	if req.muted {
		o.playSilence(ctx, handle, req)
		return
	}

	if o.playDevice(handle, req) {
		return
	}
	if o.playPlatformVoice(ctx, handle, req) {
		return
	}
	o.playSilence(ctx, handle, req)
}

func (o *audioOutput) stop() {
	o.mu.Lock()
	handle := o.active
	o.active = nil
	o.mu.Unlock()

	handle.stop()
}

// playDevice is tier 1. It reports false when the device is missing, there
// is no synthesized audio, or the device rejects the clip.
func (o *audioOutput) playDevice(handle *activeAudioHandle, req playRequest) bool {
	if o.device == nil || len(req.audioData) == 0 {
		return false
	}

	handle.addStop(func() { _ = o.device.Stop() })
	if err := o.device.Play(req.audioData, handle.finish); err != nil {
		logger.Warn("device playback failed", "error", err)
		return false
	}
	return true
}

// playPlatformVoice is tier 2: audible speech without synthesized audio.
// Voice failure degrades to timed silence so completion always arrives.
func (o *audioOutput) playPlatformVoice(ctx context.Context, handle *activeAudioHandle, req playRequest) bool {
	if o.platformVoice == nil || req.narration == "" {
		return false
	}

	speakCtx, cancel := context.WithCancel(ctx)
	handle.addStop(cancel)

	go func() {
		defer cancel()
		if err := o.platformVoice.Speak(speakCtx, req.narration, req.language); err != nil {
			if handle.stopped.Load() || speakCtx.Err() != nil {
				return
			}
			logger.Warn("platform voice failed", "error", err)
			o.playSilence(ctx, handle, req)
			return
		}
		handle.finish()
	}()
	return true
}

// playSilence is tier 3: no sound, synthetic completion after a duration
// paced by the narration length.
func (o *audioOutput) playSilence(ctx context.Context, handle *activeAudioHandle, req playRequest) {
	silenceCtx, cancel := context.WithCancel(ctx)

	timer := time.AfterFunc(o.timing.silentDuration(req.narration), func() {
		handle.finish()
		cancel()
	})
	// Clear the timer on teardown so a closed player never advances. The
	// hook also reaps itself once the timer fires or the handle stops.
	_ = withContextCancelHook(silenceCtx, func() { timer.Stop() })

	handle.addStop(cancel)
}
