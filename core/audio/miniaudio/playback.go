//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/luminaedu/lumina-core/core/audio"
)

type playbackClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	encodingInfo audio.EncodingInfo

	pending   []byte
	onDrained func()
	drained   bool

	mu      sync.Mutex
	clipMu  sync.Mutex
	started bool
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encodingInfo audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(encodingInfo.SampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.encodingInfo = encodingInfo
	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	c.started = true

	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.started = false
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.Clear()
	return nil
}

// SetClip replaces the queued audio with a whole clip. The previous clip's
// drain callback is dropped, never fired.
func (c *playbackClient) SetClip(pcm []byte, onDrained func()) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.clipMu.Lock()
	defer c.clipMu.Unlock()
	c.pending = append([]byte(nil), pcm...)
	c.onDrained = onDrained
	c.drained = false
	return nil
}

func (c *playbackClient) Clear() {
	c.clipMu.Lock()
	defer c.clipMu.Unlock()
	c.pending = nil
	c.onDrained = nil
	c.drained = true
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	silence := c.encodingInfo.SilenceValue()

	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.clipMu.Lock()

		n := copy(pOutput, c.pending)
		c.pending = c.pending[n:]
		for i := n; i < need && i < len(pOutput); i++ {
			pOutput[i] = silence
		}

		var drainedCallback func()
		if len(c.pending) == 0 && !c.drained && c.onDrained != nil {
			c.drained = true
			drainedCallback = c.onDrained
			c.onDrained = nil
		}
		c.clipMu.Unlock()

		if drainedCallback != nil {
			// Callbacks must not run on the device's audio thread.
			go drainedCallback()
		}
	}
}
