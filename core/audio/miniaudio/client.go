//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/luminaedu/lumina-core/core/audio"
)

// Client drives a single playback device through miniaudio. The device is
// started once and fed silence between clips, so starting a new clip never
// has to reopen the device. A capture device for the learner's spoken
// questions is opened lazily, on first use.
type Client struct {
	audioContext *malgo.AllocatedContext
	playback     playbackClient

	capture      captureClient
	captureMu    sync.Mutex
	captureReady bool

	encodingInfo audio.EncodingInfo
}

func NewClient(encodingInfo audio.EncodingInfo) (*Client, error) {
	if encodingInfo.IsZero() {
		encodingInfo = audio.GetDefaultEncodingInfo()
	}

	client := &Client{encodingInfo: encodingInfo}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playback.Init(audioCtx, encodingInfo); err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := client.playback.Start(); err != nil {
		_ = client.playback.Uninit()
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

// Play replaces whatever is currently queued with the given clip. onDrained
// is called once, after the device has consumed the final byte of the clip.
// A clip replaced by a later Play or Stop never reports drained.
func (c *Client) Play(pcm []byte, onDrained func()) error {
	return c.playback.SetClip(pcm, onDrained)
}

// Stop discards the queued clip. The device keeps running on silence.
func (c *Client) Stop() error {
	c.playback.Clear()
	return nil
}

// StartCapture opens the default microphone and streams raw frames to
// onAudio until [Client.StopCapture]. Playback-only sessions never touch a
// microphone: the capture device is initialized here, on first use.
func (c *Client) StartCapture(onAudio func(frame []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if !c.captureReady {
		if err := c.capture.Init(c.audioContext, c.encodingInfo); err != nil {
			return err
		}
		c.captureReady = true
	}
	return c.capture.Start(onAudio)
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if !c.captureReady {
		return nil
	}
	return c.capture.Stop()
}

func (c *Client) Close() error {
	var closeErr error
	if err := c.playback.Stop(); err != nil {
		closeErr = err
	}
	if err := c.playback.Uninit(); err != nil && closeErr == nil {
		closeErr = err
	}

	c.captureMu.Lock()
	if c.captureReady {
		if err := c.capture.Uninit(); err != nil && closeErr == nil {
			closeErr = err
		}
		c.captureReady = false
	}
	c.captureMu.Unlock()

	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil && closeErr == nil {
			closeErr = err
		}
		c.audioContext.Free()
		c.audioContext = nil
	}

	return closeErr
}
