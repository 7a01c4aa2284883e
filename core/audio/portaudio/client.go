//go:build cgo

package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/luminaedu/lumina-core/core/audio"
)

// Client plays clips through the default PortAudio output stream. Writes are
// blocking, so each clip is pushed from its own goroutine; a clip keeps
// playing until it drains or a later clip or Stop supersedes it.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	out        []int16

	writeMu    sync.Mutex
	generation atomic.Uint64
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		out:        out,
	}, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) Play(pcm []byte, onDrained func()) error {
	if c.stream == nil {
		return fmt.Errorf("stream not initialized")
	}

	generation := c.generation.Add(1)
	clip := append([]byte(nil), pcm...)

	go func() {
		chunkSize := c.bufferSize * 2

		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		for offset := 0; offset < len(clip); offset += chunkSize {
			if c.generation.Load() != generation {
				return
			}

			end := min(offset+chunkSize, len(clip))
			chunk := make([]byte, chunkSize)
			copy(chunk, clip[offset:end])

			if err := binary.Read(bytes.NewBuffer(chunk), binary.LittleEndian, c.out); err != nil {
				return
			}
			if err := c.stream.Write(); err != nil {
				return
			}
		}

		if c.generation.Load() == generation && onDrained != nil {
			onDrained()
		}
	}()

	return nil
}

// Stop abandons the clip currently being written. The in-flight buffer
// (at most one write's worth) is left to play out.
func (c *Client) Stop() error {
	c.generation.Add(1)
	return nil
}

func (c *Client) Close() {
	c.generation.Add(1)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.stream.Close()
	portaudio.Terminate()
}
