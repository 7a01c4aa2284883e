package platformvoice

import (
	"context"
	"fmt"
	"os/exec"

	"go.opentelemetry.io/otel/codes"
)

// Client speaks through whichever speech command the host platform provides
// (macOS `say`, `espeak-ng`, `espeak` or `flite`). It produces audible
// speech directly on the device, so it carries no audio bytes back to the
// caller; playback completion is when the command exits.
type Client struct {
	engine engine
	voices []Voice
}

type engine struct {
	path string
	name string
}

var engineNames = []string{"say", "espeak-ng", "espeak", "flite"}

// NewClient discovers an installed speech command and its voice inventory.
// It errors when the platform offers none.
func NewClient() (*Client, error) {
	for _, name := range engineNames {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}

		client := &Client{engine: engine{path: path, name: name}}
		client.voices = client.listVoices()
		return client, nil
	}

	return nil, fmt.Errorf("no platform speech command found")
}

func (c *Client) listVoices() []Voice {
	switch c.engine.name {
	case "say":
		output, err := exec.Command(c.engine.path, "-v", "?").Output()
		if err != nil {
			return nil
		}
		return parseSayVoices(string(output))
	case "espeak-ng", "espeak":
		output, err := exec.Command(c.engine.path, "--voices").Output()
		if err != nil {
			return nil
		}
		return parseEspeakVoices(string(output))
	}
	return nil
}

// Voices reports the discovered voice inventory. It may be empty; Speak
// still works with the engine's default voice.
func (c *Client) Voices() []Voice {
	return append([]Voice(nil), c.voices...)
}

// Speak pronounces text with the best installed voice for the language and
// blocks until speech finishes or ctx is cancelled.
func (c *Client) Speak(ctx context.Context, text string, language string) error {
	ctx, span := tracer.Start(ctx, "platformvoice.Speak")
	defer span.End()

	args := []string{}
	voice, ok := selectVoice(c.voices, language)
	switch c.engine.name {
	case "say":
		if ok {
			args = append(args, "-v", voice.Name)
		}
	case "espeak-ng", "espeak":
		if ok {
			args = append(args, "-v", voice.Language)
		}
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, c.engine.path, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "speech command failed")
		return fmt.Errorf("failed to run %s: %w", c.engine.name, err)
	}

	return nil
}
