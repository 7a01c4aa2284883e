package texttospeech

import (
	"context"
	"errors"

	"github.com/luminaedu/lumina-core/core/audio"
)

// ErrRateLimited is returned by a [Synthesizer] when the synthesis gateway
// refuses the request because of quota exhaustion. Callers are expected to
// fall back to another output path rather than retry immediately.
var ErrRateLimited = errors.New("synthesis rate limited")

// Synthesizer produces a complete speech clip for a piece of narration text.
type Synthesizer interface {
	// Synthesize returns raw audio for the given text, encoded according to
	// the synthesizer's encoding info. It respects ctx cancellation.
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error)

	EncodingInfo() audio.EncodingInfo
}

type SynthesisOptions struct {
	// Language is a BCP 47 tag used to pick a voice. An empty value leaves
	// the synthesizer's default voice in place.
	Language string

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithLanguage(language string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Language = language }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
