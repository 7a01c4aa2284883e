package speechtotext

import "github.com/luminaedu/lumina-core/core/audio"

type TranscriptionOptions struct {
	// TranscriptionCallback receives the full transcript of an utterance
	// once the speaker has finished.
	TranscriptionCallback func(transcript string)
	// InterimTranscriptionCallback receives provisional transcripts while
	// the speaker is still talking.
	InterimTranscriptionCallback func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	// Language is a BCP 47 tag for the expected speech language.
	Language string

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.TranscriptionCallback = callback }
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.InterimTranscriptionCallback = callback }
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.SpeechStartedCallback = callback }
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.SpeechEndedCallback = callback }
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.EncodingInfo = encodingInfo }
}
