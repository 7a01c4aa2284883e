package deepgram

import (
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/luminaedu/lumina-core/core/audio"
	"github.com/luminaedu/lumina-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client synthesizes speech clips through Deepgram's speak API.
type Client struct {
	apiKey       string
	httpClient   *http.Client
	voice        deepgramVoice
	encodingInfo audio.EncodingInfo
	streaming    bool
}

type ClientOption func(*Client)

func WithVoice(voice deepgramVoice) ClientOption {
	return func(c *Client) { c.voice = voice }
}

// WithStreamingTransport routes Synthesize over the websocket speak stream
// instead of the REST endpoint. Callers see the same whole-clip contract.
func WithStreamingTransport() ClientOption {
	return func(c *Client) { c.streaming = true }
}

func WithClientEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		if encodingInfo.IsZero() {
			return
		}
		c.encodingInfo = encodingInfo
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		voice:        defaultVoice,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	return client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

func (c *Client) requestOptions(opts []texttospeech.SynthesisOption) (texttospeech.SynthesisOptions, deepgramVoice) {
	options := texttospeech.SynthesisOptions{EncodingInfo: c.encodingInfo}
	for _, opt := range opts {
		opt(&options)
	}

	voice := c.voice
	if options.Language != "" {
		voice = voiceForLanguage(options.Language, c.voice)
	}

	return options, voice
}
