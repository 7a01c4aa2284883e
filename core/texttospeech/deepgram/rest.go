package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/luminaedu/lumina-core/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
)

// Synthesize requests a complete clip for the given text over Deepgram's
// REST speak endpoint, or over the websocket stream when the client was
// built with [WithStreamingTransport]. A 429 response maps to
// [texttospeech.ErrRateLimited] so callers can fall back instead of
// retrying.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	if c.streaming {
		return c.SynthesizeStreaming(ctx, text, opts...)
	}

	ctx, span := tracer.Start(ctx, "deepgram.Synthesize")
	defer span.End()

	options, voice := c.requestOptions(opts)

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal request")
		return nil, fmt.Errorf("failed to marshal speak request: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("model", string(voice))
	urlValues.Set("encoding", options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	urlValues.Set("container", "none")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		(&url.URL{
			Scheme: "https",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		bytes.NewReader(body),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build request")
		return nil, fmt.Errorf("failed to build speak request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("failed to call deepgram speak endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		span.SetStatus(codes.Error, "rate limited")
		return nil, texttospeech.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("deepgram speak endpoint returned %s: %s", resp.Status, errBody)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, err
	}

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read audio")
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	return clip, nil
}
