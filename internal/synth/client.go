// Package synth provides the HTTP client for the speech-model sidecar. The
// model itself is an opaque external capability; this client is the single
// explicit dependency the engine resolves at startup.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/chatterbox-service/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Static errors.
var (
	ErrEmptyAudio            = errors.New("received empty audio data")
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// generateRequest is the JSON payload for the sidecar's generate endpoint.
// The seed is per-request: the sidecar scopes any RNG seeding to this call.
type generateRequest struct {
	Text            string  `json:"text"`
	AudioPromptPath string  `json:"audio_prompt_path,omitempty"`
	Exaggeration    float64 `json:"exaggeration"`
	Temperature     float64 `json:"temperature"`
	CFGWeight       float64 `json:"cfg_weight"`
	Seed            int64   `json:"seed,omitempty"`
}

// errorResponse is the sidecar's structured error body.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client implements core.SpeechSynthesizer against the model sidecar.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a sidecar client. The baseURL should include protocol and
// port (e.g. "http://localhost:8001"). The timeout applies to generate calls;
// there is deliberately no shorter per-stage bound, since model invocations
// dominate request time.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends a generation request and returns the raw WAV bytes. A
// transport-level failure to reach the sidecar is reported as
// core.ErrModelUnavailable; everything else surfaces with the sidecar's own
// diagnostics attached.
func (c *Client) Synthesize(ctx context.Context, input core.SynthesisInput) ([]byte, error) {
	requestBody, err := json.Marshal(generateRequest{
		Text:            input.Text,
		AudioPromptPath: input.PromptPath,
		Exaggeration:    input.Exaggeration,
		Temperature:     input.Temperature,
		CFGWeight:       input.CFGWeight,
		Seed:            input.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: cannot reach model sidecar at %s: %w",
			core.ErrModelUnavailable,
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	return readAudioBody(resp)
}

// Healthy probes the sidecar health endpoint. A nil return means the model is
// loaded and ready.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+apiHealth,
		http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"%w: health check failed for %s: %w",
			core.ErrModelUnavailable,
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"%w: health check returned status: %s",
			core.ErrModelUnavailable,
			resp.Status,
		)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// sidecar, falling back to the raw body so diagnostics are never lost.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: sidecar reported status %s", core.ErrModelUnavailable, resp.Status)
	}

	var errorResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(
			"model sidecar error (%s): %s (code: %s)",
			resp.Status,
			errorResp.Detail,
			errorResp.ErrorCode,
		)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"model sidecar returned non-OK status: %s, body: %s",
		resp.Status,
		string(body),
	)
}

func readAudioBody(resp *http.Response) ([]byte, error) {
	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(
			"%w: expected %s, got %s",
			ErrUnexpectedContentType,
			contentTypeWAV,
			contentType,
		)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}
