package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-intent/internal/httpc"
)

const (
	openAITTSURL   = "https://api.openai.com/v1/audio/speech"
	providerOpenAI = "openai"
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI models.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI synthesizes with the OpenAI speech endpoint.
type OpenAI struct {
	cfg    *Config
	client *http.Client
	logger *slog.Logger
	url    string
}

// NewOpenAI creates the provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	url := cfg.BaseURL
	if url == "" {
		url = openAITTSURL
	}

	return &OpenAI{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "tts.openai"),
		url:    url,
	}, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Synthesize implements Provider.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	body, err := json.Marshal(speechRequest{
		Model:          o.cfg.Model,
		Voice:          o.cfg.Voice,
		Input:          text,
		ResponseFormat: string(o.cfg.Format),
		Speed:          o.cfg.Speed,
	})
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := o.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized", "chars", len(text), "bytes", len(audio), "latency_ms", latency,
		"est_duration", estimateDuration(text))

	return &AudioResult{
		Audio:     audio,
		Format:    o.cfg.Format,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string {
	return providerOpenAI
}

// Close implements Provider.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// post sends the request, retrying rate limits and server errors.
func (o *OpenAI) post(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerOpenAI, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		o.logger.Warn("retrying request", "attempt", attempt+1, "status", apiErr.StatusCode)
	}

	return nil, lastErr
}

// parseError reads an OpenAI error body.
func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerOpenAI}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}

var _ Provider = (*OpenAI)(nil)
