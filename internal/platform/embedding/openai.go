package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-graphload/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// OpenAI calls the /v1/embeddings endpoint with retry on 408/429/5xx.
type OpenAI struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	dim        int
	httpClient *http.Client
	maxRetries int
}

func NewOpenAI(cfg Config, log *logger.Logger) *OpenAI {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "text-embedding-3-small"
	}
	timeout := cfg.OpenAITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.OpenAIMaxRetries
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAI{
		log:        log.With("service", "OpenAIEmbedder"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.OpenAIAPIKey),
		model:      model,
		dim:        cfg.Dimension,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
	}
}

func (c *OpenAI) Dimension() int    { return c.dim }
func (c *OpenAI) ModelName() string { return c.model }

func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		s = " "
	}
	req := embeddingsRequest{Model: c.model, Input: []string{s}, Dimensions: c.dim}

	var resp embeddingsResponse
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response for model %s", c.model)
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (c *OpenAI) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *OpenAI) do(ctx context.Context, body any, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI embeddings retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}
