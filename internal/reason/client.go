package reason

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

	"golang.org/x/time/rate"

	"resonate/internal/config"
	"resonate/internal/errors"
	"resonate/internal/metrics"
)

// Client calls a Gemini-style generateContent endpoint over raw HTTP.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewClient builds a reasoning client from configuration.
func NewClient(cfg config.ReasoningConfig, log *slog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		log:        log,
	}
}

type wireContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent        `json:"contents"`
	SystemInstruction *wireContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  wireGenerationConfig `json:"generationConfig"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends one request and returns the raw reply text. The pass
// label ("evaluate" or "draft") is used for logging and metrics only.
// There is no retry; a failed call fails the pipeline run.
func (c *Client) Generate(ctx context.Context, req Request, pass string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.NewReasoningUnavailable(err)
	}
	metrics.ReasoningRequests.WithLabelValues(pass).Inc()

	body := wireRequest{
		Contents: []wireContent{{Role: "user", Parts: req.Parts}},
		GenerationConfig: wireGenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.Instructions != "" {
		body.SystemInstruction = &wireContent{Parts: []Part{{Text: req.Instructions}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.NewReasoningUnavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewReasoningUnavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewReasoningUnavailable(
			fmt.Errorf("reasoning service returned %d: %s", resp.StatusCode, truncateForLog(string(raw))))
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errors.NewReasoningUnavailable(fmt.Errorf("malformed reasoning response: %w", err))
	}
	if decoded.Error != nil {
		return "", errors.NewReasoningUnavailable(
			fmt.Errorf("reasoning service error %d: %s", decoded.Error.Code, decoded.Error.Message))
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.NewReasoningUnavailable(fmt.Errorf("reasoning response has no candidates"))
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	c.log.Debug("reasoning call complete",
		"pass", pass,
		"duration", time.Since(start),
		"finish_reason", decoded.Candidates[0].FinishReason,
		"reply_chars", text.Len(),
	)
	return text.String(), nil
}

func truncateForLog(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
