// Package advisor provides optional natural-language market commentary from
// an OpenAI-compatible chat-completions API. The boundary is fallible by
// design: every failure degrades to a fixed fallback string and is logged
// for diagnostics only, so commentary can never affect snapshot or alert
// state.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/matoracle/internal/logger"
	"github.com/rewired-gh/matoracle/internal/models"
)

const (
	// FallbackAnalysis is returned whenever free-text commentary cannot be
	// obtained.
	FallbackAnalysis = "Analysis unavailable."
	// FallbackSignal is the safe trading recommendation returned on any
	// failure.
	FallbackSignal = "HOLD"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client calls a chat-completions endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.RetryDelayBase <= 0 {
		config.RetryDelayBase = time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze returns a short free-text assessment (at most three sentences) of
// the market snapshot, or FallbackAnalysis when the service is unavailable.
func (c *Client) Analyze(ctx context.Context, snapshot models.MarketSnapshot) string {
	system := "You are a raw-materials market analyst. Assess the market data in at most three sentences."
	user := fmt.Sprintf(
		"Market: %s\nPrice: $%.2f\n24h change: %.2f%%\nMismatch score: %.2f\nDemand index: %.2f\nSupply index: %.2f\nAlert level: %s",
		snapshot.Name, snapshot.Price, snapshot.Change24h,
		snapshot.MismatchScore, snapshot.DemandIndex, snapshot.SupplyIndex, snapshot.AlertLevel,
	)

	text, err := c.complete(ctx, system, user, 150, 0.7)
	if err != nil {
		logger.Warn("Analysis request for %s failed: %v", snapshot.Name, err)
		return FallbackAnalysis
	}
	return text
}

// Signal returns a HOLD/BUY/SELL recommendation with a one-sentence
// justification, or FallbackSignal when the service is unavailable.
func (c *Client) Signal(ctx context.Context, snapshot models.MarketSnapshot) string {
	system := "Give a short trading recommendation (HOLD, BUY, or SELL) with a one-sentence justification."
	user := fmt.Sprintf("Market: %s, mismatch: %.2f, alert level: %s",
		snapshot.Name, snapshot.MismatchScore, snapshot.AlertLevel)

	text, err := c.complete(ctx, system, user, 100, 0.5)
	if err != nil {
		logger.Warn("Signal request for %s failed: %v", snapshot.Name, err)
		return FallbackSignal
	}
	return text
}

// complete performs the chat-completions request with linear-backoff retry
// on transport errors and 5xx responses.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i < c.config.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(c.config.RetryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(c.config.RetryDelayBase * time.Duration(i+1))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		var parsed chatResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
			return "", fmt.Errorf("empty completion")
		}
		return parsed.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
