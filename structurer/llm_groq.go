package structurer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible API root.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

const maxErrorBody = 4096

// GroqClient calls the Groq Chat Completions API over plain HTTP.
// See: https://console.groq.com/docs/api-reference
type GroqClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

// NewGroqClient creates a Groq client. A nil httpClient gets a client with
// cfg.Timeout (60s when unset).
func NewGroqClient(cfg LLMSettings, httpClient *http.Client) (*GroqClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	return &GroqClient{
		http:    httpClient,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (g *GroqClient) Name() string { return "groq" }

// Complete posts env as the request body and returns choices[0].message.content.
func (g *GroqClient) Complete(ctx context.Context, env Envelope) (string, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", &CompletionError{Kind: KindNetworkError, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &CompletionError{Kind: KindNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", &CompletionError{Kind: KindNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &CompletionError{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(errBody, resp.Status),
			RetryAfter: retryAfter(resp.Header),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CompletionError{Kind: KindNetworkError, StatusCode: resp.StatusCode, Err: err}
	}
	content := gjson.GetBytes(data, "choices.0.message.content")
	if !gjson.ValidBytes(data) || content.Type != gjson.String || content.String() == "" {
		return "", &CompletionError{Kind: KindEmptyResponse, StatusCode: resp.StatusCode}
	}
	return content.String(), nil
}

// upstreamMessage prefers error.message from a JSON error body and falls
// back to the status line.
func upstreamMessage(body []byte, status string) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return status
}

// retryAfter reads the retry-after header, either delta-seconds or an
// HTTP-date. Dates in the past yield zero.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("retry-after"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	if d := time.Until(at).Round(time.Second); d > 0 {
		return d
	}
	return 0
}
