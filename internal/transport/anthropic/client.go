package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/version"
)

const (
	providerName      = "anthropic"
	defaultEndpoint   = "https://api.anthropic.com/v1/messages"
	apiVersion        = "2023-06-01"
	defaultMaxTokens  = 1024
	maxErrorBodyBytes = 4096
)

// Client is a domain.ProviderClient for the Anthropic Messages API.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Messages API client. A nil httpClient uses http.DefaultClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Call implements domain.ProviderClient.
func (c *Client) Call(
	ctx context.Context, cfg domain.ModelConfig, req domain.ProviderRequest,
) (domain.ProviderResponse, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return domain.ProviderResponse{}, domain.NewPermanentError(providerName, 0, fmt.Errorf("marshal request: %w", err))
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ProviderResponse{}, domain.NewPermanentError(providerName, 0, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("user-agent", version.UserAgent())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ProviderResponse{}, domain.NewTransientError(providerName, 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.ProviderResponse{}, statusError(resp)
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.ProviderResponse{}, domain.NewTransientError(providerName, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if decoded.StopReason == "refusal" {
		return domain.ProviderResponse{}, domain.NewPermanentError(providerName, resp.StatusCode, errors.New("request refused by model"))
	}

	return domain.ProviderResponse{
		Content:      decoded.text(),
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
	}, nil
}

func buildRequest(req domain.ProviderRequest) messagesRequest {
	out := messagesRequest{
		Model:         req.Model,
		MaxTokens:     req.Sampling.MaxTokens,
		System:        req.SystemPrompt,
		Temperature:   req.Sampling.Temperature,
		TopP:          req.Sampling.TopP,
		StopSequences: req.Sampling.Stop,
		Messages:      make([]message, 0, len(req.Conversation)),
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	for _, t := range req.Conversation {
		out.Messages = append(out.Messages, message{
			Role:    string(t.Role),
			Content: []content{{Type: "text", Text: t.Content}},
		})
	}
	return out
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	msg := resp.Status
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Type + ": " + parsed.Error.Message
	}
	err := errors.New(msg)

	// 529 overloaded is covered by the >= 500 rule
	if domain.IsTransientStatus(resp.StatusCode) {
		return domain.NewTransientError(providerName, resp.StatusCode, err)
	}
	return domain.NewPermanentError(providerName, resp.StatusCode, err)
}

type messagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []message `json:"messages"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r messagesResponse) text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
