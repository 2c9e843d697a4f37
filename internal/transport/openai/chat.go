package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// ChatClient is a domain.ProviderClient for OpenAI-compatible chat completion APIs.
// One SDK client is kept per (base URL, API key) pair.
type ChatClient struct {
	provider   string
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewChatClient creates a chat provider client. provider names the client in errors and logs.
func NewChatClient(provider string, httpClient *http.Client, logger *zap.Logger) *ChatClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{
		provider:   provider,
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[string]*openai.Client),
	}
}

// Call implements domain.ProviderClient.
func (c *ChatClient) Call(
	ctx context.Context, cfg domain.ModelConfig, req domain.ProviderRequest,
) (domain.ProviderResponse, error) {
	resp, err := c.client(cfg).CreateChatCompletion(ctx, buildChatRequest(req))
	if err != nil {
		return domain.ProviderResponse{}, c.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return domain.ProviderResponse{}, domain.NewTransientError(c.provider, 0, errors.New("empty choices"))
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return domain.ProviderResponse{}, domain.NewPermanentError(c.provider, 0, errors.New("content rejected by provider filter"))
	}

	return domain.ProviderResponse{
		Content:      choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *ChatClient) client(cfg domain.ModelConfig) *openai.Client {
	key := cfg.BaseURL + "\x00" + cfg.APIKey

	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[key]; ok {
		return cl
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if c.httpClient != nil {
		clientCfg.HTTPClient = c.httpClient
	}
	cl := openai.NewClientWithConfig(clientCfg)
	c.clients[key] = cl
	return cl
}

func buildChatRequest(req domain.ProviderRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Conversation)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, t := range req.Conversation {
		role := openai.ChatMessageRoleUser
		if t.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: req.Sampling.MaxTokens,
		Stop:      req.Sampling.Stop,
	}
	if t := req.Sampling.Temperature; t != nil {
		out.Temperature = float32(*t)
		if *t == 0 {
			// the SDK drops a zero temperature (omitempty), which the API reads as 1.0
			out.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if p := req.Sampling.TopP; p != nil {
		out.TopP = float32(*p)
	}
	return out
}

// classify maps SDK errors onto transient or permanent provider errors.
func (c *ChatClient) classify(ctx context.Context, err error) error {
	classified := classifyError(ctx, c.provider, err)
	var pe *domain.ProviderError
	if errors.As(classified, &pe) && pe.StatusCode == 0 {
		c.logger.Debug("Chat request failed before a response", zap.String("provider", c.provider), zap.Error(err))
	}
	return classified
}
