package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// classifyError maps go-openai errors onto domain provider errors. Responses are
// classified by status; failures before any response (DNS, reset, refused, deadline)
// are transient so the next config in a chain gets a chance.
func classifyError(_ context.Context, provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return byStatus(provider, apiErr.HTTPStatusCode, fmt.Errorf("%s: %w", apiErr.Message, err))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			err = fmt.Errorf("%s: %w", detail, err)
		}
		return byStatus(provider, reqErr.HTTPStatusCode, err)
	}

	return domain.NewTransientError(provider, 0, err)
}

func byStatus(provider string, status int, err error) error {
	if domain.IsTransientStatus(status) {
		return domain.NewTransientError(provider, status, err)
	}
	return domain.NewPermanentError(provider, status, err)
}

// extractDetail reads the {"detail": "..."} body some OpenAI-compatible hosts return.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
