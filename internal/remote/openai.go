package remote

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI calls the Chat Completions API, or any compatible endpoint.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI builds a caller. SDK-level retries are disabled; wrap the
// caller in Retrying instead.
func NewOpenAI(apiKey, baseURL string, timeout time.Duration) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAI{client: openai.NewClient(opts...)}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, &APIError{Provider: "openai", Status: apiErr.StatusCode, Err: err}
		}
		return Response{}, err
	}

	usage := Usage{
		Model:           resp.Model,
		InputTokens:     resp.Usage.PromptTokens,
		OutputTokens:    resp.Usage.CompletionTokens,
		CacheReadTokens: resp.Usage.PromptTokensDetails.CachedTokens,
	}
	if usage.Model == "" {
		usage.Model = req.Model
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, &BilledError{Usage: usage, Err: ErrEmptyResponse}
	}
	return Response{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}
