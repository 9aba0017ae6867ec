package structurer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat
// completions). It serves any OpenAI-compatible endpoint, e.g. DeepSeek.
type OpenAILLM struct {
	Opts []option.RequestOption
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	// The SDK retries by default; a failed attempt must surface immediately.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAILLM{Opts: opts}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, env Envelope) (string, error) {
	client := openai.NewClient(o.Opts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(env.Messages))
	for _, m := range env.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(env.Model),
		Messages:    msgs,
		Temperature: openai.Float(env.Temperature),
		MaxTokens:   openai.Int(int64(env.MaxTokens)),
	})
	if err != nil {
		return "", translateSDKError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &CompletionError{Kind: KindEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}

func translateSDKError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &CompletionError{Kind: KindNetworkError, Err: err}
	}
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
	}
	ce := &CompletionError{
		Kind:       kindForStatus(apiErr.StatusCode),
		StatusCode: apiErr.StatusCode,
		Message:    msg,
		Err:        err,
	}
	if apiErr.Response != nil {
		ce.RetryAfter = retryAfter(apiErr.Response.Header)
	}
	return ce
}
