package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient serves both the hosted API and any OpenAI-compatible endpoint
// (ollama), selected by base URL.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &OpenAIClient{client: client, model: model}
}

func (c *OpenAIClient) Generate(ctx context.Context, systemInstruction string, history []Message, params Params) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemInstruction),
	}
	for _, m := range history {
		// Gemini-style "model" role maps to the assistant role here.
		if m.Role == "model" {
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    msgs,
		Temperature: openai.Float(params.Temperature),
		TopP:        openai.Float(params.TopP),
		MaxTokens:   openai.Int(int64(params.MaxOutputTokens)),
	})
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("openai chat: %w", err)}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
