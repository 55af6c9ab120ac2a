// Package chatmodel adapts any OpenAI-compatible chat completions endpoint
// to the ADK model.LLM interface.
package chatmodel

import (
	"context"
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Config for the chat model.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
}

// Model implements model.LLM over openai-go.
type Model struct {
	client openai.Client
	config Config
}

// New builds a Model. An empty model name falls back to gpt-4o-mini.
func New(cfg Config) *Model {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Model{client: openai.NewClient(opts...), config: cfg}
}

// Name implements model.LLM.
func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent implements model.LLM. Streaming is not supported; a single
// response is yielded either way.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    m.config.Model,
		Messages: convertMessages(req),
	}
	switch {
	case req != nil && req.Config != nil && req.Config.Temperature != nil:
		params.Temperature = openai.Float(float64(*req.Config.Temperature))
	case m.config.Temperature != nil:
		params.Temperature = openai.Float(*m.config.Temperature)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: empty choices")
	}

	text := resp.Choices[0].Message.Content
	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{genai.NewPartFromText(text)},
		},
	}, nil
}

func convertMessages(req *model.LLMRequest) []openai.ChatCompletionMessageParamUnion {
	if req == nil {
		return nil
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Contents)+1)

	if req.Config != nil && req.Config.SystemInstruction != nil {
		if sys := contentText(req.Config.SystemInstruction); sys != "" {
			messages = append(messages, openai.SystemMessage(sys))
		}
	}

	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		text := contentText(content)
		if text == "" {
			continue
		}
		if content.Role == "model" {
			messages = append(messages, openai.AssistantMessage(text))
		} else {
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}

func contentText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || strings.TrimSpace(part.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
