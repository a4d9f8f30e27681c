package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI-compatible reasoner.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIReasoner serves every role through an OpenAI-compatible chat completion API.
type OpenAIReasoner struct {
	client *openai.Client
	model  string
}

var _ Reasoner = (*OpenAIReasoner)(nil)

// NewOpenAIReasoner creates a reasoner for the configured endpoint.
func NewOpenAIReasoner(cfg OpenAIConfig) *OpenAIReasoner {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIReasoner{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (o *OpenAIReasoner) Reason(ctx context.Context, req *Request) (*Result, error) {
	rp, ok := rolePrompts[req.Role]
	if !ok {
		return nil, fmt.Errorf("unsupported role %q", req.Role)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   rp.maxTokens,
		Temperature: rp.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rp.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if rp.schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   string(req.Role) + "_result",
				Strict: true,
				Schema: rp.schema,
			},
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	latency := time.Since(start)
	if err != nil {
		slog.Error("reasoner request failed",
			"role", req.Role,
			"error", err,
			"latency_ms", latency.Milliseconds())
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from LLM", ErrMalformedOutput)
	}

	content := resp.Choices[0].Message.Content
	result, err := parseResponse(content, rp.schema != nil, rp.textField)
	if err != nil {
		slog.Warn("failed to parse reasoner response",
			"role", req.Role,
			"content", truncate(content, 200),
			"error", err)
		return nil, err
	}

	slog.Debug("reasoner call completed",
		"role", req.Role,
		"latency_ms", latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens)
	return result, nil
}

func buildPrompt(req *Request) (string, error) {
	var b strings.Builder
	if len(req.Context) > 0 {
		data, err := json.MarshalIndent(req.Context, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal reasoner context: %w", err)
		}
		b.WriteString("Context:\n")
		b.Write(data)
		b.WriteString("\n\n")
	}
	if req.Text != "" {
		b.WriteString("User message: ")
		b.WriteString(req.Text)
	}
	return b.String(), nil
}

var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseResponse decodes structured output. Free-text roles are wrapped into textField.
func parseResponse(content string, structured bool, textField string) (*Result, error) {
	content = strings.TrimSpace(content)

	// Handle potential markdown code blocks
	if strings.HasPrefix(content, "```") {
		if matches := fenceRe.FindStringSubmatch(content); len(matches) > 1 {
			content = matches[1]
		}
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}

	if !structured {
		return &Result{Fields: map[string]any{textField: content}, Raw: content}, nil
	}

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &Result{Fields: fields, Raw: content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
