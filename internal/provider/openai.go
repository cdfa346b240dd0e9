package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/metrics"
	"github.com/conclavehq/conclave/internal/tool"
)

// OpenAIConfig configures an OpenAI-compatible provider
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty = api.openai.com
	Model     string
	MaxTokens int
	// name reported in logs and metrics; defaults to "openai"
	ProviderName string
}

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint
type OpenAIProvider struct {
	client    *openai.Client
	name      string
	model     string
	maxTokens int
}

// NewOpenAI creates a provider for the OpenAI API or any compatible endpoint
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	name := cfg.ProviderName
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		name:      name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }

// Generate performs one chat completion call and normalizes the response
func (p *OpenAIProvider) Generate(ctx context.Context, messages []ChatMessage, tools []tool.Schema) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertToOpenAIMessages(messages),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if len(tools) > 0 {
		req.Tools = convertToOpenAITools(tools)
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordProviderCall(p.name, p.model, "error", elapsed)
		return nil, fmt.Errorf("%s: chat completion failed: %w", p.name, err)
	}
	metrics.RecordProviderCall(p.name, p.model, "success", elapsed)

	if len(resp.Choices) == 0 {
		return &Response{FinishReason: FinishError}, nil
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	metrics.RecordTokens(p.name, p.model, out.Usage.InputTokens, out.Usage.OutputTokens)

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, normalizeToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	return out, nil
}

func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)
		case RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return result
}

func convertToOpenAITools(tools []tool.Schema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

func mapOpenAIFinishReason(reason openai.FinishReason) FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return FinishStop
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return FinishToolCalls
	case openai.FinishReasonLength:
		return FinishLength
	default:
		return FinishStop
	}
}

// normalizeToolCall decodes JSON-string arguments into a map. Malformed
// argument JSON degrades to an empty map rather than failing the step;
// the downstream finish-task handling depends on that.
func normalizeToolCall(id, name, rawArgs string) message.ToolCall {
	if id == "" {
		id = NewCallID()
	}
	args := make(map[string]any)
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			logger.Warn("Tool call %s (%s): unparseable arguments, using empty map: %v", id, name, err)
			args = make(map[string]any)
		}
	}
	return message.ToolCall{ID: id, Name: name, Arguments: args}
}
