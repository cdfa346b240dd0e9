package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/conclavehq/conclave/internal/logger"
	"github.com/conclavehq/conclave/internal/message"
	"github.com/conclavehq/conclave/internal/metrics"
	"github.com/conclavehq/conclave/internal/tool"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicConfig configures the Anthropic provider
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// AnthropicProvider talks to the Anthropic Messages API
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic provider
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

// Generate performs one Messages API call and normalizes the response
func (p *AnthropicProvider) Generate(ctx context.Context, messages []ChatMessage, tools []tool.Schema) (*Response, error) {
	system, converted := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  converted,
		MaxTokens: p.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(tools) > 0 {
		anthropicTools, err := convertToAnthropicTools(tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		params.Tools = anthropicTools
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordProviderCall("anthropic", p.model, "error", elapsed)
		return nil, fmt.Errorf("anthropic: message call failed: %w", err)
	}
	metrics.RecordProviderCall("anthropic", p.model, "success", elapsed)

	out := &Response{
		FinishReason: mapAnthropicStopReason(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	metrics.RecordTokens("anthropic", p.model, out.Usage.InputTokens, out.Usage.OutputTokens)

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			args := make(map[string]any)
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					logger.Warn("Tool call %s (%s): unparseable input, using empty map: %v", b.ID, b.Name, err)
					args = make(map[string]any)
				}
			}
			id := b.ID
			if id == "" {
				id = NewCallID()
			}
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:        id,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return out, nil
}

// convertToAnthropicMessages flattens chat messages into Anthropic's
// block format. System content is returned separately; the Messages API
// takes it as a top-level parameter rather than a message.
func convertToAnthropicMessages(messages []ChatMessage) (string, []anthropic.MessageParam) {
	var system string
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content

		case RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(content) > 0 {
				result = append(result, anthropic.NewAssistantMessage(content...))
			}

		case RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError),
			))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return system, result
}

func convertToAnthropicTools(tools []tool.Schema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		data, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

func mapAnthropicStopReason(reason anthropic.StopReason) FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	default:
		return FinishStop
	}
}
