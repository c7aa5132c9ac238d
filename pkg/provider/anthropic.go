package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/tools"
)

// Anthropic talks to the Claude messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    loggerpkg.Logger
	verbose   bool
}

// NewAnthropic builds an Anthropic provider from cfg.
func NewAnthropic(cfg configpkg.Config, logger loggerpkg.Logger) *Anthropic {
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		logger:    logger,
		verbose:   cfg.Verbose,
	}
}

// Name implements Provider.
func (p *Anthropic) Name() string { return configpkg.ProviderAnthropic }

// Complete sends one non-streaming request.
func (p *Anthropic) Complete(ctx context.Context, req Request) (Turn, error) {
	p.debugf("[verbose] anthropic: sending request with %d messages", len(req.Messages))
	message, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		p.debugf("[verbose] anthropic: request failed: %v", err)
		return Turn{}, wrapRequestError(p.Name(), err)
	}
	p.debugf("[verbose] anthropic: received %d block(s), stop_reason=%s", len(message.Content), message.StopReason)
	return fromAnthropicMessage(message)
}

// Stream sends one streaming request, forwarding text deltas to onText.
// Tool input fragments are reassembled by Message.Accumulate.
func (p *Anthropic) Stream(ctx context.Context, req Request, onText TextFunc) (Turn, error) {
	p.debugf("[verbose] anthropic: sending streaming request with %d messages", len(req.Messages))
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	message := anthropic.Message{}
	eventCount := 0
	for stream.Next() {
		event := stream.Current()
		eventCount++
		if err := message.Accumulate(event); err != nil {
			loggerpkg.Warn(p.logger, "anthropic: malformed stream event", map[string]any{"event": eventCount, "error": err.Error()})
			return Turn{}, apperr.Wrap(apperr.MalformedResponse, err, "accumulate stream event %d", eventCount)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := emitText(onText, delta.Text); err != nil {
					return Turn{}, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		p.debugf("[verbose] anthropic: streaming error after %d events: %v", eventCount, err)
		return Turn{}, wrapRequestError(p.Name(), err)
	}
	p.debugf("[verbose] anthropic: streaming completed: %d events, stop_reason=%s", eventCount, message.StopReason)
	return fromAnthropicMessage(&message)
}

func (p *Anthropic) params(req Request) anthropic.MessageNewParams {
	messages, system := toAnthropicMessages(req.Messages)
	if strings.TrimSpace(req.System) != "" {
		system = append([]anthropic.TextBlockParam{{Text: req.System}}, system...)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params
}

func (p *Anthropic) debugf(format string, args ...any) {
	loggerpkg.Debugf(p.verbose, p.logger, format, args...)
}

// toAnthropicMessages converts the history. System messages move to the
// system prompt, tool results travel in user turns, and consecutive turns of
// the same role are merged since the API expects alternation.
func toAnthropicMessages(history []conversation.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var (
		out    []anthropic.MessageParam
		system []anthropic.TextBlockParam
	)
	add := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, msg := range history {
		switch msg.Role {
		case conversation.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}
		case conversation.RoleUser:
			if strings.TrimSpace(msg.Content) != "" {
				add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
			}
		case conversation.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			add(anthropic.MessageParamRoleAssistant, blocks...)
		case conversation.RoleTool:
			add(anthropic.MessageParamRoleUser, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCallID,
					IsError:   anthropic.Bool(msg.IsError),
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
					},
				},
			})
		}
	}
	return out, system
}

func toAnthropicTools(specs []tools.Spec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		params := spec.JSONSchema()
		schema := anthropic.ToolInputSchemaParam{Properties: params["properties"]}
		if required, ok := params["required"].([]string); ok {
			schema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func fromAnthropicMessage(message *anthropic.Message) (Turn, error) {
	if message == nil {
		return Turn{}, apperr.New(apperr.MalformedResponse, "empty message")
	}
	var text strings.Builder
	turn := Turn{StopReason: string(message.StopReason)}
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			tc, err := newToolCall(b.ID, b.Name, string(b.Input))
			if err != nil {
				return Turn{}, err
			}
			turn.ToolCalls = append(turn.ToolCalls, tc)
		}
	}
	turn.Text = text.String()
	return turn, nil
}
