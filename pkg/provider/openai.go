package provider

import (
	"context"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI talks to the chat completions API or any compatible endpoint.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    loggerpkg.Logger
	verbose   bool
}

// NewOpenAI builds an OpenAI provider from cfg.
func NewOpenAI(cfg configpkg.Config, logger loggerpkg.Logger) *OpenAI {
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	return &OpenAI{
		client:    newOpenAIClient(cfg),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		logger:    logger,
		verbose:   cfg.Verbose,
	}
}

func newOpenAIClient(cfg configpkg.Config) openai.Client {
	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return openai.NewClient(opts...)
}

// Name implements Provider.
func (p *OpenAI) Name() string { return configpkg.ProviderOpenAI }

// Complete sends one non-streaming request.
func (p *OpenAI) Complete(ctx context.Context, req Request) (Turn, error) {
	p.debugf("[verbose] openai: sending request with %d messages", len(req.Messages))
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		p.debugf("[verbose] openai: request failed: %v", err)
		return Turn{}, wrapRequestError(p.Name(), err)
	}
	if len(completion.Choices) == 0 {
		return Turn{}, apperr.New(apperr.MalformedResponse, "empty completion choices")
	}
	choice := completion.Choices[0]
	p.debugf("[verbose] openai: received %d choice(s), finish_reason=%s", len(completion.Choices), choice.FinishReason)
	return fromOpenAIMessage(choice.Message, choice.FinishReason)
}

// Stream sends one streaming request, forwarding text deltas to onText.
// Tool call fragments are reassembled by the SDK accumulator.
func (p *OpenAI) Stream(ctx context.Context, req Request, onText TextFunc) (Turn, error) {
	p.debugf("[verbose] openai: sending streaming request with %d messages", len(req.Messages))
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	chunkCount := 0
	for stream.Next() {
		chunk := stream.Current()
		chunkCount++
		if !acc.AddChunk(chunk) {
			loggerpkg.Warn(p.logger, "openai: malformed stream chunk", map[string]any{"chunk": chunkCount, "id": chunk.ID})
			return Turn{}, apperr.New(apperr.MalformedResponse, "failed to accumulate stream chunk %d", chunkCount)
		}
		if len(chunk.Choices) > 0 {
			if err := emitText(onText, chunk.Choices[0].Delta.Content); err != nil {
				return Turn{}, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		p.debugf("[verbose] openai: streaming error after %d chunks: %v", chunkCount, err)
		return Turn{}, wrapRequestError(p.Name(), err)
	}
	if len(acc.Choices) == 0 {
		return Turn{}, apperr.New(apperr.MalformedResponse, "empty streamed completion choices")
	}
	choice := acc.Choices[0]
	p.debugf("[verbose] openai: streaming completed: %d chunks, finish_reason=%s", chunkCount, choice.FinishReason)
	return fromOpenAIMessage(choice.Message, choice.FinishReason)
}

func (p *OpenAI) params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(p.maxTokens)
	}
	return params
}

func (p *OpenAI) debugf(format string, args ...any) {
	loggerpkg.Debugf(p.verbose, p.logger, format, args...)
}

func toOpenAIMessages(system string, history []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range history {
		switch msg.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case conversation.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case conversation.RoleAssistant:
			out = append(out, toOpenAIAssistant(msg))
		case conversation.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func toOpenAIAssistant(msg conversation.Message) openai.ChatCompletionMessageParamUnion {
	if !msg.HasToolCalls() {
		return openai.AssistantMessage(msg.Content)
	}
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	for _, call := range msg.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: encodeArguments(call.Arguments),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func toOpenAITools(specs []tools.Spec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.JSONSchema()),
			},
		})
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage, finishReason string) (Turn, error) {
	turn := Turn{Text: msg.Content, StopReason: finishReason}
	for _, call := range msg.ToolCalls {
		tc, err := newToolCall(call.ID, call.Function.Name, call.Function.Arguments)
		if err != nil {
			return Turn{}, err
		}
		turn.ToolCalls = append(turn.ToolCalls, tc)
	}
	return turn, nil
}
