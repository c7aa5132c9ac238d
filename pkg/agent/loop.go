// Package agent drives a conversation through the model until it answers
// without requesting further tool calls.
package agent

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/provider"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/pkg/errors"
)

// State is the position of the driver in the call/execute cycle.
type State string

const (
	StateIdle           State = "IDLE"
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Result summarizes one submission.
type Result struct {
	State     State
	Turns     int
	ToolCalls int
	Streamed  bool
	Final     conversation.Message
}

// Driver owns the call/execute/append cycle for one conversation at a time.
type Driver struct {
	provider     provider.Provider
	tools        *tools.Registry
	recorder     Recorder
	observer     ToolObserver
	systemPrompt string
	maxTurns     int
	stream       bool
	out          io.Writer

	state   State
	logger  loggerpkg.Logger
	verbose bool
}

// New initializes a Driver with the provided config, model and tools.
func New(cfg configpkg.Config, p provider.Provider, registry *tools.Registry, opts ...DriverOption) (*Driver, error) {
	if p == nil {
		return nil, errors.New("provider is not set")
	}
	if registry == nil {
		return nil, errors.New("tool registry is not set")
	}
	deps := driverDeps{logger: loggerpkg.NopLogger{}, out: io.Discard}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	maxTurns := cfg.MaxTurns
	if deps.maxTurns > 0 {
		maxTurns = deps.maxTurns
	}
	if maxTurns <= 0 {
		maxTurns = 1
	}
	stream := cfg.Stream
	if deps.stream != nil {
		stream = *deps.stream
	}
	systemPrompt := BuildSystemPrompt(registry.DescribeAll())
	if deps.out == nil {
		deps.out = io.Discard
	}

	loggerpkg.Debug(cfg.Verbose, deps.logger, "driver init", map[string]any{
		"provider":  p.Name(),
		"max_turns": maxTurns,
		"stream":    stream,
		"tools":     len(registry.DescribeAll()),
	})

	return &Driver{
		provider:     p,
		tools:        registry,
		recorder:     deps.recorder,
		observer:     deps.observer,
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
		stream:       stream,
		out:          deps.out,
		state:        StateIdle,
		logger:       deps.logger,
		verbose:      cfg.Verbose,
	}, nil
}

// State returns the current driver state.
func (d *Driver) State() State { return d.state }

// Submit runs the loop over conv until the model answers with text only.
// conv is extended in place and saved through the recorder after every
// completed step. On failure the text already recorded is kept.
func (d *Driver) Submit(ctx context.Context, conv *conversation.Conversation) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := Result{}
	if conv == nil {
		return d.fail(result, errors.New("conversation is nil"))
	}
	if !awaitsModel(conv) {
		return d.fail(result, apperr.New(apperr.InvalidArguments, "conversation %s has no pending user message", conv.Name))
	}

	specs := d.tools.DescribeAll()
	for turn := 0; turn < d.maxTurns; turn++ {
		d.state = StateAwaitingModel
		result.Turns = turn + 1
		d.debugf("[verbose] turn %d/%d: sending %d messages", turn+1, d.maxTurns, len(conv.Messages))

		reply, streamedAt, err := d.invoke(ctx, conv, specs)
		if streamedAt >= 0 {
			result.Streamed = true
		}
		if err != nil {
			d.debugf("[verbose] turn %d: model request failed: %v", turn+1, err)
			return d.fail(result, err)
		}

		if !reply.HasToolCalls() {
			final := d.recordAssistant(conv, streamedAt, reply.Text, nil)
			if err := d.save(conv); err != nil {
				return d.fail(result, err)
			}
			d.state = StateDone
			result.State = StateDone
			result.Final = final
			d.debugf("[verbose] loop completed after %d turn(s), stop_reason=%s", turn+1, reply.StopReason)
			return result, nil
		}

		d.state = StateExecutingTools
		d.debugf("[verbose] turn %d: assistant requested %d tool call(s)", turn+1, len(reply.ToolCalls))
		d.recordAssistant(conv, streamedAt, reply.Text, reply.ToolCalls)
		batchAt := len(conv.Messages) - 1

		results, err := d.executeTools(ctx, reply.ToolCalls)
		if err != nil {
			d.rollbackBatch(conv, batchAt)
			return d.fail(result, err)
		}
		for _, res := range results {
			conv.Append(conversation.NewToolMessage(res))
		}
		result.ToolCalls += len(results)
		if err := d.save(conv); err != nil {
			return d.fail(result, err)
		}
	}

	return d.fail(result, apperr.New(apperr.TurnLimit, "max turns (%d) reached before the model produced a final answer", d.maxTurns))
}

// invoke asks the model for the next turn. When streaming, text is written
// to the output and saved as it arrives; streamedAt is then the index of the
// in-progress assistant message, or -1 if nothing was streamed.
func (d *Driver) invoke(ctx context.Context, conv *conversation.Conversation, specs []tools.Spec) (provider.Turn, int, error) {
	req := provider.Request{
		System:   d.systemPrompt,
		Messages: slices.Clone(conv.Messages),
		Tools:    specs,
	}
	if !d.stream {
		reply, err := d.provider.Complete(ctx, req)
		return reply, -1, err
	}

	streamedAt := -1
	reply, err := d.provider.Stream(ctx, req, func(chunk string) error {
		if _, err := io.WriteString(d.out, chunk); err != nil {
			return errors.Wrap(err, "write streamed text")
		}
		if streamedAt < 0 {
			conv.Append(conversation.NewAssistantMessage("", nil))
			streamedAt = len(conv.Messages) - 1
		}
		conv.Messages[streamedAt].Content += chunk
		return d.save(conv)
	})
	if streamedAt >= 0 && !strings.HasSuffix(conv.Messages[streamedAt].Content, "\n") {
		_, _ = io.WriteString(d.out, "\n")
	}
	return reply, streamedAt, err
}

// recordAssistant appends the assistant reply, or completes the message that
// streaming already started.
func (d *Driver) recordAssistant(conv *conversation.Conversation, streamedAt int, text string, calls []conversation.ToolCall) conversation.Message {
	if streamedAt < 0 {
		conv.Append(conversation.NewAssistantMessage(text, calls))
		return *conv.Last()
	}
	msg := &conv.Messages[streamedAt]
	if text != "" {
		msg.Content = text
	}
	msg.ToolCalls = calls
	return *msg
}

// executeTools dispatches calls in order. Tool failures are results, not
// errors; only cancellation stops the batch.
func (d *Driver) executeTools(ctx context.Context, calls []conversation.ToolCall) ([]conversation.ToolResult, error) {
	results := make([]conversation.ToolResult, 0, len(calls))
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			d.debugf("[verbose] tool batch interrupted before call %d/%d", i+1, len(calls))
			return nil, err
		}
		d.debugf("[verbose] executing tool call %d/%d: %s(id=%s)", i+1, len(calls), call.Name, call.ID)
		res := d.tools.Dispatch(ctx, call)
		if res.IsError {
			d.debugf("[verbose] tool call %d failed: %s", i+1, res.Content)
		}
		if d.observer != nil {
			d.observer(call, res)
		}
		results = append(results, res)
	}
	return results, nil
}

// rollbackBatch drops the tool calls of an interrupted batch from memory so
// no call is left without its result. Streamed text stays.
func (d *Driver) rollbackBatch(conv *conversation.Conversation, at int) {
	if at < 0 || at >= len(conv.Messages) {
		return
	}
	loggerpkg.Warn(d.logger, "tool batch interrupted, calls not recorded", map[string]any{
		"conversation": conv.Name,
		"calls":        len(conv.Messages[at].ToolCalls),
	})
	conv.Messages[at].ToolCalls = nil
	if strings.TrimSpace(conv.Messages[at].Content) == "" {
		conv.Messages = slices.Delete(conv.Messages, at, at+1)
	}
}

func (d *Driver) save(conv *conversation.Conversation) error {
	if d.recorder == nil {
		return nil
	}
	if err := d.recorder.Save(conv); err != nil {
		loggerpkg.Warn(d.logger, "saving conversation failed", map[string]any{
			"conversation": conv.Name,
			"error":        err.Error(),
		})
		return errors.Wrapf(err, "save conversation %s", conv.Name)
	}
	return nil
}

func (d *Driver) fail(result Result, err error) (Result, error) {
	d.state = StateFailed
	result.State = StateFailed
	loggerpkg.Debug(d.verbose, d.logger, "submission failed", err)
	return result, err
}

func (d *Driver) debugf(format string, args ...any) {
	loggerpkg.Debugf(d.verbose, d.logger, format, args...)
}

// awaitsModel reports whether the history ends with input the model has not
// answered yet: a user prompt, or tool results from an interrupted run.
func awaitsModel(conv *conversation.Conversation) bool {
	if conv.PendingPrompt() {
		return true
	}
	last := conv.Last()
	return last != nil && last.Role == conversation.RoleTool
}
