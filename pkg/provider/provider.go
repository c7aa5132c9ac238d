// Package provider adapts hosted chat models to one normalized turn shape.
package provider

import (
	"context"

	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/pkg/errors"
)

// Request is one model invocation: the instruction, the full history and the
// tools the model may call.
type Request struct {
	System   string
	Messages []conversation.Message
	Tools    []tools.Spec
}

// Turn is a provider-neutral model response.
type Turn struct {
	Text       string
	ToolCalls  []conversation.ToolCall
	StopReason string
}

// HasToolCalls reports whether the model asked for tool execution.
func (t Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// TextFunc receives streamed text fragments in arrival order. Returning an
// error aborts the stream.
type TextFunc func(chunk string) error

// Provider sends requests to a hosted model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Turn, error)
	Stream(ctx context.Context, req Request, onText TextFunc) (Turn, error)
}

// Option configures optional provider dependencies.
type Option func(*providerDeps)

type providerDeps struct {
	logger loggerpkg.Logger
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) Option {
	return func(d *providerDeps) {
		d.logger = l
	}
}

// New builds the provider selected by cfg.Provider.
func New(cfg configpkg.Config, opts ...Option) (Provider, error) {
	cfg = configpkg.Normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps := providerDeps{logger: loggerpkg.NopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	loggerpkg.Debug(cfg.Verbose, deps.logger, "provider init", map[string]any{
		"provider":    cfg.Provider,
		"model":       cfg.Model,
		"base_url":    cfg.BaseURL,
		"max_tokens":  cfg.MaxTokens,
		"max_retries": cfg.MaxRetries,
	})

	switch cfg.Provider {
	case configpkg.ProviderAnthropic:
		return NewAnthropic(cfg, deps.logger), nil
	default:
		return NewOpenAI(cfg, deps.logger), nil
	}
}

// wrapRequestError tags SDK failures as ProviderError. Cancellation is
// passed through untouched so callers can tell it apart.
func wrapRequestError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperr.KindOf(err) != apperr.Unknown {
		return err
	}
	return apperr.Wrap(apperr.ProviderError, err, "%s request failed", name)
}

func emitText(onText TextFunc, chunk string) error {
	if onText == nil || chunk == "" {
		return nil
	}
	return onText(chunk)
}
