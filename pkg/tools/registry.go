package tools

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/pkg/errors"
)

// Arguments are the decoded arguments of one tool call.
type Arguments map[string]any

// String returns the string argument name, or "" when absent.
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Handler executes a tool. Returned errors are reported to the model as data.
type Handler func(ctx context.Context, args Arguments) (string, error)

// Spec is the declaration of a tool advertised to the model.
type Spec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// JSONSchema returns the parameter schema as a plain JSON object.
func (s Spec) JSONSchema() map[string]any {
	return parametersOf(s.Parameters)
}

// Context provides shared settings for the registry.
type Context struct {
	Verbose bool
	Logger  loggerpkg.Logger
}

func (c Context) debugf(format string, args ...any) {
	loggerpkg.Debugf(c.Verbose, c.Logger, format, args...)
}

type entry struct {
	spec    Spec
	handler Handler
}

// Registry holds registered tools and handles execution.
type Registry struct {
	registry map[string]entry
	order    []string
	ctx      Context
}

// New builds an empty registry.
func New(ctx Context) *Registry {
	if ctx.Logger == nil {
		ctx.Logger = loggerpkg.NopLogger{}
	}
	return &Registry{
		registry: make(map[string]entry),
		ctx:      ctx,
	}
}

// Register associates a tool name with its schema and handler.
func (t *Registry) Register(name, description string, schema *jsonschema.Schema, handler Handler) error {
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if handler == nil {
		return errors.Errorf("tool %s has no handler", name)
	}
	if _, exists := t.registry[name]; exists {
		return errors.Errorf("tool %s already registered", name)
	}
	t.registry[name] = entry{
		spec:    Spec{Name: name, Description: description, Parameters: schema},
		handler: handler,
	}
	t.order = append(t.order, name)
	t.ctx.debugf("[verbose] registered tool: %s", name)
	return nil
}

// DescribeAll returns the specs of all tools in registration order.
func (t *Registry) DescribeAll() []Spec {
	specs := make([]Spec, 0, len(t.order))
	for _, name := range t.order {
		specs = append(specs, t.registry[name].spec)
	}
	return specs
}

// Call runs a tool call and returns its output or a typed error:
// UnknownTool, InvalidArguments, or whatever the handler reports.
func (t *Registry) Call(ctx context.Context, call conversation.ToolCall) (string, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	toolImpl, ok := t.registry[call.Name]
	if !ok {
		return "", apperr.New(apperr.UnknownTool, "unknown tool: %s", call.Name)
	}

	args := Arguments(call.Arguments)
	if args == nil {
		args = Arguments{}
	}
	if err := validateArguments(toolImpl.spec.Parameters, args); err != nil {
		return "", errors.Wrap(err, call.Name)
	}

	t.ctx.debugf("[verbose] executing tool: %s(id=%s)", call.Name, call.ID)
	return toolImpl.handler(ctx, args)
}

// Dispatch runs a tool call and always yields a result correlated to the
// call. Failures are rendered as "Error: <message>" so the model can react.
func (t *Registry) Dispatch(ctx context.Context, call conversation.ToolCall) conversation.ToolResult {
	result := conversation.ToolResult{CallID: call.ID, Name: call.Name}
	output, err := t.Call(ctx, call)
	if err != nil {
		t.ctx.debugf("[verbose] tool %s failed: %v", call.Name, err)
		result.Content = fmt.Sprintf("Error: %v", err)
		result.IsError = true
		return result
	}
	result.Content = output
	return result
}
