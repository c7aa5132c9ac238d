package agent

import (
	"io"

	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
)

// Recorder persists the conversation after every completed step.
// *conversation.Store satisfies it.
type Recorder interface {
	Save(conv *conversation.Conversation) error
}

// ToolObserver is notified after each tool call has been dispatched.
type ToolObserver func(call conversation.ToolCall, result conversation.ToolResult)

// DriverOption configures optional runtime dependencies for Driver.
type DriverOption func(*driverDeps)

type driverDeps struct {
	logger   loggerpkg.Logger
	recorder Recorder
	out      io.Writer
	observer ToolObserver
	stream   *bool
	maxTurns int
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) DriverOption {
	return func(d *driverDeps) {
		d.logger = l
	}
}

// WithRecorder sets where the conversation is persisted after each step.
func WithRecorder(r Recorder) DriverOption {
	return func(d *driverDeps) {
		d.recorder = r
	}
}

// WithStreamWriter sets the user-facing writer for streamed text.
func WithStreamWriter(w io.Writer) DriverOption {
	return func(d *driverDeps) {
		d.out = w
	}
}

// WithStream overrides whether responses are streamed.
func WithStream(stream bool) DriverOption {
	return func(d *driverDeps) {
		d.stream = &stream
	}
}

// WithMaxTurns overrides the configured turn limit.
func WithMaxTurns(n int) DriverOption {
	return func(d *driverDeps) {
		d.maxTurns = n
	}
}

// WithToolObserver registers a callback for dispatched tool calls.
func WithToolObserver(fn ToolObserver) DriverOption {
	return func(d *driverDeps) {
		d.observer = fn
	}
}
