package agent

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/provider"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned turns and records every request.
type scriptedProvider struct {
	turns    []provider.Turn
	chunks   [][]string
	failAt   int
	failErr  error
	requests []provider.Request
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) next(req provider.Request) (provider.Turn, int, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if s.failErr != nil && i == s.failAt {
		return provider.Turn{}, i, s.failErr
	}
	if i >= len(s.turns) {
		return provider.Turn{}, i, errors.New("script exhausted")
	}
	return s.turns[i], i, nil
}

func (s *scriptedProvider) Complete(_ context.Context, req provider.Request) (provider.Turn, error) {
	turn, _, err := s.next(req)
	return turn, err
}

func (s *scriptedProvider) Stream(_ context.Context, req provider.Request, onText provider.TextFunc) (provider.Turn, error) {
	i := len(s.requests)
	if i < len(s.chunks) {
		for _, chunk := range s.chunks[i] {
			if err := onText(chunk); err != nil {
				return provider.Turn{}, err
			}
		}
	}
	turn, _, err := s.next(req)
	return turn, err
}

type fixture struct {
	store *conversation.Store
	conv  *conversation.Conversation
	root  string
}

func newFixture(t *testing.T, prompt string) fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "conversations")
	store := conversation.NewStore(root, conversation.TextCodec{})
	conv, err := store.Create("session")
	require.NoError(t, err)
	conv.Append(conversation.NewUserMessage(prompt))
	require.NoError(t, store.Save(conv))
	return fixture{store: store, conv: conv, root: root}
}

func (f fixture) driver(t *testing.T, p provider.Provider, opts ...DriverOption) *Driver {
	t.Helper()
	reg, err := tools.NewFileRegistry(tools.NewWorkspace(f.root), tools.Context{})
	require.NoError(t, err)
	cfg := configpkg.DefaultConfig()
	d, err := New(cfg, p, reg, append([]DriverOption{WithRecorder(f.store)}, opts...)...)
	require.NoError(t, err)
	return d
}

func call(id, name string, args map[string]any) conversation.ToolCall {
	return conversation.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestSubmitListFilesThenDone(t *testing.T) {
	f := newFixture(t, "please list files")
	p := &scriptedProvider{turns: []provider.Turn{
		{ToolCalls: []conversation.ToolCall{call("call_1", tools.ListFilesName, map[string]any{})}},
		{Text: "Done"},
	}}
	d := f.driver(t, p)

	res, err := d.Submit(context.Background(), f.conv)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, StateDone, d.State())
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, "Done", res.Final.Content)

	record, err := f.store.Load("session")
	require.NoError(t, err)
	msgs := record.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "call_1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, conversation.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, conversation.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "Done", msgs[3].Content)

	require.Len(t, p.requests, 2)
	assert.Contains(t, p.requests[0].System, "list_files")
	assert.Len(t, p.requests[0].Tools, 5)
	assert.Len(t, p.requests[1].Messages, 3, "second call sees the tool result")
}

func TestSubmitReadMissingFileContinues(t *testing.T) {
	f := newFixture(t, "show me ghost.txt")
	p := &scriptedProvider{turns: []provider.Turn{
		{ToolCalls: []conversation.ToolCall{call("call_r", tools.ReadFileName, map[string]any{"filename": "ghost.txt"})}},
		{Text: "That file does not exist."},
	}}
	d := f.driver(t, p)

	res, err := d.Submit(context.Background(), f.conv)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	require.Len(t, p.requests, 2, "loop continues to a second model call")

	toolMsg := p.requests[1].Messages[2]
	assert.Equal(t, conversation.RoleTool, toolMsg.Role)
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, strings.ToLower(toolMsg.Content), "not found")

	stored := mustLoad(t, f.store).Messages[2]
	assert.True(t, stored.IsError, "failure flag survives a reload")
}

func TestSubmitKeepsToolResultOrder(t *testing.T) {
	f := newFixture(t, "make three files")
	calls := []conversation.ToolCall{
		call("c-1", tools.WriteFileName, map[string]any{"filename": "one.txt", "content": "1"}),
		call("c-2", "no_such_tool", map[string]any{}),
		call("c-3", tools.AppendFileName, map[string]any{"filename": "one.txt", "content": "+"}),
		call("c-4", tools.WriteFileName, map[string]any{"filename": "../escape.txt", "content": "x"}),
	}
	p := &scriptedProvider{turns: []provider.Turn{{Text: "Working on it.", ToolCalls: calls}, {Text: "Finished."}}}

	var observed []string
	d := f.driver(t, p, WithToolObserver(func(c conversation.ToolCall, r conversation.ToolResult) {
		observed = append(observed, r.CallID)
	}))

	res, err := d.Submit(context.Background(), f.conv)
	require.NoError(t, err)
	assert.Equal(t, 4, res.ToolCalls)
	assert.Equal(t, []string{"c-1", "c-2", "c-3", "c-4"}, observed)

	msgs := f.conv.Messages
	require.Len(t, msgs, 7)
	assert.Equal(t, "Working on it.", msgs[1].Content)
	for i, c := range calls {
		assert.Equal(t, conversation.RoleTool, msgs[2+i].Role)
		assert.Equal(t, c.ID, msgs[2+i].ToolCallID)
	}
	assert.Contains(t, msgs[3].Content, "unknown tool")
	assert.Contains(t, msgs[5].Content, "path traversal")

	data, err := os.ReadFile(filepath.Join(f.root, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1+", string(data))
	_, err = os.Stat(filepath.Join(filepath.Dir(f.root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSubmitProviderErrorKeepsStreamedText(t *testing.T) {
	f := newFixture(t, "tell me a story")
	p := &scriptedProvider{
		chunks:  [][]string{{"Once upon ", "a time"}},
		failAt:  0,
		failErr: apperr.New(apperr.ProviderError, "connection reset"),
	}
	var out bytes.Buffer
	d := f.driver(t, p, WithStream(true), WithStreamWriter(&out))

	res, err := d.Submit(context.Background(), f.conv)
	require.Error(t, err)
	assert.Equal(t, apperr.ProviderError, apperr.KindOf(err))
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, res.Streamed)
	assert.Equal(t, "Once upon a time\n", out.String())

	record, err := f.store.Load("session")
	require.NoError(t, err)
	last := record.Last()
	require.NotNil(t, last)
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, "Once upon a time", last.Content)
}

func TestSubmitStreamingCompletesStreamedMessage(t *testing.T) {
	f := newFixture(t, "write hello")
	p := &scriptedProvider{
		chunks: [][]string{{"Writing ", "now."}, {"All ", "set."}},
		turns: []provider.Turn{
			{Text: "Writing now.", ToolCalls: []conversation.ToolCall{call("w1", tools.WriteFileName, map[string]any{"filename": "hello.txt", "content": "hi"})}},
			{Text: "All set."},
		},
	}
	var out bytes.Buffer
	d := f.driver(t, p, WithStream(true), WithStreamWriter(&out))

	res, err := d.Submit(context.Background(), f.conv)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Writing now.\nAll set.\n", out.String())

	record, err := f.store.Load("session")
	require.NoError(t, err)
	require.Len(t, record.Messages, 4)
	assert.Equal(t, "Writing now.", record.Messages[1].Content)
	require.Len(t, record.Messages[1].ToolCalls, 1)
	assert.Equal(t, "w1", record.Messages[2].ToolCallID)
	assert.Equal(t, "All set.", record.Messages[3].Content)
}

func TestSubmitMalformedResponseFails(t *testing.T) {
	f := newFixture(t, "go")
	p := &scriptedProvider{failAt: 0, failErr: apperr.New(apperr.MalformedResponse, "tool arguments are not valid JSON")}
	d := f.driver(t, p)

	res, err := d.Submit(context.Background(), f.conv)
	require.Error(t, err)
	assert.Equal(t, apperr.MalformedResponse, apperr.KindOf(err))
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, f.conv.Messages, 1)
}

func TestSubmitTurnLimit(t *testing.T) {
	f := newFixture(t, "loop forever")
	looping := provider.Turn{ToolCalls: []conversation.ToolCall{call("", tools.ListFilesName, nil)}}
	p := &scriptedProvider{turns: []provider.Turn{looping, looping, looping}}
	d := f.driver(t, p, WithMaxTurns(2))

	res, err := d.Submit(context.Background(), f.conv)
	require.Error(t, err)
	assert.Equal(t, apperr.TurnLimit, apperr.KindOf(err))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.Turns)
	assert.Len(t, p.requests, 2)
}

func TestSubmitCancelledBatchLeavesNoDanglingCall(t *testing.T) {
	f := newFixture(t, "do two things")
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{turns: []provider.Turn{{ToolCalls: []conversation.ToolCall{
		call("a", tools.ListFilesName, nil),
		call("b", tools.ListFilesName, nil),
	}}}}
	d := f.driver(t, p, WithToolObserver(func(conversation.ToolCall, conversation.ToolResult) { cancel() }))

	res, err := d.Submit(ctx, f.conv)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)

	for _, conv := range []*conversation.Conversation{f.conv, mustLoad(t, f.store)} {
		for _, msg := range conv.Messages {
			assert.Empty(t, msg.ToolCalls)
			assert.NotEqual(t, conversation.RoleTool, msg.Role)
		}
	}
}

type brokenRecorder struct{}

func (brokenRecorder) Save(*conversation.Conversation) error { return errors.New("disk full") }

func TestSubmitSaveFailureIsLoggedAndFatal(t *testing.T) {
	f := newFixture(t, "hello")
	var logs bytes.Buffer
	p := &scriptedProvider{turns: []provider.Turn{{Text: "hi"}}}
	d := f.driver(t, p, WithRecorder(brokenRecorder{}), WithLogger(loggerpkg.NewWriterLogger(&logs, false)))

	res, err := d.Submit(context.Background(), f.conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save conversation session: disk full")
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, logs.String(), "saving conversation failed")
	assert.Contains(t, logs.String(), "disk full")
}

func TestSubmitRequiresPendingPrompt(t *testing.T) {
	f := newFixture(t, "hi")
	f.conv.Append(conversation.NewAssistantMessage("hello", nil))
	d := f.driver(t, &scriptedProvider{})

	_, err := d.Submit(context.Background(), f.conv)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArguments, apperr.KindOf(err))
}

func mustLoad(t *testing.T, store *conversation.Store) *conversation.Conversation {
	t.Helper()
	conv, err := store.Load("session")
	require.NoError(t, err)
	return conv
}
