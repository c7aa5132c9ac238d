package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testConfig(provider, baseURL string) configpkg.Config {
	cfg := configpkg.DefaultConfig()
	cfg.Provider = provider
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL + "/"
	cfg.Model = "test-model"
	cfg.MaxRetries = 0
	return configpkg.Normalize(cfg)
}

func testTools(t *testing.T) []tools.Spec {
	t.Helper()
	reg, err := tools.NewFileRegistry(tools.NewWorkspace(t.TempDir()), tools.Context{})
	require.NoError(t, err)
	return reg.DescribeAll()
}

func testHistory() []conversation.Message {
	return []conversation.Message{
		{Role: conversation.RoleUser, Content: "What files are there?"},
		{Role: conversation.RoleAssistant, Content: "Checking.", ToolCalls: []conversation.ToolCall{
			{ID: "call_1", Name: "list_files", Arguments: map[string]any{}},
			{ID: "call_2", Name: "read_file", Arguments: map[string]any{"filename": "a.txt"}},
		}},
		{Role: conversation.RoleTool, Content: "a.txt", ToolCallID: "call_1", Name: "list_files"},
		{Role: conversation.RoleTool, Content: "Error: file not found: a.txt", ToolCallID: "call_2", Name: "read_file", IsError: true},
	}
}

func TestOpenAIRequestShape(t *testing.T) {
	p := NewOpenAI(testConfig(configpkg.ProviderOpenAI, "http://unused"), nil)
	params := p.params(Request{System: "be helpful", Messages: testHistory(), Tools: testTools(t)})

	data, err := json.Marshal(params)
	require.NoError(t, err)
	body := gjson.ParseBytes(data)

	assert.Equal(t, "test-model", body.Get("model").String())
	assert.Equal(t, int64(4096), body.Get("max_tokens").Int())

	msgs := body.Get("messages").Array()
	require.Len(t, msgs, 5)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "be helpful", msgs[0].Get("content").String())
	assert.Equal(t, "user", msgs[1].Get("role").String())
	assert.Equal(t, "assistant", msgs[2].Get("role").String())
	assert.Equal(t, "call_2", msgs[2].Get("tool_calls.1.id").String())
	assert.Equal(t, "read_file", msgs[2].Get("tool_calls.1.function.name").String())
	assert.JSONEq(t, `{"filename":"a.txt"}`, msgs[2].Get("tool_calls.1.function.arguments").String())
	assert.Equal(t, "{}", msgs[2].Get("tool_calls.0.function.arguments").String())
	assert.Equal(t, "tool", msgs[3].Get("role").String())
	assert.Equal(t, "call_1", msgs[3].Get("tool_call_id").String())

	toolDefs := body.Get("tools").Array()
	require.Len(t, toolDefs, 5)
	assert.Equal(t, "read_file", toolDefs[0].Get("function.name").String())
	assert.Equal(t, "object", toolDefs[0].Get("function.parameters.type").String())
	assert.Equal(t, "filename", toolDefs[0].Get("function.parameters.required.0").String())
}

func TestOpenAICompleteParsesToolCalls(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
			"choices": [{
				"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": "",
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "write_file", "arguments": "{\"filename\":\"a.txt\",\"content\":\"hi\"}"}},
						{"id": "call_2", "type": "function", "function": {"name": "list_files", "arguments": ""}}
					]}
			}]
		}`)
	}))
	defer server.Close()

	p := NewOpenAI(testConfig(configpkg.ProviderOpenAI, server.URL), nil)
	turn, err := p.Complete(context.Background(), Request{Messages: testHistory()[:1], Tools: testTools(t)})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.True(t, strings.HasSuffix(gotPath, "/chat/completions"))
	assert.Equal(t, "tool_calls", turn.StopReason)
	require.Len(t, turn.ToolCalls, 2)
	assert.Equal(t, conversation.ToolCall{ID: "call_1", Name: "write_file", Arguments: map[string]any{"filename": "a.txt", "content": "hi"}}, turn.ToolCalls[0])
	assert.Equal(t, "list_files", turn.ToolCalls[1].Name)
	assert.Empty(t, turn.ToolCalls[1].Arguments)
}

func TestOpenAICompleteMalformedArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"tool_calls",
			"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"filename\":"}}]}}]}`)
	}))
	defer server.Close()

	p := NewOpenAI(testConfig(configpkg.ProviderOpenAI, server.URL), nil)
	_, err := p.Complete(context.Background(), Request{Messages: testHistory()[:1]})
	require.Error(t, err)
	assert.Equal(t, apperr.MalformedResponse, apperr.KindOf(err))
}

func TestOpenAIErrorIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	p := NewOpenAI(testConfig(configpkg.ProviderOpenAI, server.URL), nil)
	_, err := p.Complete(context.Background(), Request{Messages: testHistory()[:1]})
	require.Error(t, err)
	assert.Equal(t, apperr.ProviderError, apperr.KindOf(err))
}

func TestOpenAIRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After-Ms", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Done"}}]}`)
	}))
	defer server.Close()

	cfg := testConfig(configpkg.ProviderOpenAI, server.URL)
	cfg.MaxRetries = 2
	p := NewOpenAI(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	turn, err := p.Complete(ctx, Request{Messages: testHistory()[:1]})
	require.NoError(t, err)
	assert.Equal(t, "Done", turn.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIStreamForwardsTextAndAssemblesToolCalls(t *testing.T) {
	chunks := []string{
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Writ"}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"ing."}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"write_file","arguments":"{\"filename\":"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"b.txt\",\"content\":\"x\"}"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAI(testConfig(configpkg.ProviderOpenAI, server.URL), nil)
	var streamed []string
	turn, err := p.Stream(context.Background(), Request{Messages: testHistory()[:1]}, func(chunk string) error {
		streamed = append(streamed, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Writ", "ing."}, streamed)
	assert.Equal(t, "Writing.", turn.Text)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "call_9", turn.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"filename": "b.txt", "content": "x"}, turn.ToolCalls[0].Arguments)
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := testConfig(configpkg.ProviderAnthropic, "http://unused")
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, configpkg.ProviderAnthropic, p.Name())

	cfg.Provider = configpkg.ProviderOpenAI
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, configpkg.ProviderOpenAI, p.Name())

	cfg.APIKey = ""
	_, err = New(cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.Config, apperr.KindOf(err))
}
