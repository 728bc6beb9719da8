package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/prospect/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"min=0,max=100"`
}

var testCreds = common.Credentials{KeyID: "k", KeySecret: "s"}

func newTestRegistry(calls *int) *Registry {
	r := NewRegistry()
	Register(r, "echo", func(_ context.Context, creds common.Credentials, p echoParams) (any, error) {
		*calls++
		return map[string]any{"query": p.Query, "limit": p.Limit, "key": creds.KeyID}, nil
	})
	Register(r, "fail", func(context.Context, common.Credentials, struct{}) (any, error) {
		*calls++
		return nil, errors.New("database exploded")
	})
	Register(r, "typed_fail", func(context.Context, common.Credentials, struct{}) (any, error) {
		return nil, &Error{Code: -32001, Message: "Quota exceeded"}
	})
	return r
}

func decode(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	require.NotNil(t, resp)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleSuccess(t *testing.T) {
	calls := 0
	r := newTestRegistry(&calls)

	resp := r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","id":7,"method":"echo","params":{"query":"acme","limit":5}}`))
	out := decode(t, resp)

	assert.Equal(t, "2.0", out["jsonrpc"])
	assert.Equal(t, float64(7), out["id"])
	assert.NotContains(t, out, "error")
	assert.Equal(t, map[string]any{"query": "acme", "limit": float64(5), "key": "k"}, out["result"])
	assert.Equal(t, 1, calls)
}

func TestHandleErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc":"2.0","id":1,`, CodeParseError},
		{"missing version", `{"id":1,"method":"echo"}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"echo"}]`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, CodeMethodNotFound},
		{"missing required param", `{"jsonrpc":"2.0","id":1,"method":"echo","params":{}}`, CodeInvalidParams},
		{"param out of range", `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"query":"a","limit":5000}}`, CodeInvalidParams},
		{"wrong param type", `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"query":42}}`, CodeInvalidParams},
		{"handler failure", `{"jsonrpc":"2.0","id":1,"method":"fail"}`, CodeInternalError},
		{"typed handler failure", `{"jsonrpc":"2.0","id":1,"method":"typed_fail"}`, -32001},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			r := newTestRegistry(&calls)
			out := decode(t, r.Handle(context.Background(), testCreds, []byte(tc.body)))

			errObj, ok := out["error"].(map[string]any)
			require.True(t, ok, "expected error object, got %v", out)
			assert.Equal(t, float64(tc.code), errObj["code"])
			assert.NotContains(t, out, "result")
			if tc.code == CodeInvalidParams {
				assert.Equal(t, 0, calls, "handler must not run on invalid params")
			}
		})
	}
}

func TestHandleErrorKeepsNullID(t *testing.T) {
	r := NewRegistry()
	out := decode(t, r.Handle(context.Background(), testCreds, []byte(`not json`)))
	assert.Contains(t, out, "id")
	assert.Nil(t, out["id"])
}

func TestHandleNotification(t *testing.T) {
	calls := 0
	r := newTestRegistry(&calls)

	assert.Nil(t, r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","method":"echo","params":{"query":"a"}}`)))
	assert.Nil(t, r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","method":"unknown/notification"}`)))
	assert.Equal(t, 1, calls)
}

type lookupArgs struct {
	Query string `json:"query" validate:"required" jsonschema:"description=Company name"`
}

func newMCP(calls *int) *Registry {
	tools := NewTools()
	AddTool(tools, "lookup_company", "Find companies by name", func(_ context.Context, _ common.Credentials, p lookupArgs) (any, error) {
		*calls++
		if p.Query == "boom" {
			return nil, common.NewUpstreamError("Status 500", nil)
		}
		return map[string]any{"ids": []int{1, 2}}, nil
	})

	r := NewRegistry()
	RegisterMCP(r, ServerInfo{Name: "prospect", Version: "test"}, tools, nil)
	return r
}

func TestMCPInitialize(t *testing.T) {
	r := newMCP(new(int))
	out := decode(t, r.Handle(context.Background(), testCreds,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"cli"}}}`)))

	result := out["result"].(map[string]any)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Equal(t, map[string]any{"name": "prospect", "version": "test"}, result["serverInfo"])

	assert.Nil(t, r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
}

func TestMCPToolsList(t *testing.T) {
	r := newMCP(new(int))
	out := decode(t, r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))

	tools := out["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "lookup_company", tool["name"])

	schema := tool["inputSchema"].(map[string]any)
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "query")
}

func TestMCPToolsCall(t *testing.T) {
	calls := 0
	r := newMCP(&calls)

	out := decode(t, r.Handle(context.Background(), testCreds,
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"lookup_company","arguments":{"query":"acme"}}}`)))
	result := out["result"].(map[string]any)
	content := result["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", content["type"])
	assert.JSONEq(t, `{"ids":[1,2]}`, content["text"].(string))
	assert.NotContains(t, result, "isError")

	out = decode(t, r.Handle(context.Background(), testCreds,
		[]byte(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"lookup_company","arguments":{"query":"boom"}}}`)))
	result = out["result"].(map[string]any)
	assert.Equal(t, true, result["isError"])

	out = decode(t, r.Handle(context.Background(), testCreds,
		[]byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)))
	assert.Equal(t, float64(CodeInvalidParams), out["error"].(map[string]any)["code"])

	out = decode(t, r.Handle(context.Background(), testCreds,
		[]byte(`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"lookup_company","arguments":{}}}`)))
	assert.Equal(t, float64(CodeInvalidParams), out["error"].(map[string]any)["code"])

	assert.Equal(t, 2, calls)
}

func TestMCPPromptsList(t *testing.T) {
	r := newMCP(new(int))
	out := decode(t, r.Handle(context.Background(), testCreds, []byte(`{"jsonrpc":"2.0","id":9,"method":"prompts/list"}`)))
	assert.Equal(t, map[string]any{"prompts": []any{}}, out["result"])
}
