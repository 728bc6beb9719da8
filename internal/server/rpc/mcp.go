package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"

	"github.com/go-playground/validator"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool is an MCP tool. InputSchema is generated from the tool's parameter
// type.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`

	call func(ctx context.Context, creds common.Credentials, args json.RawMessage) (any, error)
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the MCP tools/call result. Failures of the tool itself are
// reported with IsError rather than as JSON-RPC errors.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Tools is an ordered set of tools.
type Tools struct {
	list     []*Tool
	byName   map[string]*Tool
	validate *validator.Validate
}

func NewTools() *Tools {
	return &Tools{byName: make(map[string]*Tool), validate: validator.New()}
}

// AddTool registers a tool whose arguments decode into P.
func AddTool[P any](t *Tools, name, description string, fn func(ctx context.Context, creds common.Credentials, p P) (any, error)) {
	var zero P
	tool := &Tool{
		Name:        name,
		Description: description,
		InputSchema: ai.GenerateSchema(zero),
		call: func(ctx context.Context, creds common.Credentials, raw json.RawMessage) (any, error) {
			p, err := decodeParams[P](t.validate, raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, creds, p)
		},
	}
	if _, ok := t.byName[name]; !ok {
		t.list = append(t.list, tool)
	}
	t.byName[name] = tool
}

func (t *Tools) List() []*Tool {
	return t.list
}

// Call runs a tool. Unknown tools and invalid arguments are JSON-RPC
// errors; everything else is a ToolResult.
func (t *Tools) Call(ctx context.Context, creds common.Credentials, name string, args json.RawMessage) (*ToolResult, error) {
	tool, ok := t.byName[name]
	if !ok {
		return nil, InvalidParams("Unknown tool: %s", name)
	}

	out, err := tool.call(ctx, creds, args)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		logger.Warn("[MCP] Tool failed", "tool", name, "err", err)
		return &ToolResult{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}, nil
	}

	text, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(text)}}}, nil
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      map[string]any `json:"clientInfo"`
}

type callParams struct {
	Name      string          `json:"name" validate:"required"`
	Arguments json.RawMessage `json:"arguments"`
}

// RegisterMCP adds the MCP lifecycle, tool and prompt methods to r.
func RegisterMCP(r *Registry, info ServerInfo, tools *Tools, prompts []Prompt) {
	if prompts == nil {
		prompts = []Prompt{}
	}

	Register(r, "initialize", func(_ context.Context, _ common.Credentials, p initializeParams) (any, error) {
		logger.Debug("[MCP] Client initialized", "client", p.ClientInfo, "protocol", p.ProtocolVersion)
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools":   map[string]any{},
				"prompts": map[string]any{},
			},
			"serverInfo": info,
		}, nil
	})
	Register(r, "notifications/initialized", func(context.Context, common.Credentials, struct{}) (any, error) {
		return nil, nil
	})
	Register(r, "ping", func(context.Context, common.Credentials, struct{}) (any, error) {
		return struct{}{}, nil
	})
	Register(r, "tools/list", func(context.Context, common.Credentials, struct{}) (any, error) {
		return map[string]any{"tools": tools.List()}, nil
	})
	Register(r, "tools/call", func(ctx context.Context, creds common.Credentials, p callParams) (any, error) {
		return tools.Call(ctx, creds, p.Name, p.Arguments)
	})
	Register(r, "prompts/list", func(context.Context, common.Credentials, struct{}) (any, error) {
		return map[string]any{"prompts": prompts}, nil
	})
}
