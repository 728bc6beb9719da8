// Package rpc is a JSON-RPC 2.0 dispatcher with typed, validated parameters
// and the MCP tool layer on top of it.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"

	"github.com/go-playground/validator"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// InvalidParams builds a -32602 error.
func InvalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// HandlerFunc handles one decoded request. Returning an *Error sends it as
// is; any other error becomes an internal error.
type HandlerFunc func(ctx context.Context, creds common.Credentials, params json.RawMessage) (any, error)

// Registry maps method names to handlers.
type Registry struct {
	methods  map[string]HandlerFunc
	validate *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{
		methods:  make(map[string]HandlerFunc),
		validate: validator.New(),
	}
}

// Register adds a method whose params decode into P. Params are validated
// with `validate` struct tags before fn runs; absent params decode into the
// zero P.
func Register[P any](r *Registry, method string, fn func(ctx context.Context, creds common.Credentials, p P) (any, error)) {
	r.methods[method] = func(ctx context.Context, creds common.Credentials, raw json.RawMessage) (any, error) {
		p, err := decodeParams[P](r.validate, raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, creds, p)
	}
}

func decodeParams[P any](v *validator.Validate, raw json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, InvalidParams("Invalid params: %v", err)
		}
	}
	if t := reflect.TypeOf(p); t != nil && t.Kind() == reflect.Struct {
		if err := v.Struct(p); err != nil {
			return p, InvalidParams("Invalid params: %v", err)
		}
	}
	return p, nil
}

// Methods returns the registered method names.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

// Handle decodes and dispatches one request body. It returns nil for
// notifications.
func (r *Registry) Handle(ctx context.Context, creds common.Credentials, body []byte) *Response {
	if !json.Valid(body) {
		r.observe("", CodeParseError)
		return errorResponse(nil, &Error{Code: CodeParseError, Message: "Parse error"})
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil || req.JSONRPC != Version || req.Method == "" {
		r.observe("", CodeInvalidRequest)
		return errorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "Invalid Request"})
	}

	fn, ok := r.methods[req.Method]
	if !ok {
		r.observe(req.Method, CodeMethodNotFound)
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, &Error{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method '%s' not found", req.Method),
		})
	}

	result, err := fn(ctx, creds, req.Params)
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			logger.Error("[RPC] Method failed", "method", req.Method, "err", err)
			rpcErr = &Error{Code: CodeInternalError, Message: "Internal error"}
		}
		r.observe(req.Method, rpcErr.Code)
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, rpcErr)
	}

	r.observe(req.Method, 0)
	if req.IsNotification() {
		return nil
	}
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: result}
}

func (r *Registry) observe(method string, code int) {
	if method == "" {
		method = "invalid"
	} else if _, ok := r.methods[method]; !ok {
		method = "unknown"
	}
	metrics.Default.RPCCallsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: Version, ID: id, Error: err}
}
