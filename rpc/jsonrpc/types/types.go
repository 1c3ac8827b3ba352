package types

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes defined by JSON-RPC 2.0.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

var errorMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
	CodeServerError:    "Server error",
}

//----------------------------------------
// REQUEST

// RPCRequest is a JSON-RPC 2.0 request. The ID is kept as raw JSON: a string,
// a number, or absent for a notification.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON checks that the ID, if present, is a string or a number.
func (req *RPCRequest) UnmarshalJSON(data []byte) error {
	type plain RPCRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := validateID(p.ID); err != nil {
		return err
	}
	*req = RPCRequest(p)
	return nil
}

func validateID(id json.RawMessage) error {
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return nil
	}
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s)
	default:
		if _, err := strconv.ParseFloat(string(id), 64); err != nil {
			return fmt.Errorf("json-rpc ID (%s) is neither a string nor a number", id)
		}
		return nil
	}
}

// NewRequest returns an empty request with the given integer ID.
func NewRequest(id int) RPCRequest {
	return RPCRequest{JSONRPC: "2.0", ID: json.RawMessage(strconv.Itoa(id))}
}

// ParamsToRequest constructs a new RPCRequest with the given ID, method, and
// parameters.
func ParamsToRequest(id int, method string, params interface{}) (RPCRequest, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return RPCRequest{}, err
	}
	req := NewRequest(id)
	req.Method = method
	req.Params = payload
	return req, nil
}

// IsNotification reports whether req is a notification, one without an ID.
func (req RPCRequest) IsNotification() bool {
	return len(req.ID) == 0 || bytes.Equal(req.ID, []byte("null"))
}

func (req RPCRequest) String() string {
	return fmt.Sprintf("RPCRequest{%s %s/%s}", req.ID, req.Method, req.Params)
}

// MakeResponse constructs a success response to req with the given result. If
// there is an error marshaling result to JSON, it returns an error response.
func (req RPCRequest) MakeResponse(result interface{}) RPCResponse {
	data, err := json.Marshal(result)
	if err != nil {
		return req.MakeError(fmt.Errorf("marshaling result: %w", err))
	}
	return RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: data}
}

// MakeErrorf constructs an error response to req with the given code and a
// message constructed by formatting msg with args.
func (req RPCRequest) MakeErrorf(code int, msg string, args ...interface{}) RPCResponse {
	return RPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &RPCError{
			Code:    code,
			Message: errorMessages[code],
			Data:    fmt.Sprintf(msg, args...),
		},
	}
}

// MakeError constructs an error response to req from the given error value.
// An *RPCError is passed through unchanged, any other error becomes a server
// error.
func (req RPCRequest) MakeError(err error) RPCResponse {
	if err == nil {
		panic("cannot construct an error response for nil")
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return RPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return req.MakeErrorf(CodeInternalError, "%v", err)
	}
	return req.MakeErrorf(CodeServerError, "%v", err)
}

//----------------------------------------
// RESPONSE

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (err RPCError) Error() string {
	const baseFormat = "RPC error %v - %s"
	if err.Data != "" {
		return fmt.Sprintf(baseFormat+": %s", err.Code, err.Message, err.Data)
	}
	return fmt.Sprintf(baseFormat, err.Code, err.Message)
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (resp RPCResponse) String() string {
	if resp.Error == nil {
		return fmt.Sprintf("RPCResponse{%s %s}", resp.ID, resp.Result)
	}
	return fmt.Sprintf("RPCResponse{%s %v}", resp.ID, resp.Error)
}

//----------------------------------------

// WSRPCConnection represents a websocket connection.
type WSRPCConnection interface {
	// GetRemoteAddr returns a remote address of the connection.
	GetRemoteAddr() string
	// WriteRPCResponse writes the response onto connection (BLOCKING).
	WriteRPCResponse(context.Context, RPCResponse) error
	// TryWriteRPCResponse tries to write the response onto connection (NON-BLOCKING).
	TryWriteRPCResponse(context.Context, RPCResponse) bool
	// Context returns the connection's context.
	Context() context.Context
}

// CallInfo carries JSON-RPC request metadata for RPC functions invoked via
// JSON-RPC. It can be recovered from the context with GetCallInfo.
type CallInfo struct {
	RPCRequest  *RPCRequest     // non-nil for requests via HTTP or websocket
	HTTPRequest *http.Request   // non-nil for requests via HTTP
	WSConn      WSRPCConnection // non-nil for requests via websocket
}

type callInfoKey struct{}

// WithCallInfo returns a child context of ctx with the ci attached.
func WithCallInfo(ctx context.Context, ci *CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, ci)
}

// GetCallInfo returns the CallInfo record attached to ctx, or nil if ctx does
// not contain a call record.
func GetCallInfo(ctx context.Context) *CallInfo {
	if v := ctx.Value(callInfoKey{}); v != nil {
		return v.(*CallInfo)
	}
	return nil
}

// RemoteAddr returns the remote address (usually a string "IP:port").  If
// neither HTTPRequest nor WSConn is set, an empty string is returned.
func (ci *CallInfo) RemoteAddr() string {
	if ci == nil {
		return ""
	} else if ci.HTTPRequest != nil {
		return ci.HTTPRequest.RemoteAddr
	} else if ci.WSConn != nil {
		return ci.WSConn.GetRemoteAddr()
	}
	return ""
}
