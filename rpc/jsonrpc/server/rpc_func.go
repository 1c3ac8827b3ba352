package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/unwalled/unwalled/libs/log"
)

// RegisterRPCFuncs adds a route for each function in the funcMap, as well as
// general jsonrpc handlers for all functions. Websocket-only functions are
// skipped here; they are served by a WebsocketManager.
func RegisterRPCFuncs(mux *http.ServeMux, funcMap map[string]*RPCFunc, logger log.Logger) {
	// HTTP endpoints
	for funcName, rpcFunc := range funcMap {
		if rpcFunc.ws {
			continue
		}
		mux.HandleFunc("/"+funcName, makeHTTPHandler(rpcFunc, logger))
	}

	// JSONRPC endpoints
	mux.HandleFunc("/", handleInvalidJSONRPCPaths(makeJSONRPCHandler(funcMap, logger)))
}

// RPCFunc is a typed RPC method bound to its JSON decoding.
type RPCFunc struct {
	call     func(ctx context.Context, params json.RawMessage) (interface{}, error)
	argNames []string // names of the request fields, in positional order
	ws       bool     // websocket only
}

// NewRPCFunc wraps f, which takes its arguments as a request struct. The
// argNames give the JSON field names of the request in the order they are
// accepted as positional parameters.
func NewRPCFunc[Req any, Res any](f func(context.Context, *Req) (Res, error), argNames ...string) *RPCFunc {
	rf := &RPCFunc{argNames: argNames}
	rf.call = func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req := new(Req)
		if !isEmptyParams(params) {
			bits, err := rf.adjustParams(params)
			if err != nil {
				return nil, invalidParams(err)
			}
			if err := json.Unmarshal(bits, req); err != nil {
				return nil, invalidParams(err)
			}
		}
		return f(ctx, req)
	}
	return rf
}

// NewRPCFuncNoArgs wraps f, which takes no arguments.
func NewRPCFuncNoArgs[Res any](f func(context.Context) (Res, error)) *RPCFunc {
	return &RPCFunc{
		call: func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			if !isEmptyParams(params) && !bytes.Equal(params, []byte("{}")) && !bytes.Equal(params, []byte("[]")) {
				return nil, invalidParams(errors.New("method does not take parameters"))
			}
			return f(ctx)
		},
	}
}

// NewWSRPCFunc wraps f for use over websockets only.
func NewWSRPCFunc[Req any, Res any](f func(context.Context, *Req) (Res, error), argNames ...string) *RPCFunc {
	rf := NewRPCFunc(f, argNames...)
	rf.ws = true
	return rf
}

// Call invokes the function with JSON-encoded params, which may be an object
// or an array of positional values.
func (rf *RPCFunc) Call(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return rf.call(ctx, params)
}

// adjustParams checks whether data is encoded as a JSON array, and if so
// adjusts the values to match the corresponding parameter names.
func (rf *RPCFunc) adjustParams(data []byte) (json.RawMessage, error) {
	base := bytes.TrimSpace(data)
	if bytes.HasPrefix(base, []byte("[")) {
		var args []json.RawMessage
		if err := json.Unmarshal(base, &args); err != nil {
			return nil, err
		} else if len(args) > len(rf.argNames) {
			return nil, fmt.Errorf("got %d arguments, want at most %d", len(args), len(rf.argNames))
		}
		m := make(map[string]json.RawMessage)
		for i, arg := range args {
			m[rf.argNames[i]] = arg
		}
		return json.Marshal(m)
	} else if !bytes.HasPrefix(base, []byte("{")) {
		return nil, errors.New("parameters must be an object or an array")
	}
	return base, nil
}

func isEmptyParams(params json.RawMessage) bool {
	p := bytes.TrimSpace(params)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

// paramsError marks a failure to decode parameters, as opposed to an error
// returned by the function itself.
type paramsError struct{ err error }

func (e paramsError) Error() string { return e.err.Error() }
func (e paramsError) Unwrap() error { return e.err }

func invalidParams(err error) error { return paramsError{err} }
