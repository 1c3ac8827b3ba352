package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/unwalled/unwalled/libs/log"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
)

// uriReqID is a placeholder ID used for GET requests, which do not receive a
// JSON-RPC request ID from the caller.
const uriReqID = -1

// convert from a function name to the http handler
func makeHTTPHandler(rpcFunc *RPCFunc, logger log.Logger) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		params, err := parseURLParams(rpcFunc.argNames, req)
		if err != nil {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, err.Error())
			return
		}
		jreq := rpctypes.NewRequest(uriReqID)
		jreq.Params = params
		ctx := rpctypes.WithCallInfo(req.Context(), &rpctypes.CallInfo{
			RPCRequest:  &jreq,
			HTTPRequest: req,
		})
		writeHTTPResponse(w, logger, callResponse(ctx, jreq, rpcFunc))
	}
}

// parseURLParams turns the query or form values named by argNames into a
// JSON object. Numbers, booleans and "double quoted" strings are passed
// through as JSON; any other value is taken as a bare string.
func parseURLParams(argNames []string, req *http.Request) (json.RawMessage, error) {
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid HTTP request: %w", err)
	}

	params := make(map[string]json.RawMessage)
	for _, name := range argNames {
		if !req.Form.Has(name) {
			continue
		}
		v := req.Form.Get(name)
		switch {
		case isQuotedString(v):
			var dec string
			if err := json.Unmarshal([]byte(v), &dec); err != nil {
				return nil, fmt.Errorf("invalid quoted string: %w", err)
			}
			params[name] = json.RawMessage(v)
		case isNumber(v), v == "true", v == "false":
			params[name] = json.RawMessage(v)
		default:
			bz, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			params[name] = bz
		}
	}
	if len(params) == 0 {
		return nil, nil
	}
	return json.Marshal(params)
}

// isQuotedString reports whether s is enclosed in double quotes.
func isQuotedString(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

// isNumber reports whether s is a base-10 integer.
func isNumber(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return true
	}
	_, err = strconv.ParseUint(s, 10, 64)
	return err == nil
}
