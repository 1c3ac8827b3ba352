package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/unwalled/unwalled/libs/log"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
)

// HTTP + JSON handler

// jsonrpc calls grab the given method's function info and run it
func makeJSONRPCHandler(funcMap map[string]*RPCFunc, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, hreq *http.Request) {
		b, err := io.ReadAll(hreq.Body)
		if err != nil {
			writeRPCResponse(w, logger, rpctypes.RPCRequest{}.MakeErrorf(
				rpctypes.CodeInvalidRequest, "reading request body: %v", err))
			return
		}

		// if its an empty request (like from a browser), just display a list of
		// functions
		if len(b) == 0 {
			writeListOfEndpoints(w, hreq, funcMap)
			return
		}

		requests, err := parseRequests(b)
		if err != nil {
			writeRPCResponse(w, logger, rpctypes.RPCRequest{}.MakeErrorf(
				rpctypes.CodeParseError, "decoding request: %v", err))
			return
		}

		var responses []rpctypes.RPCResponse
		for _, req := range requests {
			// Ignore notifications, which this service does not support.
			if req.IsNotification() {
				logger.Debug("Ignoring notification", "req", req)
				continue
			}

			rpcFunc, ok := funcMap[req.Method]
			if !ok || rpcFunc.ws {
				responses = append(responses, req.MakeErrorf(rpctypes.CodeMethodNotFound, req.Method))
				continue
			}

			req := req
			ctx := rpctypes.WithCallInfo(hreq.Context(), &rpctypes.CallInfo{
				RPCRequest:  &req,
				HTTPRequest: hreq,
			})
			responses = append(responses, callResponse(ctx, req, rpcFunc))
		}

		if len(responses) == 0 {
			return
		}
		writeRPCResponse(w, logger, responses...)
	}
}

func handleInvalidJSONRPCPaths(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Since the pattern "/" matches all paths not matched by other registered patterns,
		//  we check whether the path is indeed "/", otherwise return a 404 error
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		next(w, r)
	}
}

// parseRequests parses a JSON-RPC request or request batch from data.
func parseRequests(data []byte) ([]rpctypes.RPCRequest, error) {
	var reqs []rpctypes.RPCRequest
	var err error

	isArray := bytes.HasPrefix(bytes.TrimSpace(data), []byte("["))
	if isArray {
		err = json.Unmarshal(data, &reqs)
	} else {
		reqs = append(reqs, rpctypes.RPCRequest{})
		err = json.Unmarshal(data, &reqs[0])
	}
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// callResponse runs rpcFunc and turns its outcome into a response to req.
func callResponse(ctx context.Context, req rpctypes.RPCRequest, rpcFunc *RPCFunc) rpctypes.RPCResponse {
	result, err := rpcFunc.Call(ctx, req.Params)
	var perr paramsError
	switch {
	case errors.As(err, &perr):
		return req.MakeErrorf(rpctypes.CodeInvalidParams, "converting JSON parameters: %v", perr.err)
	case err != nil:
		return req.MakeError(err)
	default:
		return req.MakeResponse(result)
	}
}

// writes a list of available rpc endpoints as an html page
func writeListOfEndpoints(w http.ResponseWriter, r *http.Request, funcMap map[string]*RPCFunc) {
	var noArgs, hasArgs []string
	for name, rf := range funcMap {
		if rf.ws {
			continue
		}
		base := fmt.Sprintf("//%s/%s", r.Host, name)
		if len(rf.argNames) == 0 {
			noArgs = append(noArgs, base)
		} else {
			query := append([]string(nil), rf.argNames...)
			for i, arg := range query {
				query[i] = arg + "=_"
			}
			hasArgs = append(hasArgs, base+"?"+strings.Join(query, "&"))
		}
	}
	sort.Strings(noArgs)
	sort.Strings(hasArgs)

	w.Header().Set("Content-Type", "text/html")
	_ = listOfEndpoints.Execute(w, map[string][]string{
		"NoArgs":  noArgs,
		"HasArgs": hasArgs,
	})
}

var listOfEndpoints = template.Must(template.New("list").Parse(`<html>
<head><title>List of RPC Endpoints</title></head>
<body>

<h1>Available RPC endpoints:</h1>

{{if .NoArgs}}
<hr />
<h2>Endpoints with no arguments:</h2>

<ul>
{{range $link := .NoArgs}}  <li><a href="{{$link}}">{{$link}}</a></li>
{{end -}}
</ul>{{end}}

{{if .HasArgs}}
<hr />
<h2>Endpoints that require arguments:</h2>

<ul>
{{range $link := .HasArgs}}  <li><a href="{{$link}}">{{$link}}</a></li>
{{end -}}
</ul>{{end}}

</body></html>`))
