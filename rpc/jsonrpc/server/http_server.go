package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/net/netutil"

	"github.com/unwalled/unwalled/libs/log"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
)

// Config is a RPC server configuration.
type Config struct {
	// The maximum number of connections that will be accepted by the listener.
	// See https://godoc.org/golang.org/x/net/netutil#LimitListener
	MaxOpenConnections int

	// Used to set the HTTP server's per-request read timeout.
	// See https://godoc.org/net/http#Server.ReadTimeout
	ReadTimeout time.Duration

	// Used to set the HTTP server's per-request write timeout.  Note that this
	// affects ALL methods on the server, so it should not be set too low.
	// See https://godoc.org/net/http#Server.WriteTimeout
	WriteTimeout time.Duration

	// MaxBodyBytes controls the maximum number of bytes the
	// server will read parsing the request body.
	MaxBodyBytes int64

	// MaxHeaderBytes controls the maximum number of bytes the
	// server will read parsing the request header's keys and values,
	// including the request line.
	MaxHeaderBytes int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConnections: 0, // unlimited
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxBodyBytes:       int64(1000000), // 1MB
		MaxHeaderBytes:     1 << 20,        // same as the net/http default
	}
}

// Serve creates a http.Server and calls Serve with the given listener. It
// wraps handler to recover panics and limit the request body size. Serve
// returns when ctx ends or the listener fails; when ctx ends, the server is
// shut down gracefully.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger, config *Config) error {
	logger.Info("Starting RPC HTTP server", "listenAddr", listener.Addr())
	h := recoverAndLogHandler(maxBytesHandler(handler, config.MaxBodyBytes), logger)
	s := &http.Server{
		Handler:        h,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(listener) }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
		<-errc
		logger.Info("RPC HTTP server stopped")
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Listen starts a new net.Listener on the given address. The address must be
// fully formed, with a tcp:// or unix:// prefix. It returns an error if the
// address is invalid or the call to Listen() fails.
func Listen(addr string, maxOpenConnections int) (listener net.Listener, err error) {
	parts := strings.SplitN(addr, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf(
			"invalid listening address %s (use fully formed addresses, including the tcp:// or unix:// prefix)",
			addr,
		)
	}
	proto, addr := parts[0], parts[1]
	listener, err = net.Listen(proto, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %v", addr, err)
	}
	if maxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, maxOpenConnections)
	}

	return listener, nil
}

// writeHTTPResponse writes a JSON-RPC response to w. If rsp encodes an error,
// the response body is its error object; otherwise its responses is the result.
//
// Unless there is an error encoding the response, the status is 200 OK.
func writeHTTPResponse(w http.ResponseWriter, logger log.Logger, rsp rpctypes.RPCResponse) {
	var body []byte
	var err error
	if rsp.Error != nil {
		body, err = json.Marshal(rsp.Error)
	} else {
		body = rsp.Result
	}
	if err != nil {
		logger.Error("error encoding RPC response", "err", err)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeRPCResponse writes one or more JSON-RPC responses to w. A single
// response is encoded as an object, otherwise the response is sent as a
// batch (array) of response objects.
//
// Unless there is an error encoding the responses, the status is 200 OK.
func writeRPCResponse(w http.ResponseWriter, logger log.Logger, rsps ...rpctypes.RPCResponse) {
	var body []byte
	var err error
	if len(rsps) == 1 {
		body, err = json.Marshal(rsps[0])
	} else {
		body, err = json.Marshal(rsps)
	}
	if err != nil {
		logger.Error("error encoding RPC response", "err", err)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

//-----------------------------------------------------------------------------

// recoverAndLogHandler wraps an HTTP handler, adding error logging. If the
// inner handler panics, the wrapper recovers, logs, sends an HTTP 500 error
// response to the client.
func recoverAndLogHandler(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Capture the HTTP status written by the handler.
		var httpStatus int
		rww := newStatusWriter(w, &httpStatus)

		// Recover panics from inside handler and try to send the client
		// 500 Internal server error. If the handler panicked after already
		// sending a (partial) response, this is a no-op.
		defer func() {
			if v := recover(); v != nil {
				var err error
				switch e := v.(type) {
				case error:
					err = e
				case string:
					err = errors.New(e)
				case fmt.Stringer:
					err = errors.New(e.String())
				default:
					err = fmt.Errorf("panic with value %v", v)
				}

				logger.Error("Panic in RPC HTTP handler",
					"err", err, "stack", string(debug.Stack()))
				writeRPCResponse(rww, logger, rpctypes.RPCRequest{}.MakeErrorf(
					rpctypes.CodeInternalError, "panic in handler: %v", err))
			}
		}()

		// Log timing and response information from the handler.
		begin := time.Now()
		defer func() {
			elapsed := time.Since(begin)
			logger.Debug("served RPC HTTP response",
				"method", r.Method,
				"url", r.URL,
				"status", httpStatus,
				"duration-sec", elapsed.Seconds(),
				"remoteAddr", r.RemoteAddr,
			)
		}()

		rww.Header().Set("X-Server-Time", fmt.Sprintf("%v", begin.Unix()))
		handler.ServeHTTP(rww, r)
	})
}

// newStatusWriter wraps an http.ResponseWriter to capture the HTTP status code
// in *code.
func newStatusWriter(w http.ResponseWriter, code *int) statusWriter {
	return statusWriter{ResponseWriter: w, code: code}
}

type statusWriter struct {
	http.ResponseWriter

	code *int
}

// WriteHeader implements part of http.ResponseWriter. It delegates to the
// wrapped writer, and as a side effect captures the written code.
//
// Note that if a request does not explicitly call WriteHeader, the code will
// not be updated.
func (w statusWriter) WriteHeader(code int) {
	*w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for websocket upgrades.
func (w statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// maxBytesHandler wraps an http.Handler to limit the size of the request
// body to the specified size.
func maxBytesHandler(h http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		h.ServeHTTP(w, r)
	})
}
