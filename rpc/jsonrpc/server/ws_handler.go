package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unwalled/unwalled/libs/log"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
)

// WebSocket handler

const (
	defaultWSWriteChanCapacity = 100
	defaultWSWriteWait         = 10 * time.Second
	defaultWSReadWait          = 30 * time.Second
	defaultWSPingPeriod        = (defaultWSReadWait * 9) / 10
)

// WebsocketManager provides a WS handler for incoming connections and passes
// a map of functions along with any additional params to new connections.
// NOTE: The websocket path is defined externally, e.g. in node/node.go
type WebsocketManager struct {
	websocket.Upgrader

	funcMap       map[string]*RPCFunc
	logger        log.Logger
	wsConnOptions []func(*wsConnection)
}

// NewWebsocketManager returns a new WebsocketManager that passes a map of
// functions, connection options and logger to new WS connections.
func NewWebsocketManager(logger log.Logger, funcMap map[string]*RPCFunc, wsConnOptions ...func(*wsConnection)) *WebsocketManager {
	return &WebsocketManager{
		funcMap: funcMap,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: check the origin against the rpc cors-allowed-origins list
				return true
			},
		},
		logger:        logger,
		wsConnOptions: wsConnOptions,
	}
}

// WebsocketHandler upgrades the request/response (via http.Hijack) and starts
// the wsConnection.
func (wm *WebsocketManager) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	wsConn, err := wm.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already reported an HTTP error to the client.
		wm.logger.Error("Failed to upgrade connection", "err", err)
		return
	}
	defer func() {
		if err := wsConn.Close(); err != nil {
			wm.logger.Error("Failed to close connection", "err", err)
		}
	}()

	// register connection
	logger := wm.logger.With("remote", wsConn.RemoteAddr())
	conn := newWSConnection(wsConn, wm.funcMap, logger, wm.wsConnOptions...)
	wm.logger.Info("New websocket connection", "remote", conn.remoteAddr)

	// Run the connection until it ends, either because the client closed it or
	// the request was canceled.
	conn.run(r.Context())
	wm.logger.Info("Disconnected websocket connection", "remote", conn.remoteAddr)
}

// WebSocket connection

// A single websocket connection contains listener id, underlying ws
// connection, and the event switch for subscribing to events.
//
// In case of an error, the connection is stopped.
type wsConnection struct {
	remoteAddr string
	baseConn   *websocket.Conn
	// writeChan is never closed, to allow WriteRPCResponse() to fail.
	writeChan chan rpctypes.RPCResponse

	funcMap map[string]*RPCFunc
	logger  log.Logger

	// write channel capacity
	writeChanCapacity int

	// each write times out after this.
	writeWait time.Duration

	// Connection times out if we haven't received *anything* in this long, not
	// even a ping.
	readWait time.Duration

	// Send pings to server with this period. Must be less than readWait, but
	// greater than zero.
	pingPeriod time.Duration

	// Maximum message size.
	readLimit int64

	// callback which is called upon disconnect
	onDisconnect func(remoteAddr string)

	ctx    context.Context
	cancel context.CancelFunc
}

// newWSConnection wraps websocket.Conn.
//
// See the commentary on the func(*wsConnection) functions for a detailed
// description of how to configure ping period and pong wait time. NOTE: if the
// write buffer is full, pongs may be dropped, which may cause clients to
// disconnect. see https://github.com/gorilla/websocket/issues/97
func newWSConnection(
	baseConn *websocket.Conn,
	funcMap map[string]*RPCFunc,
	logger log.Logger,
	options ...func(*wsConnection),
) *wsConnection {
	wsc := &wsConnection{
		logger:            logger,
		remoteAddr:        baseConn.RemoteAddr().String(),
		baseConn:          baseConn,
		funcMap:           funcMap,
		writeWait:         defaultWSWriteWait,
		writeChanCapacity: defaultWSWriteChanCapacity,
		readWait:          defaultWSReadWait,
		pingPeriod:        defaultWSPingPeriod,
	}
	for _, option := range options {
		option(wsc)
	}
	wsc.baseConn.SetReadLimit(wsc.readLimit)
	return wsc
}

// OnDisconnect sets a callback which is used upon disconnect - not
// Goroutine-safe. Nop by default.
func OnDisconnect(onDisconnect func(remoteAddr string)) func(*wsConnection) {
	return func(wsc *wsConnection) {
		wsc.onDisconnect = onDisconnect
	}
}

// ReadLimit sets the maximum size for reading message.
// It should only be used in the constructor - not Goroutine-safe.
func ReadLimit(readLimit int64) func(*wsConnection) {
	return func(wsc *wsConnection) {
		wsc.readLimit = readLimit
	}
}

// PingPeriod sets the duration for sending websocket pings.
// It should only be used in the constructor - not Goroutine-safe.
func PingPeriod(pingPeriod time.Duration) func(*wsConnection) {
	return func(wsc *wsConnection) {
		wsc.pingPeriod = pingPeriod
	}
}

// run reads and writes messages until the connection fails or ctx ends.
func (wsc *wsConnection) run(ctx context.Context) {
	wsc.writeChan = make(chan rpctypes.RPCResponse, wsc.writeChanCapacity)
	wsc.ctx, wsc.cancel = context.WithCancel(ctx)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		wsc.writeRoutine(wsc.ctx)
		// stop callers blocked in WriteRPCResponse once nothing is writing
		wsc.cancel()
	}()

	wsc.readRoutine(wsc.ctx)
	wsc.cancel()
	<-writeDone

	if wsc.onDisconnect != nil {
		wsc.onDisconnect(wsc.remoteAddr)
	}
}

// GetRemoteAddr returns the remote address of the underlying connection.
// It implements WSRPCConnection
func (wsc *wsConnection) GetRemoteAddr() string {
	return wsc.remoteAddr
}

// WriteRPCResponse pushes a response to the writeChan, and blocks until it is
// accepted.
// It implements WSRPCConnection. It is Goroutine-safe.
func (wsc *wsConnection) WriteRPCResponse(ctx context.Context, resp rpctypes.RPCResponse) error {
	select {
	case <-wsc.ctx.Done():
		return errors.New("connection was stopped")
	case <-ctx.Done():
		return ctx.Err()
	case wsc.writeChan <- resp:
		return nil
	}
}

// TryWriteRPCResponse attempts to push a response to the writeChan, but does
// not block.
// It implements WSRPCConnection. It is Goroutine-safe
func (wsc *wsConnection) TryWriteRPCResponse(ctx context.Context, resp rpctypes.RPCResponse) bool {
	select {
	case <-wsc.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	case wsc.writeChan <- resp:
		return true
	default:
		return false
	}
}

// Context returns the connection's context.
// The context is canceled when the client's connection closes.
func (wsc *wsConnection) Context() context.Context {
	return wsc.ctx
}

// Read from the socket and subscribe to or unsubscribe from events
func (wsc *wsConnection) readRoutine(ctx context.Context) {
	// readRoutine will block until response is written or WS connection is closed
	writeCtx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("WSJSONRPC: %v", r)
			}
			req := rpctypes.NewRequest(uriReqID)
			wsc.logger.Error("Panic in WSJSONRPC handler", "err", err, "stack", string(debug.Stack()))
			if err := wsc.WriteRPCResponse(writeCtx,
				req.MakeErrorf(rpctypes.CodeInternalError, "Panic in handler: %v", err)); err != nil {
				wsc.logger.Error("error writing RPC response", "err", err)
			}
		}
	}()

	wsc.baseConn.SetPongHandler(func(m string) error {
		return wsc.baseConn.SetReadDeadline(time.Now().Add(wsc.readWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// reset deadline for every type of message (control or data)
		if err := wsc.baseConn.SetReadDeadline(time.Now().Add(wsc.readWait)); err != nil {
			wsc.logger.Error("failed to set read deadline", "err", err)
		}

		_, r, err := wsc.baseConn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				wsc.logger.Info("Client closed the connection")
			} else {
				wsc.logger.Error("Failed to read request", "err", err)
			}
			return
		}

		dec := json.NewDecoder(r)
		var request rpctypes.RPCRequest
		if err := dec.Decode(&request); err != nil {
			if err := wsc.WriteRPCResponse(writeCtx,
				request.MakeErrorf(rpctypes.CodeParseError, "unmarshaling request: %v", err)); err != nil {
				wsc.logger.Error("error writing RPC response", "err", err)
			}
			continue
		}

		// A Notification is a Request object without an "id" member.
		// The Server MUST NOT reply to a Notification, including those that are within a batch request.
		if request.IsNotification() {
			wsc.logger.Debug(
				"WSJSONRPC received a notification, skipping... (please send a non-empty ID if you want to call a method)",
				"req", request,
			)
			continue
		}

		// Now, fetch the RPCFunc and execute it.
		rpcFunc := wsc.funcMap[request.Method]
		if rpcFunc == nil {
			if err := wsc.WriteRPCResponse(writeCtx,
				request.MakeErrorf(rpctypes.CodeMethodNotFound, request.Method)); err != nil {
				wsc.logger.Error("error writing RPC response", "err", err)
			}
			continue
		}

		req := request
		fctx := rpctypes.WithCallInfo(wsc.Context(), &rpctypes.CallInfo{
			RPCRequest: &req,
			WSConn:     wsc,
		})
		if err := wsc.WriteRPCResponse(writeCtx, callResponse(fctx, req, rpcFunc)); err != nil {
			wsc.logger.Error("error writing RPC response", "err", err)
		}
	}
}

// receives on a write channel and writes out on the socket
func (wsc *wsConnection) writeRoutine(ctx context.Context) {
	pingTicker := time.NewTicker(wsc.pingPeriod)
	defer pingTicker.Stop()

	// https://github.com/gorilla/websocket/issues/97
	pongs := make(chan string, 1)
	wsc.baseConn.SetPingHandler(func(m string) error {
		select {
		case pongs <- m:
		default:
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			_ = wsc.writeMessageWithDeadline(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-pongs:
			err := wsc.writeMessageWithDeadline(websocket.PongMessage, []byte(m))
			if err != nil {
				wsc.logger.Info("Failed to write pong (client may disconnect)", "err", err)
			}
		case <-pingTicker.C:
			err := wsc.writeMessageWithDeadline(websocket.PingMessage, []byte{})
			if err != nil {
				wsc.logger.Error("Failed to write ping", "err", err)
				return
			}
		case msg := <-wsc.writeChan:
			data, err := json.Marshal(msg)
			if err != nil {
				wsc.logger.Error("Failed to marshal RPCResponse to JSON", "msg", msg, "err", err)
				continue
			}
			if err = wsc.writeMessageWithDeadline(websocket.TextMessage, data); err != nil {
				wsc.logger.Error("Failed to write response", "msg", msg, "err", err)
				return
			}
		}
	}
}

// All writes to the websocket must (re)set the write deadline.
// If some writes don't set it while others do, they may timeout incorrectly.
func (wsc *wsConnection) writeMessageWithDeadline(msgType int, msg []byte) error {
	if err := wsc.baseConn.SetWriteDeadline(time.Now().Add(wsc.writeWait)); err != nil {
		return err
	}
	return wsc.baseConn.WriteMessage(msgType, msg)
}
