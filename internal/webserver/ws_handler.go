package webserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

const (
	authTimeout    = 10 * time.Second
	wsWriteTimeout = 15 * time.Second
)

// handleWebSocket upgrades the connection and runs the auth handshake.
// With a password configured the client's first frame must be an auth
// message within the timeout; without one the client is authenticated
// immediately and its first frame is ordinary traffic. After a
// successful handshake the connection joins the hub and stays until the
// read loop fails.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()

	if srv.password != "" {
		if !srv.authenticate(ctx, ws) {
			return
		}
	}

	ack, err := protocol.Encode(protocol.MsgAuth, protocol.AuthAck{Success: true})
	if err == nil {
		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = ws.Write(writeCtx, websocket.MessageText, ack)
		cancel()
	}
	if err != nil {
		logging.Logger.Debug("auth ack write failed", "error", err)
		return
	}

	srv.hub.Register(ws)
	defer srv.hub.Unregister(ws)

	// Reads keep the connection's liveness visible; clients only send
	// pings after the handshake, everything else is ignored.
	for {
		_, _, err := ws.Read(ctx)
		if err != nil {
			return
		}
	}
}

// authenticate reads the client's auth frame and verifies the password.
// Any failure sends a terminal auth ack with success=false.
func (srv *Server) authenticate(ctx context.Context, ws *websocket.Conn) bool {
	readCtx, cancel := context.WithTimeout(ctx, authTimeout)
	_, raw, err := ws.Read(readCtx)
	cancel()
	if err != nil {
		return false
	}

	ok := false
	if env, err := protocol.DecodeEnvelope(raw); err == nil && env.Type == protocol.MsgAuth {
		if req, err := protocol.DecodeData[protocol.AuthRequest](env); err == nil {
			ok = subtle.ConstantTimeCompare([]byte(req.Password), []byte(srv.password)) == 1
		}
	}

	if !ok {
		if nack, err := protocol.Encode(protocol.MsgAuth, protocol.AuthAck{Success: false}); err == nil {
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			_ = ws.Write(writeCtx, websocket.MessageText, nack)
			cancel()
		}
		ws.Close(websocket.StatusPolicyViolation, "authentication failed")
		return false
	}
	return true
}
