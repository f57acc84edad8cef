// Package wsserver implements the JSON-RPC WebSocket session service: an
// Echo-routed upgrade endpoint, a connection registry, and the
// notification fan-out that lets the Application Manager push terminal→app
// messages to admitted connections.
package wsserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OpenRedButtonProject/orb-core/internal/metrics"
	"github.com/OpenRedButtonProject/orb-core/internal/rpc"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func marshalResponse(resp *rpc.Response) ([]byte, error) {
	return json.Marshal(resp)
}

const (
	writeTimeout  = 5 * time.Second
	maxFrameBytes = 1 << 20 // 1 MiB
	sendQueueSize = 64
)

// Server owns the WebSocket transport for the JSON-RPC session service.
// Two endpoint paths are admitted: Path for ordinary HbbTV applications
// and OpAppPath for the privileged OpApp; the connecting path sets each
// session's opapp_enabled flag — see DESIGN.md.
type Server struct {
	path      string
	opAppPath string

	reg    *registry
	Fanout *Fanout

	upgrader websocket.Upgrader
}

// NewServer constructs a WebSocket server admitting connections at path
// (opapp_enabled=false) and opAppPath (opapp_enabled=true).
func NewServer(path, opAppPath string) *Server {
	reg := newRegistry()
	return &Server{
		path:      path,
		opAppPath: opAppPath,
		reg:       reg,
		Fanout:    newFanout(reg),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the WebSocket upgrade routes on an Echo router.
func (s *Server) Register(e *echo.Echo) {
	e.GET(s.path, s.handleUpgrade(false))
	if s.opAppPath != "" && s.opAppPath != s.path {
		e.GET(s.opAppPath, s.handleUpgrade(true))
	}
}

func (s *Server) handleUpgrade(opAppEnabled bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		remoteAddr := c.RealIP()
		slog.Debug("wsserver: upgrade request", "remote", remoteAddr, "opapp_enabled", opAppEnabled)

		conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Error("wsserver: upgrade failed", "remote", remoteAddr, "err", err)
			return fmt.Errorf("upgrade websocket: %w", err)
		}
		s.serveConn(conn, c.Request().RequestURI, opAppEnabled, remoteAddr)
		return nil
	}
}

func (s *Server) serveConn(conn *websocket.Conn, uri string, opAppEnabled bool, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	sess := s.reg.add(uri, opAppEnabled, sendQueueSize)
	slog.Info("wsserver: connected", "connection_id", sess.conn.ID(), "remote", remoteAddr, "opapp_enabled", opAppEnabled)
	metrics.WSConnectionsActive.Inc()
	metrics.WSConnectionsTotal.Inc()

	defer func() {
		s.reg.remove(sess.conn.ID())
		metrics.WSConnectionsActive.Dec()
		slog.Info("wsserver: disconnected", "connection_id", sess.conn.ID(), "remote", remoteAddr)
	}()

	go s.writeLoop(conn, sess)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("wsserver: unexpected close", "connection_id", sess.conn.ID(), "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handleFrame(sess, data)
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sess *session) {
	for frame := range sess.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			slog.Debug("wsserver: write error", "connection_id", sess.conn.ID(), "err", err)
			return
		}
	}
}

func (s *Server) handleFrame(sess *session, data []byte) {
	resp := rpc.Dispatch(sess.conn, data)
	if resp == nil {
		metrics.RPCFramesTotal.WithLabelValues("notification").Inc()
		return
	}
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.RPCFramesTotal.WithLabelValues(outcome).Inc()

	frame, err := marshalResponse(resp)
	if err != nil {
		slog.Error("wsserver: marshal response", "connection_id", sess.conn.ID(), "err", err)
		return
	}
	if !sess.trySend(frame) {
		slog.Warn("wsserver: response dropped, queue full", "connection_id", sess.conn.ID())
	}
}
