package wsserver

import (
	"encoding/json"
	"log/slog"

	"github.com/OpenRedButtonProject/orb-core/internal/rpc"
)

// Fanout delivers terminal→app JSON-RPC notifications and intents to the
// connections that negotiated or subscribed to receive them. It is
// the registry's only surface reachable from outside the WebSocket domain:
// callers in other packages post through it rather than touching sessions
// directly.
type Fanout struct {
	reg *registry
}

func newFanout(reg *registry) *Fanout {
	return &Fanout{reg: reg}
}

// Notify delivers org.hbbtv.notify to every connection subscribed to
// msgType, with the given value object as the notification's params.
func (f *Fanout) Notify(msgType string, value any) {
	params, err := json.Marshal(struct {
		MsgType string `json:"msgType"`
		Value   any    `json:"value"`
	}{msgType, value})
	if err != nil {
		slog.Error("fanout: marshal notify params", "msg_type", msgType, "err", err)
		return
	}
	frame := mustNotification(rpc.MethodNotify, params)

	f.reg.each(func(s *session) {
		if !s.conn.IsSubscribed(msgType) {
			return
		}
		if !s.trySend(frame) {
			slog.Warn("fanout: notify dropped, queue full", "connection_id", s.conn.ID(), "msg_type", msgType)
		}
	})
}

// Intent sends a terminal→app intent request to every connection that
// negotiated method, assigning each its own per-connection intent id.
func (f *Fanout) Intent(method string, params any) {
	f.reg.each(func(s *session) {
		if !s.conn.IsNegotiatedTerminalToApp(method) {
			return
		}
		frame, err := marshalIntentRequest(s.conn.NextIntentID(), method, params)
		if err != nil {
			slog.Error("fanout: marshal intent", "method", method, "err", err)
			return
		}
		if !s.trySend(frame) {
			slog.Warn("fanout: intent dropped, queue full", "connection_id", s.conn.ID(), "method", method)
		}
	})
}

// IPPlayback sends a terminal→OpApp ipplayback.* message, delivered only
// to connections marked opapp_enabled that also negotiated the method.
func (f *Fanout) IPPlayback(method string, params any) {
	f.reg.each(func(s *session) {
		if !s.conn.OpAppEnabled() || !s.conn.IsNegotiatedTerminalToApp(method) {
			return
		}
		frame, err := marshalIntentRequest(s.conn.NextIntentID(), method, params)
		if err != nil {
			slog.Error("fanout: marshal ipplayback", "method", method, "err", err)
			return
		}
		if !s.trySend(frame) {
			slog.Warn("fanout: ipplayback dropped, queue full", "connection_id", s.conn.ID(), "method", method)
		}
	})
}

func marshalIntentRequest(id, method string, params any) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{"2.0", id, method, params})
}

// mustNotification builds an id-less JSON-RPC notification frame. Notify
// params are always a marshalable struct, so a marshal failure here would
// indicate a programming error rather than bad input.
func mustNotification(method string, params json.RawMessage) []byte {
	frame, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}{"2.0", method, params})
	if err != nil {
		panic("wsserver: notify frame must always marshal: " + err.Error())
	}
	return frame
}
