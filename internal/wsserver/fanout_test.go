package wsserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/OpenRedButtonProject/orb-core/internal/rpc"
)

func drain(t *testing.T, s *session) map[string]json.RawMessage {
	t.Helper()
	select {
	case frame := <-s.send:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(frame, &fields); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return fields
	case <-time.After(time.Second):
		t.Fatal("expected a frame to be enqueued")
		return nil
	}
}

func assertEmpty(t *testing.T, s *session) {
	t.Helper()
	select {
	case frame := <-s.send:
		t.Fatalf("expected no frame, got %s", frame)
	default:
	}
}

func TestFanoutNotifyOnlyReachesSubscribedConnections(t *testing.T) {
	reg := newRegistry()
	fanout := newFanout(reg)

	subscribed := reg.add("/hbbtv", false, 4)
	unsubscribed := reg.add("/hbbtv", false, 4)

	negotiateSubscribe(subscribed.conn)
	negotiateSubscribe(unsubscribed.conn)

	mustSubscribe(t, subscribed.conn, "subtitlesPrefChange")

	fanout.Notify("subtitlesPrefChange", map[string]any{"enabled": true})

	fields := drain(t, subscribed)
	if string(fields["method"]) != `"org.hbbtv.notify"` {
		t.Fatalf("unexpected method field: %s", fields["method"])
	}
	assertEmpty(t, unsubscribed)
}

func TestFanoutIntentOnlyReachesNegotiatedConnections(t *testing.T) {
	reg := newRegistry()
	fanout := newFanout(reg)

	negotiated := reg.add("/hbbtv", false, 4)
	notNegotiated := reg.add("/hbbtv", false, 4)

	dispatch(negotiated.conn, `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"terminalToApp":["org.hbbtv.app.intent.media.play"]}}`)

	fanout.Intent(rpc.MethodIntentMediaPlay, map[string]any{})

	fields := drain(t, negotiated)
	if string(fields["method"]) != `"org.hbbtv.app.intent.media.play"` {
		t.Fatalf("unexpected method: %s", fields["method"])
	}
	if _, ok := fields["id"]; !ok {
		t.Fatal("expected intent request to carry an id")
	}
	assertEmpty(t, notNegotiated)
}

func TestFanoutIPPlaybackRequiresOpAppAndNegotiation(t *testing.T) {
	reg := newRegistry()
	fanout := newFanout(reg)

	opApp := reg.add("/opapp", true, 4)
	regularApp := reg.add("/hbbtv", false, 4)

	dispatch(opApp.conn, `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"terminalToApp":["org.hbbtv.ipplayback.status"]}}`)
	dispatch(regularApp.conn, `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"terminalToApp":["org.hbbtv.ipplayback.status"]}}`)

	fanout.IPPlayback(rpc.MethodIPPlaybackStatus, map[string]any{})

	fields := drain(t, opApp)
	if string(fields["method"]) != `"org.hbbtv.ipplayback.status"` {
		t.Fatalf("unexpected method: %s", fields["method"])
	}
	assertEmpty(t, regularApp)
}

func TestRegistryRemoveStopsFurtherDelivery(t *testing.T) {
	reg := newRegistry()
	fanout := newFanout(reg)

	s := reg.add("/hbbtv", false, 4)
	dispatch(s.conn, `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.subscribe"]}}`)
	mustSubscribe(t, s.conn, "subtitlesPrefChange")

	reg.remove(s.conn.ID())

	fanout.Notify("subtitlesPrefChange", map[string]any{})

	if frame, ok := <-s.send; ok {
		t.Fatalf("expected no frame delivered after removal, got %s", frame)
	}
}

func negotiateSubscribe(conn *rpc.ConnectionState) {
	dispatch(conn, `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.subscribe"]}}`)
}

func mustSubscribe(t *testing.T, conn *rpc.ConnectionState, msgType string) {
	t.Helper()
	resp := dispatch(conn, `{"jsonrpc":"2.0","method":"org.hbbtv.subscribe","id":2,"params":{"msgType":"`+msgType+`"}}`)
	if resp == nil || resp.Error != nil {
		t.Fatalf("subscribe failed: %+v", resp)
	}
}

func dispatch(conn *rpc.ConnectionState, raw string) *rpc.Response {
	return rpc.Dispatch(conn, []byte(raw))
}
