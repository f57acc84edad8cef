package rpc

import (
	"encoding/json"
	"testing"
)

func TestDispatchParseError(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	resp := Dispatch(conn, []byte("{not json"))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error response, got %+v", resp)
	}
	if string(resp.ID) != "null" {
		t.Fatalf("expected id:null on parse error, got %q", resp.ID)
	}
}

func TestDispatchInvalidRequestWrongVersion(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	resp := Dispatch(conn, []byte(`{"jsonrpc":"1.0","method":"x","id":1}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp)
	}
}

func TestDispatchMethodNotFoundBeforeNegotiation(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	resp := Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.subscribe","id":1,"params":{"msgType":"subtitlesPrefChange"}}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found before negotiation, got %+v", resp)
	}
}

func TestDispatchNegotiateThenSubscribeSucceeds(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	negotiateReq := `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.subscribe","org.hbbtv.af.featureSettingsQuery"],"terminalToApp":["org.hbbtv.app.intent.media.play"]}}`
	resp := Dispatch(conn, []byte(negotiateReq))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected negotiate to succeed, got %+v", resp)
	}
	var result negotiateResult
	b, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("decode negotiate result: %v", err)
	}
	if len(result.AppToTerminal) != 2 || len(result.TerminalToApp) != 1 {
		t.Fatalf("expected intersection of requested methods, got %+v", result)
	}

	subscribeReq := `{"jsonrpc":"2.0","method":"org.hbbtv.subscribe","id":2,"params":{"msgType":"subtitlesPrefChange"}}`
	resp = Dispatch(conn, []byte(subscribeReq))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected subscribe to succeed after negotiation, got %+v", resp)
	}
	if !conn.IsSubscribed("subtitlesPrefChange") {
		t.Fatal("expected connection to be subscribed")
	}
}

// TestDispatchSubscribeAllowedWithoutNegotiatingSubscribeItself mirrors the
// case where an app negotiates a method set that never mentions
// "org.hbbtv.subscribe" — subscribe/unsubscribe are unlocked by having
// negotiated at all, not by negotiating themselves as an app-to-terminal
// method.
func TestDispatchSubscribeAllowedWithoutNegotiatingSubscribeItself(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	negotiateReq := `{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.af.featureSettingsQuery"],"terminalToApp":[]}}`
	resp := Dispatch(conn, []byte(negotiateReq))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected negotiate to succeed, got %+v", resp)
	}

	subscribeReq := `{"jsonrpc":"2.0","method":"org.hbbtv.subscribe","id":2,"params":{"msgType":"subtitlesPrefChange"}}`
	resp = Dispatch(conn, []byte(subscribeReq))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected subscribe to succeed despite never negotiating org.hbbtv.subscribe itself, got %+v", resp)
	}
	if !conn.IsSubscribed("subtitlesPrefChange") {
		t.Fatal("expected connection to be subscribed")
	}

	unsubscribeReq := `{"jsonrpc":"2.0","method":"org.hbbtv.unsubscribe","id":3,"params":{"msgType":"subtitlesPrefChange"}}`
	resp = Dispatch(conn, []byte(unsubscribeReq))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected unsubscribe to succeed, got %+v", resp)
	}
	if conn.IsSubscribed("subtitlesPrefChange") {
		t.Fatal("expected connection to no longer be subscribed")
	}
}

func TestDispatchSubscribeUnknownMsgType(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.subscribe"]}}`))
	resp := Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.subscribe","id":2,"params":{"msgType":"bogus"}}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid params for unknown msgType, got %+v", resp)
	}
}

func TestDispatchNotificationProducesNoResponse(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.app.voice.ready"]}}`))
	resp := Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.app.voice.ready","params":{"ready":true}}`))
	if resp != nil {
		t.Fatalf("expected no response for a notification without id, got %+v", resp)
	}
	if !conn.VoiceReady() {
		t.Fatal("expected voice ready flag to be set despite no response")
	}
}

func TestDispatchEchoesStringAndNumericIDs(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	resp := Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":"abc","params":{}}`))
	if resp == nil || string(resp.ID) != `"abc"` {
		t.Fatalf("expected string id echoed verbatim, got %+v", resp)
	}

	resp = Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":42,"params":{}}`))
	if resp == nil || string(resp.ID) != "42" {
		t.Fatalf("expected numeric id echoed verbatim, got %+v", resp)
	}
}

func TestDispatchAccessibilityFeatureAcceptsIndexOrName(t *testing.T) {
	conn := NewConnectionState(1, "/hbbtv", false)
	Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.negotiateMethods","id":1,"params":{"appToTerminal":["org.hbbtv.af.featureSupportInfo"]}}`))

	resp := Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.af.featureSupportInfo","id":2,"params":{"feature":0}}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected feature index 0 accepted, got %+v", resp)
	}

	resp = Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.af.featureSupportInfo","id":3,"params":{"feature":"audioDescription"}}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected feature name accepted, got %+v", resp)
	}

	resp = Dispatch(conn, []byte(`{"jsonrpc":"2.0","method":"org.hbbtv.af.featureSupportInfo","id":4,"params":{"feature":"bogus"}}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid params for unknown feature name, got %+v", resp)
	}
}
