// Package rpc implements the JSON-RPC 2.0 dispatcher for the accessibility
// and voice negotiation service: per-connection method negotiation,
// request/response/notification framing, and inbound payload validation.
package rpc

import (
	"encoding/json"
	"log/slog"
)

// Request is one inbound JSON-RPC 2.0 frame. id is kept as raw JSON so its
// original type (string or number) round-trips into the response verbatim
// — see DESIGN.md for why this replaces the source's "STR"/"NUM" string
// tagging scheme.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one outbound JSON-RPC 2.0 result or error frame.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

func errorResponse(id json.RawMessage, err *Error) *Response {
	if id == nil {
		id = nullID
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: err}
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Dispatch parses and routes one inbound WebSocket text frame against
// conn's negotiated method set, returning the response to send back (nil
// for a notification with no id, which produces no reply). A returned
// *Response is always ready to be marshaled and written as-is.
func Dispatch(conn *ConnectionState, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Debug("rpc: parse error", "connection_id", conn.ID(), "error", err)
		return errorResponse(nil, parseError())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		slog.Debug("rpc: invalid request", "connection_id", conn.ID(), "method", req.Method)
		return errorResponse(req.ID, invalidRequest("jsonrpc must be \"2.0\" and method is required"))
	}

	if !isMethodAllowed(conn, req.Method) {
		slog.Debug("rpc: method not negotiated", "connection_id", conn.ID(), "method", req.Method)
		return respondIfExpected(req.ID, errorResponse(req.ID, methodNotFound(req.Method)))
	}

	result, rpcErr := dispatchMethod(conn, req.Method, req.Params)
	if rpcErr != nil {
		slog.Debug("rpc: handler error", "connection_id", conn.ID(), "method", req.Method, "code", rpcErr.Code)
		return respondIfExpected(req.ID, errorResponse(req.ID, rpcErr))
	}
	return respondIfExpected(req.ID, resultResponse(req.ID, result))
}

// isMethodAllowed gates every method except negotiateMethods itself.
// subscribe/unsubscribe only require a prior successful negotiateMethods
// call on this connection; every other method must have been individually
// agreed as an app-to-terminal method during that negotiation.
func isMethodAllowed(conn *ConnectionState, method string) bool {
	switch method {
	case MethodNegotiate:
		return true
	case MethodSubscribe, MethodUnsubscribe:
		return conn.isNegotiated()
	default:
		return conn.isNegotiatedAppToTerminal(method)
	}
}

// respondIfExpected suppresses the response for a true notification (no id
// in the request) while still returning it for ordinary requests.
func respondIfExpected(id json.RawMessage, resp *Response) *Response {
	if len(id) == 0 {
		return nil
	}
	return resp
}

type negotiateParams struct {
	AppToTerminal []string `json:"appToTerminal"`
	TerminalToApp []string `json:"terminalToApp"`
}

type negotiateResult struct {
	TerminalToApp []string `json:"terminalToApp"`
	AppToTerminal []string `json:"appToTerminal"`
}

type subscribeParams struct {
	MsgType string `json:"msgType"`
}

func dispatchMethod(conn *ConnectionState, method string, params json.RawMessage) (any, *Error) {
	switch method {
	case MethodNegotiate:
		return handleNegotiate(conn, params)
	case MethodSubscribe:
		return handleSubscribe(conn, params, true)
	case MethodUnsubscribe:
		return handleSubscribe(conn, params, false)
	case MethodVoiceReady:
		return handleVoiceReady(conn, params)
	case MethodStateMedia:
		return handleStateMedia(conn, params)
	case MethodAFSupportInfo, MethodAFSettingsQuery, MethodAFSuppress, MethodAFDialogueEnh, MethodAFTriggerAction:
		return handleAccessibilityFeature(conn, method, params)
	default:
		return nil, methodNotFound(method)
	}
}

// handleNegotiate implements org.hbbtv.negotiateMethods: "appToTerminal"
// lists methods the app wants to call on the terminal; "terminalToApp"
// lists methods the app wants the terminal to be able to call on it.
func handleNegotiate(conn *ConnectionState, params json.RawMessage) (any, *Error) {
	var p negotiateParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("negotiateMethods: " + err.Error())
		}
	}
	agreedAppToTerminal, agreedTerminalToApp := conn.negotiate(p.AppToTerminal, p.TerminalToApp)
	slog.Info("rpc: negotiated", "connection_id", conn.ID(), "app_to_terminal", agreedAppToTerminal, "terminal_to_app", agreedTerminalToApp)
	return negotiateResult{
		TerminalToApp: agreedTerminalToApp,
		AppToTerminal: agreedAppToTerminal,
	}, nil
}

func handleSubscribe(conn *ConnectionState, params json.RawMessage, subscribe bool) (any, *Error) {
	var p subscribeParams
	if err := json.Unmarshal(params, &p); err != nil || p.MsgType == "" {
		return nil, invalidParams("msgType is required")
	}
	if _, ok := subscriptionSuffixes[p.MsgType]; !ok {
		return nil, invalidParams("unknown msgType " + p.MsgType)
	}
	if subscribe {
		conn.subscribe(p.MsgType)
	} else {
		conn.unsubscribe(p.MsgType)
	}
	return struct{}{}, nil
}

func handleVoiceReady(conn *ConnectionState, params json.RawMessage) (any, *Error) {
	var p struct {
		Ready bool `json:"ready"`
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	conn.setVoiceReady(p.Ready)
	slog.Info("rpc: voice ready", "connection_id", conn.ID(), "ready", p.Ready)
	return struct{}{}, nil
}

func handleStateMedia(conn *ConnectionState, params json.RawMessage) (any, *Error) {
	ms, err := parseStateMedia(params)
	if err != nil {
		return nil, err
	}
	conn.setMedia(ms)
	return struct{}{}, nil
}

// handleAccessibilityFeature validates the feature param (int or name) and
// returns an empty acknowledgement — actual feature negotiation with the
// platform's accessibility subsystem is outside the dispatcher's scope.
func handleAccessibilityFeature(conn *ConnectionState, method string, params json.RawMessage) (any, *Error) {
	var p struct {
		Feature json.RawMessage `json:"feature"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(method + ": " + err.Error())
	}
	if _, err := featureFromRaw(p.Feature); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func featureFromRaw(raw json.RawMessage) (Feature, *Error) {
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		for _, f := range featureNames {
			if int(f) == asInt {
				return f, nil
			}
		}
		return 0, invalidParams("unknown feature index")
	}
	var asName string
	if err := json.Unmarshal(raw, &asName); err == nil {
		if f, ok := featureNames[asName]; ok {
			return f, nil
		}
		return 0, invalidParams("unknown feature name " + asName)
	}
	return 0, invalidParams("feature must be an integer or string")
}
