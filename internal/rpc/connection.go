package rpc

import (
	"strconv"
	"sync"
)

// ConnectionState is the per-WebSocket JSON-RPC session state named in the
// spec's data model: negotiated method sets, subscriptions, voice
// readiness, the last media snapshot, and the terminal→app intent id
// counter. One instance backs one connection for its lifetime.
type ConnectionState struct {
	mu sync.Mutex

	id           int
	uri          string
	opAppEnabled bool

	negotiatedAppToTerminal map[string]bool
	negotiatedTerminalToApp map[string]bool
	negotiated              bool

	subscribedMethods map[string]bool

	voiceReady bool
	media      MediaState

	intentIDCount int
}

// NewConnectionState constructs connection state for a freshly admitted
// WebSocket connection.
func NewConnectionState(id int, uri string, opAppEnabled bool) *ConnectionState {
	return &ConnectionState{
		id:                      id,
		uri:                     uri,
		opAppEnabled:            opAppEnabled,
		negotiatedAppToTerminal: make(map[string]bool),
		negotiatedTerminalToApp: make(map[string]bool),
		subscribedMethods:       make(map[string]bool),
	}
}

// ID returns the connection's unique integer id.
func (c *ConnectionState) ID() int { return c.id }

// OpAppEnabled reports whether this connection belongs to an OpApp,
// gating the ipplayback.* intent fan-out.
func (c *ConnectionState) OpAppEnabled() bool { return c.opAppEnabled }

// negotiate intersects the app's requested method lists with what this
// terminal actually supports, stores the agreed sets, and returns them.
func (c *ConnectionState) negotiate(requestedAppToTerminal, requestedTerminalToApp []string) (agreedAppToTerminal, agreedTerminalToApp []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range requestedAppToTerminal {
		if supportedAppToTerminal[m] {
			c.negotiatedAppToTerminal[m] = true
			agreedAppToTerminal = append(agreedAppToTerminal, m)
		}
	}
	for _, m := range requestedTerminalToApp {
		if supportedTerminalToApp[m] {
			c.negotiatedTerminalToApp[m] = true
			agreedTerminalToApp = append(agreedTerminalToApp, m)
		}
	}
	c.negotiated = true
	return agreedAppToTerminal, agreedTerminalToApp
}

// isNegotiatedAppToTerminal reports whether method was agreed during
// negotiateMethods for app→terminal calls.
func (c *ConnectionState) isNegotiatedAppToTerminal(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedAppToTerminal[method]
}

// isNegotiated reports whether negotiateMethods has completed at least once
// on this connection, regardless of which methods were agreed. subscribe
// and unsubscribe are gated on this rather than on isNegotiatedAppToTerminal,
// since they're unlocked by having negotiated at all, not by negotiating
// "org.hbbtv.subscribe" itself as an app-to-terminal method.
func (c *ConnectionState) isNegotiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// IsNegotiatedTerminalToApp reports whether method was agreed for
// terminal→app delivery — consulted by the notification fan-out.
func (c *ConnectionState) IsNegotiatedTerminalToApp(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedTerminalToApp[method]
}

func (c *ConnectionState) subscribe(feature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedMethods[feature] = true
}

func (c *ConnectionState) unsubscribe(feature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribedMethods, feature)
}

// IsSubscribed reports whether this connection subscribed to feature —
// consulted by the notification fan-out.
func (c *ConnectionState) IsSubscribed(feature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribedMethods[feature]
}

func (c *ConnectionState) setVoiceReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voiceReady = ready
}

// VoiceReady reports whether the app has signalled app.voice.ready.
func (c *ConnectionState) VoiceReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceReady
}

func (c *ConnectionState) setMedia(m MediaState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = m
}

// Media returns the last validated app.state.media snapshot.
func (c *ConnectionState) Media() MediaState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media
}

// NextIntentID returns the next terminal→app intent id for this
// connection, as a decimal string (the wire id type for terminal-issued
// requests).
func (c *ConnectionState) NextIntentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intentIDCount++
	return strconv.Itoa(c.intentIDCount)
}
