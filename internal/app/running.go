// Package app models the canonical running application entity, the HbbTV
// linked-app scheme, URL/boundary resolution, and key-set classification —
// everything the Application Manager needs to decide what is on screen and
// whether it is allowed to do what it is asking to do.
package app

import (
	"strings"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
)

// InvalidAppID is reserved; real ids are assigned starting at 1 and wrap
// skipping 0.
const InvalidAppID uint16 = 0

// InvalidID is the sentinel for "no id"/"not found" in 16-bit id spaces.
const InvalidID uint16 = 0xFFFF

// HbbTV version this terminal implements, used as the autostart eligibility
// ceiling and reported over JSON-RPC negotiation.
const (
	HbbTVVersionMajor uint8 = 1
	HbbTVVersionMinor uint8 = 6
	HbbTVVersionMicro uint8 = 1
)

// State is the application's presentation state. HbbTV apps only ever use
// Foreground/Background; OpApps additionally use the three Transient/
// overlaid variants.
type State int

const (
	Foreground State = iota
	Background
	Transient
	OverlaidForeground
	OverlaidTransient
)

// Scheme is the HbbTV linked-app scheme, derived from the `lloc` URL query
// parameter a broadband app was launched with.
type Scheme string

const (
	LinkedAppScheme11 Scheme = "urn:hbbtv:linkedapp:1.1"
	LinkedAppScheme12 Scheme = "urn:hbbtv:linkedapp:1.2"
	LinkedAppScheme2  Scheme = "urn:hbbtv:linkedapp:2"
)

// SchemeFromURLParams derives the linked-app scheme from a broadband
// launch URL's query parameters, defaulting to 1.1 when neither recognised
// marker is present.
func SchemeFromURLParams(params string) Scheme {
	switch {
	case strings.Contains(params, "lloc=service"):
		return LinkedAppScheme12
	case strings.Contains(params, "lloc=availability"):
		return LinkedAppScheme2
	default:
		return LinkedAppScheme11
	}
}

// URLParamsFromScheme is the inverse of SchemeFromURLParams, used when
// re-deriving the launch query string for a scheme change notification.
func URLParamsFromScheme(scheme Scheme) string {
	switch scheme {
	case LinkedAppScheme12:
		return "?lloc=service"
	case LinkedAppScheme2:
		return "?lloc=availability"
	default:
		return ""
	}
}

// RunningApplication is the single application the Manager may have active
// at any time. It is mutated only by the Manager under its own mutex.
type RunningApplication struct {
	ID uint16

	OrgID uint32
	AppID uint16

	EntryURL  string
	LoadedURL string
	BaseURL   string
	Scheme    Scheme

	// TransportProtocolID is the AIT transport the app was last loaded
	// through (ait.ProtocolHTTP or ait.ProtocolObjectCarousel), used by the
	// Manager to detect "present but without the same transport protocol"
	// on an AIT update.
	TransportProtocolID uint16

	IsBroadcast    bool
	IsTrusted      bool
	IsServiceBound bool
	IsHidden       bool
	IsActivated    bool
	IsRunning      bool

	State State

	VersionMinor uint8

	KeySetMask uint16
	OtherKeys  map[uint16]struct{}

	ParentalRatings []ait.ParentalRating
	Boundaries      []string
}

// CanTransitionState reports whether an HbbTV app may move to state —
// HbbTV apps are restricted to Foreground/Background (OpApp's extra states
// are handled by the OpApp-aware caller, not this model).
func (a *RunningApplication) CanTransitionState(state State) bool {
	return state == Foreground || state == Background
}
