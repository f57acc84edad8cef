// Package ait decodes DVB Application Information Table sections (binary
// MPEG-2 private sections and the TS 102 809 XML AIT schema) into a single,
// decoder-agnostic table model and reassembles multi-section broadcast
// tables into complete snapshots.
package ait

import "fmt"

// Protocol identifiers for transport descriptors (TS 102 809 table 16).
const (
	ProtocolNone           uint16 = 0x0000
	ProtocolObjectCarousel uint16 = 0x0001
	ProtocolHTTP           uint16 = 0x0003
)

// MaxTransports is the number of transport slots an application may carry —
// at most one per protocol ID.
const MaxTransports = 2

// AppType identifies the application_type field of a broadcast AIT.
const AppTypeHbbTV uint16 = 0x0010

// ControlCode is the application control code signalled in the AIT.
type ControlCode uint8

const (
	ControlUnknown ControlCode = iota
	ControlAutostart
	ControlPresent
	ControlDestroy
	ControlKill
	ControlPrefetch
	ControlRemote
	ControlDisabled
	ControlPlaybackAutostart
)

func (c ControlCode) String() string {
	switch c {
	case ControlAutostart:
		return "AUTOSTART"
	case ControlPresent:
		return "PRESENT"
	case ControlDestroy:
		return "DESTROY"
	case ControlKill:
		return "KILL"
	case ControlPrefetch:
		return "PREFETCH"
	case ControlRemote:
		return "REMOTE"
	case ControlDisabled:
		return "DISABLED"
	case ControlPlaybackAutostart:
		return "PB_AUTO"
	default:
		return "UNKNOWN"
	}
}

// Visibility controls whether an application is listed to the user.
type Visibility uint8

const (
	VisibilityAll      Visibility = 0x03
	VisibilityNotUsers Visibility = 0x01
	VisibilityNotAll   Visibility = 0x00
	// visibilityUnset is a decode-time sentinel meaning "not yet parsed".
	visibilityUnset Visibility = 0x02
)

// Triplet identifies a DVB service.
type Triplet struct {
	OriginalNetworkID uint16
	TransportStreamID uint16
	ServiceID         uint16
}

// InvalidTriplet is returned where no current service is known.
var InvalidTriplet = Triplet{0xFFFF, 0xFFFF, 0xFFFF}

// Invalid reports whether t is the sentinel "no current service" triplet.
func (t Triplet) Invalid() bool {
	return t == InvalidTriplet
}

func (t Triplet) String() string {
	return fmt.Sprintf("%x.%x.%x", t.OriginalNetworkID, t.TransportStreamID, t.ServiceID)
}

// Transport is one transport_protocol_descriptor entry.
type Transport struct {
	ProtocolID             uint16
	TransportProtocolLabel uint8
	FailedToLoad           bool

	// Object carousel fields (ProtocolID == ProtocolObjectCarousel).
	RemoteConnection bool
	Triplet          Triplet
	ComponentTag     uint8

	// HTTP fields (ProtocolID == ProtocolHTTP).
	BaseURL       string
	ExtensionURLs []string
}

// Empty reports whether this transport slot has never been populated.
func (t Transport) Empty() bool {
	return t.ProtocolID == ProtocolNone
}

// AppProfile is one entry of an application's mhpVersion/profile list.
type AppProfile struct {
	Profile uint16
	Major   uint8
	Minor   uint8
	Micro   uint8
}

// Compatible reports whether this profile's version triple is at most
// maxMajor.maxMinor.maxMicro, compared lexicographically major first.
func (p AppProfile) Compatible(maxMajor, maxMinor, maxMicro uint8) bool {
	if p.Major != maxMajor {
		return p.Major < maxMajor
	}
	if p.Minor != maxMinor {
		return p.Minor < maxMinor
	}
	return p.Micro <= maxMicro
}

// ParentalRating is one parental_rating_descriptor record.
type ParentalRating struct {
	Scheme string
	Region string // 2 or 3 letter ISO 3166 code
	Value  uint8
}

// Usage type values (application_usage_descriptor).
const UsageTeletext uint8 = 0x01

// Application is the canonical application entity decoded from either AIT
// representation. Equality between two applications is (OrgID, AppID).
type Application struct {
	OrgID uint32
	AppID uint16

	ControlCode    ControlCode
	Visibility     Visibility
	Priority       uint8
	ServiceBound   bool
	Profiles       []AppProfile
	Transports     [MaxTransports]Transport
	Location       string
	Names          map[uint32]string // 24-bit ISO-639-2 code -> display name
	Boundaries     []string
	ParentalRatings []ParentalRating
	UsageType      uint8
}

// ID returns the (OrgID, AppID) identity pair.
func (a Application) ID() (uint32, uint16) {
	return a.OrgID, a.AppID
}

// Transport returns the transport descriptor for protocolID, if present.
func (a *Application) Transport(protocolID uint16) (*Transport, bool) {
	for i := range a.Transports {
		if a.Transports[i].ProtocolID == protocolID {
			return &a.Transports[i], true
		}
	}
	return nil, false
}

// PutTransport stores t in the first empty slot. It returns false and
// leaves the application unchanged when a transport with the same protocol
// ID is already present (at most one descriptor per protocol) or when no
// slot is free.
func (a *Application) PutTransport(t Transport) bool {
	if _, ok := a.Transport(t.ProtocolID); ok {
		return false
	}
	for i := range a.Transports {
		if a.Transports[i].Empty() {
			a.Transports[i] = t
			return true
		}
	}
	return false
}

// EligibleForAutostart reports whether at least one profile entry is
// compatible with the given HbbTV version ceiling.
func (a *Application) EligibleForAutostart(maxMajor, maxMinor, maxMicro uint8) bool {
	for _, p := range a.Profiles {
		if p.Compatible(maxMajor, maxMinor, maxMicro) {
			return true
		}
	}
	return false
}

// Table is a reassembled AIT: either a binary broadcast table (with a
// section bitmap) or a one-shot XML AIT (always complete).
type Table struct {
	AppType uint16
	Version uint8
	Apps    []*Application

	mask     SectionMask
	complete bool
}

// Complete reports whether every signalled section has been received.
func (t *Table) Complete() bool { return t.complete }

// FindApp returns the application matching (orgID, appID), preserving
// insertion order on ties (there are none — identity is unique).
func (t *Table) FindApp(orgID uint32, appID uint16) *Application {
	for _, a := range t.Apps {
		if a.OrgID == orgID && a.AppID == appID {
			return a
		}
	}
	return nil
}

// getOrCreateApp returns the existing application for (orgID, appID),
// appending a new one (in decode order) if this is the first sighting.
func (t *Table) getOrCreateApp(orgID uint32, appID uint16) *Application {
	if a := t.FindApp(orgID, appID); a != nil {
		return a
	}
	a := &Application{
		OrgID:      orgID,
		AppID:      appID,
		Visibility: visibilityUnset,
		Names:      make(map[uint32]string),
	}
	t.Apps = append(t.Apps, a)
	return a
}

// Clone returns a shallow-safe copy of the table for handing to readers
// that must not observe subsequent mutation — the "immutable snapshot"
// contract of Get().
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		AppType:  t.AppType,
		Version:  t.Version,
		mask:     t.mask,
		complete: t.complete,
		Apps:     make([]*Application, len(t.Apps)),
	}
	for i, a := range t.Apps {
		cp := *a
		cp.Profiles = append([]AppProfile(nil), a.Profiles...)
		cp.Boundaries = append([]string(nil), a.Boundaries...)
		cp.ParentalRatings = append([]ParentalRating(nil), a.ParentalRatings...)
		names := make(map[uint32]string, len(a.Names))
		for k, v := range a.Names {
			names[k] = v
		}
		cp.Names = names
		out.Apps[i] = &cp
	}
	return out
}
