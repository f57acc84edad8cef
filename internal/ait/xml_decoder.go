package ait

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// xmlServiceDiscovery mirrors the TS 102 809 §5.4 ServiceDiscovery schema
// down to the elements this decoder actually consumes. Unknown elements and
// attributes are ignored by encoding/xml automatically.
type xmlServiceDiscovery struct {
	XMLName              xml.Name                `xml:"ServiceDiscovery"`
	ApplicationDiscovery xmlApplicationDiscovery `xml:"ApplicationDiscovery"`
}

type xmlApplicationDiscovery struct {
	ApplicationList xmlApplicationList `xml:"ApplicationList"`
}

type xmlApplicationList struct {
	Applications []xmlApplication `xml:"Application"`
}

type xmlApplication struct {
	AppNames    []xmlAppName          `xml:"appName"`
	Identifier  xmlApplicationID      `xml:"applicationIdentifier"`
	Descriptor  xmlApplicationDesc    `xml:"applicationDescriptor"`
	Boundary    xmlApplicationBoundary `xml:"applicationBoundary"`
	Transports  []xmlTransport        `xml:"applicationTransport"`
	Location    string                `xml:"applicationLocation"`
}

type xmlAppName struct {
	Language string `xml:"Language,attr"`
	Name     string `xml:",chardata"`
}

type xmlApplicationID struct {
	OrgID string `xml:"orgId"`
	AppID string `xml:"appId"`
}

type xmlApplicationDesc struct {
	ControlCode     string                `xml:"controlCode"`
	Visibility      string                `xml:"visibility"`
	ServiceBound    *bool                 `xml:"serviceBound"`
	Priority        string                `xml:"priority"`
	MhpVersions     []xmlMhpVersion       `xml:"mhpVersion"`
	ParentalRatings []xmlParentalRating   `xml:"ParentalRating"`
}

type xmlParentalRating struct {
	Scheme string `xml:"Scheme,attr"`
	Region string `xml:"Region,attr"`
	Value  string `xml:",chardata"`
}

type xmlMhpVersion struct {
	Profile string `xml:"profile"`
	Major   string `xml:"versionMajor"`
	Minor   string `xml:"versionMinor"`
	Micro   string `xml:"versionMicro"`
}

type xmlApplicationBoundary struct {
	BoundaryExtension []string `xml:"BoundaryExtension"`
}

type xmlTransport struct {
	OCTransport   *xmlOCTransport   `xml:"OCTransport"`
	HTTPTransport *xmlHTTPTransport `xml:"HTTPTransport"`
}

type xmlOCTransport struct {
	ComponentTag string          `xml:"ComponentTag,attr"`
	DvbTriplet   *xmlDvbTriplet  `xml:"DvbTriplet"`
}

type xmlDvbTriplet struct {
	OrigNetID  string `xml:"OrigNetworkId,attr"`
	TSID       string `xml:"TSId,attr"`
	ServiceID  string `xml:"ServiceId,attr"`
}

type xmlHTTPTransport struct {
	URL           string   `xml:"URLBase"`
	ExtensionURLs []string `xml:"URLExtension"`
}

// controlCodeFromString maps the XML AIT's fixed control-code vocabulary.
// Unrecognised strings become UNKNOWN, which keeps the app but bars it from
// autostart.
func controlCodeFromString(s string) ControlCode {
	switch strings.TrimSpace(s) {
	case "AUTOSTART":
		return ControlAutostart
	case "PRESENT":
		return ControlPresent
	case "DESTROY":
		return ControlDestroy
	case "KILL":
		return ControlKill
	case "PREFETCH":
		return ControlPrefetch
	case "REMOTE":
		return ControlRemote
	case "DISABLED":
		return ControlDisabled
	case "PLAYBACK_AUTOSTART":
		return ControlPlaybackAutostart
	default:
		return ControlUnknown
	}
}

func visibilityFromString(s string) Visibility {
	switch strings.TrimSpace(s) {
	case "VISIBLE_ALL":
		return VisibilityAll
	case "NOT_VISIBLE_USERS":
		return VisibilityNotUsers
	default:
		return VisibilityNotAll
	}
}

func parseUintDefault(s string, base int, bitSize int) uint64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, base, bitSize)
	if err != nil {
		return 0
	}
	return v
}

// DecodeXML parses a complete TS 102 809 ServiceDiscovery document into a
// Table. Unlike the binary decoder, an XML AIT is always a single, complete
// document — there is no section reassembly.
func DecodeXML(content []byte) (*Table, error) {
	var doc xmlServiceDiscovery
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("ait: xml decode: %w", err)
	}

	table := &Table{AppType: AppTypeHbbTV, complete: true}
	for _, xa := range doc.ApplicationDiscovery.ApplicationList.Applications {
		app := decodeXMLApplication(xa)
		table.Apps = append(table.Apps, app)
	}
	return table, nil
}

func decodeXMLApplication(xa xmlApplication) *Application {
	orgID := uint32(parseUintDefault(xa.Identifier.OrgID, 10, 32))
	appID := uint16(parseUintDefault(xa.Identifier.AppID, 10, 16))

	app := &Application{
		OrgID:        orgID,
		AppID:        appID,
		ControlCode:  controlCodeFromString(xa.Descriptor.ControlCode),
		Visibility:   visibilityFromString(xa.Descriptor.Visibility),
		ServiceBound: true, // TS 102 809 §5.4.4.4 default
		Names:        make(map[uint32]string, len(xa.AppNames)),
		Location:     xa.Location,
	}
	if xa.Descriptor.ServiceBound != nil {
		app.ServiceBound = *xa.Descriptor.ServiceBound
	}
	if xa.Descriptor.Priority != "" {
		app.Priority = uint8(parseUintDefault(xa.Descriptor.Priority, 16, 8))
	}

	for _, n := range xa.AppNames {
		if n.Name == "" || len(n.Language) != 3 {
			continue
		}
		langCode := uint32(n.Language[0])<<16 | uint32(n.Language[1])<<8 | uint32(n.Language[2])
		app.Names[langCode] = n.Name
	}

	for _, mv := range xa.Descriptor.MhpVersions {
		app.Profiles = append(app.Profiles, AppProfile{
			Profile: uint16(parseUintDefault(mv.Profile, 16, 16)),
			Major:   uint8(parseUintDefault(mv.Major, 10, 8)),
			Minor:   uint8(parseUintDefault(mv.Minor, 10, 8)),
			Micro:   uint8(parseUintDefault(mv.Micro, 10, 8)),
		})
	}

	for _, pr := range xa.Descriptor.ParentalRatings {
		app.ParentalRatings = append(app.ParentalRatings, ParentalRating{
			Scheme: pr.Scheme,
			Region: pr.Region,
			Value:  uint8(parseUintDefault(pr.Value, 10, 8)),
		})
	}

	app.Boundaries = append(app.Boundaries, xa.Boundary.BoundaryExtension...)

	for _, xt := range xa.Transports {
		switch {
		case xt.OCTransport != nil:
			t := Transport{ProtocolID: ProtocolObjectCarousel}
			t.ComponentTag = uint8(parseUintDefault(xt.OCTransport.ComponentTag, 16, 8))
			if xt.OCTransport.DvbTriplet != nil {
				t.RemoteConnection = true
				t.Triplet = Triplet{
					OriginalNetworkID: uint16(parseUintDefault(xt.OCTransport.DvbTriplet.OrigNetID, 16, 16)),
					TransportStreamID: uint16(parseUintDefault(xt.OCTransport.DvbTriplet.TSID, 16, 16)),
					ServiceID:         uint16(parseUintDefault(xt.OCTransport.DvbTriplet.ServiceID, 16, 16)),
				}
			}
			app.PutTransport(t)
		case xt.HTTPTransport != nil:
			t := Transport{
				ProtocolID:    ProtocolHTTP,
				BaseURL:       xt.HTTPTransport.URL,
				ExtensionURLs: append([]string(nil), xt.HTTPTransport.ExtensionURLs...),
			}
			app.PutTransport(t)
		}
	}

	return app
}
