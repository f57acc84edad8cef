package app

import (
	"strconv"
	"strings"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
)

// LocatorKind classifies the result of ParseCreateLocator.
type LocatorKind int

const (
	LocatorUnknown LocatorKind = iota
	LocatorAITApplication
	LocatorEntryOrXMLAIT
)

// Locator is the parsed form of a `create_application` target URL.
type Locator struct {
	Kind   LocatorKind
	OrgID  uint32
	AppID  uint16
	Params string
}

// ParseCreateLocator implements TS 102 851's DVB application locator syntax
// plus the HTTP(S) entry-page/XML-AIT case. A dvb:// locator only resolves
// to LocatorAITApplication when its filter segment (the "current" literal,
// or an onid.tsid.sid triplet) denotes currentService; otherwise it is
// LocatorUnknown: AIT filters only resolve for the service currently tuned,
// never for some other onid.tsid.sid triplet.
func ParseCreateLocator(url string, currentService ait.Triplet) Locator {
	loc := Locator{Kind: LocatorUnknown, Params: url}

	switch {
	case strings.HasPrefix(url, "dvb://"):
		return parseDVBLocator(url, currentService)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		loc.Kind = LocatorEntryOrXMLAIT
		return loc
	default:
		return loc
	}
}

func parseDVBLocator(url string, currentService ait.Triplet) Locator {
	loc := Locator{Kind: LocatorUnknown, Params: url}

	pos := strings.Index(url, ".ait/")
	if pos < 0 {
		return loc
	}
	filter := url[len("dvb://"):pos]
	rest := url[pos+len(".ait/"):]

	isCurrentService := filter == "current" || tripletMatches(filter, currentService)
	if !isCurrentService {
		return loc
	}

	params := ""
	cut := strings.IndexAny(rest, "?#")
	if cut >= 0 {
		params = rest[cut:]
		rest = rest[:cut]
	}
	loc.Params = params

	dot := strings.Index(rest, ".")
	if dot < 0 {
		return loc
	}
	orgStr, appStr := rest[:dot], rest[dot+1:]
	orgID, err1 := strconv.ParseUint(orgStr, 16, 32)
	appID, err2 := strconv.ParseUint(appStr, 16, 16)
	if err1 != nil || err2 != nil {
		return loc
	}
	loc.Kind = LocatorAITApplication
	loc.OrgID = uint32(orgID)
	loc.AppID = uint16(appID)
	return loc
}

// tripletMatches parses "onid.tsid.sid" (hex, tsid may be empty) and
// compares it against currentService.
func tripletMatches(filter string, currentService ait.Triplet) bool {
	if currentService.Invalid() {
		return false
	}
	parts := strings.SplitN(filter, ".", 3)
	if len(parts) != 3 {
		return false
	}
	onid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return false
	}
	sid, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return false
	}
	if uint16(onid) != currentService.OriginalNetworkID || uint16(sid) != currentService.ServiceID {
		return false
	}
	if parts[1] == "" {
		return true
	}
	tsid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return false
	}
	return uint16(tsid) == currentService.TransportStreamID
}

// trimTrailingSlashSpace mirrors the original's trim set: whitespace and
// trailing slashes.
func trimTrailingSlashSpace(s string) string {
	return strings.TrimRight(s, " \t\n\r\f\v/")
}

// CompareURLs reports whether a and b are equal once trailing slashes and
// whitespace are stripped from both. Two URLs that both trim to empty are
// never considered equal.
func CompareURLs(a, b string) bool {
	a, b = trimTrailingSlashSpace(a), trimTrailingSlashSpace(b)
	if a == "" || b == "" {
		return false
	}
	return a == b
}

// IsPartOf reports whether documentURL is textually prefixed by appBaseURL,
// once both are trimmed of trailing slashes/whitespace.
func IsPartOf(documentURL, appBaseURL string) bool {
	documentURL = trimTrailingSlashSpace(documentURL)
	appBaseURL = trimTrailingSlashSpace(appBaseURL)
	if documentURL == "" || appBaseURL == "" {
		return false
	}
	return strings.HasPrefix(documentURL, appBaseURL)
}

// Origin returns the RFC 6454 origin ("scheme://host:port") of url,
// defaulting the port to 443 for https and 80 otherwise when none is given.
// Returns "" if url has no recognisable "scheme://host" prefix.
func Origin(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd < 0 {
		return ""
	}
	scheme := url[:schemeEnd]
	rest := url[schemeEnd+3:]

	end := strings.IndexByte(rest, '/')
	authority := rest
	if end >= 0 {
		authority = rest[:end]
	}
	if authority == "" {
		return ""
	}

	host, port := authority, ""
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		host, port = authority[:i], authority[i+1:]
	}
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return scheme + "://" + host + ":" + port
}

// CheckBoundaries reports whether url's origin matches appURI's origin, or
// the origin of any of appBoundaries.
func CheckBoundaries(url, appURI string, appBoundaries []string) bool {
	origin := Origin(url)
	if CompareURLs(origin, Origin(appURI)) {
		return true
	}
	for _, b := range appBoundaries {
		if CompareURLs(origin, Origin(b)) {
			return true
		}
	}
	return false
}
