package app

import (
	"fmt"
	"strings"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
)

// ResolveBaseURL picks the first transport (in declaration order) viable
// for loading desc, and builds its base URL. A transport qualifies when it
// is HTTP, not failed_to_load, and the network is available, or when it is
// an object carousel transport that has not failed to load (the carousel
// client works without IP connectivity). Returns ("", 0) if nothing
// qualifies.
func ResolveBaseURL(desc *ait.Application, currentService ait.Triplet, networkAvailable bool) (string, uint16) {
	for i := range desc.Transports {
		t := &desc.Transports[i]
		switch {
		case t.ProtocolID == ait.ProtocolHTTP && !t.FailedToLoad && networkAvailable:
			return t.BaseURL, t.ProtocolID
		case t.ProtocolID == ait.ProtocolObjectCarousel && !t.FailedToLoad:
			triplet := currentService
			if t.RemoteConnection {
				triplet = t.Triplet
			}
			url := fmt.Sprintf("dvb://%x.%x.%x.%x/", triplet.OriginalNetworkID, triplet.TransportStreamID, triplet.ServiceID, t.ComponentTag)
			return url, t.ProtocolID
		}
	}
	return "", 0
}

// MergeURLParams appends location (stripped of its fragment) to base, then
// appends params — converting any '?' in params to '&' if location's path
// already carries a query string.
func MergeURLParams(base, location, params string) string {
	path := location
	if i := strings.IndexByte(location, '#'); i >= 0 {
		path = location[:i]
	}
	result := base + path
	if strings.Contains(path, "?") {
		params = strings.ReplaceAll(params, "?", "&")
	}
	return result + params
}
