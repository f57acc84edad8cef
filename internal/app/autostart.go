package app

import (
	"strings"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
)

// IsAgeRestricted reports whether ratings bar playback for the given
// parental-control age/region. An app with no ratings at all is never
// restricted. Otherwise it is restricted unless at least one rating uses
// the "dvb-si" scheme, matches the terminal's 2- or 3-letter region
// case-insensitively, and its value is at or below the terminal's age.
func IsAgeRestricted(ratings []ait.ParentalRating, age int, region2, region3 string) bool {
	if len(ratings) == 0 {
		return false
	}
	for _, pr := range ratings {
		if pr.Scheme != "dvb-si" {
			continue
		}
		regionMatches := (len(pr.Region) == 2 && strings.EqualFold(pr.Region, region2)) ||
			(len(pr.Region) == 3 && strings.EqualFold(pr.Region, region3))
		if regionMatches && int(pr.Value) <= age {
			return false
		}
	}
	return true
}

func hasViableTransport(a *ait.Application) bool {
	for i := range a.Transports {
		t := &a.Transports[i]
		if (t.ProtocolID == ait.ProtocolHTTP || t.ProtocolID == ait.ProtocolObjectCarousel) && !t.FailedToLoad {
			return true
		}
	}
	return false
}

// AutoStartApp scans table for the best AUTOSTART candidate: eligible for
// this terminal's HbbTV version, not parentally restricted, with at least
// one viable transport. Ties on priority favor the first-seen app, matching
// the original's strict "<" comparison (a later equal-priority candidate
// never displaces an earlier one).
func AutoStartApp(table *ait.Table, age int, region2, region3 string) *ait.Application {
	if table == nil {
		return nil
	}
	var best *ait.Application
	for _, candidate := range table.Apps {
		if candidate.ControlCode != ait.ControlAutostart {
			continue
		}
		if !candidate.EligibleForAutostart(HbbTVVersionMajor, HbbTVVersionMinor, HbbTVVersionMicro) {
			continue
		}
		if IsAgeRestricted(candidate.ParentalRatings, age, region2, region3) {
			continue
		}
		if !hasViableTransport(candidate) {
			continue
		}
		if best == nil || best.Priority < candidate.Priority {
			best = candidate
		}
	}
	return best
}

// TeletextApp returns the first app in table flagged for teletext usage,
// or nil.
func TeletextApp(table *ait.Table) *ait.Application {
	if table == nil {
		return nil
	}
	for _, a := range table.Apps {
		if a.UsageType == ait.UsageTeletext {
			return a
		}
	}
	return nil
}
