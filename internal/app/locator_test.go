package app

import (
	"testing"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
)

func TestParseCreateLocatorCurrentService(t *testing.T) {
	loc := ParseCreateLocator("dvb://current.ait/1.2a?x=1", ait.InvalidTriplet)
	if loc.Kind != LocatorAITApplication {
		t.Fatalf("expected AIT_APPLICATION, got %v", loc.Kind)
	}
	if loc.OrgID != 1 || loc.AppID != 0x2a {
		t.Fatalf("unexpected ids: org=%x app=%x", loc.OrgID, loc.AppID)
	}
	if loc.Params != "?x=1" {
		t.Fatalf("unexpected params: %q", loc.Params)
	}
}

func TestParseCreateLocatorTriplet(t *testing.T) {
	current := ait.Triplet{OriginalNetworkID: 0x1, TransportStreamID: 0x2, ServiceID: 0x3}
	loc := ParseCreateLocator("dvb://1..3.ait/a.b", current)
	if loc.Kind != LocatorAITApplication {
		t.Fatalf("expected AIT_APPLICATION with empty tsid, got %v", loc.Kind)
	}
	if loc.OrgID != 0xa || loc.AppID != 0xb {
		t.Fatalf("unexpected ids: %x %x", loc.OrgID, loc.AppID)
	}
}

func TestParseCreateLocatorNotCurrentService(t *testing.T) {
	current := ait.Triplet{OriginalNetworkID: 0x1, TransportStreamID: 0x2, ServiceID: 0x3}
	loc := ParseCreateLocator("dvb://9.9.9.ait/a.b", current)
	if loc.Kind != LocatorUnknown {
		t.Fatalf("expected UNKNOWN for mismatched triplet, got %v", loc.Kind)
	}
}

func TestParseCreateLocatorHTTP(t *testing.T) {
	loc := ParseCreateLocator("https://example.com/app.xml", ait.InvalidTriplet)
	if loc.Kind != LocatorEntryOrXMLAIT {
		t.Fatalf("expected ENTRY_OR_XML_AIT, got %v", loc.Kind)
	}
}

func TestParseCreateLocatorUnknownScheme(t *testing.T) {
	loc := ParseCreateLocator("ftp://example.com", ait.InvalidTriplet)
	if loc.Kind != LocatorUnknown {
		t.Fatalf("expected UNKNOWN, got %v", loc.Kind)
	}
}

func TestCompareURLsIgnoresTrailingSlash(t *testing.T) {
	if !CompareURLs("http://x.com/", "http://x.com") {
		t.Fatal("expected trailing-slash-insensitive match")
	}
	if CompareURLs("", "") {
		t.Fatal("expected two empty-after-trim URLs to never match")
	}
}

func TestOriginDefaultsPort(t *testing.T) {
	if got := Origin("https://example.com/path"); got != "https://example.com:443" {
		t.Fatalf("unexpected origin: %q", got)
	}
	if got := Origin("http://example.com/path"); got != "http://example.com:80" {
		t.Fatalf("unexpected origin: %q", got)
	}
	if got := Origin("http://example.com:8080/path"); got != "http://example.com:8080" {
		t.Fatalf("unexpected origin: %q", got)
	}
}

func TestCheckBoundariesExtraBoundary(t *testing.T) {
	ok := CheckBoundaries("https://cdn.example.org/x", "https://example.com/", []string{"https://cdn.example.org/"})
	if !ok {
		t.Fatal("expected boundary match via extra boundary origin")
	}
	if CheckBoundaries("https://evil.com/x", "https://example.com/", nil) {
		t.Fatal("expected no match outside app origin and boundaries")
	}
}
