package manager

import (
	"testing"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
	"github.com/OpenRedButtonProject/orb-core/internal/app"
)

// fakeBrowser is a hand-rolled stand-in for BrowserCallback recording every
// call so tests can assert on sequences without a mocking library.
type fakeBrowser struct {
	loads         []loadCall
	shown         int
	hidden        int
	loadErrors    []loadErrorCall
	transitioned  int
	schemeUpdates []schemeUpdateCall

	xmlAITContents map[string]string

	age     int
	region2 string
	region3 string
}

type loadCall struct {
	appID uint16
	url   string
}

type loadErrorCall struct {
	appID uint16
	url   string
}

type schemeUpdateCall struct {
	appID  uint16
	scheme string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		xmlAITContents: make(map[string]string),
		region2:        "GB",
		region3:        "GBR",
	}
}

func (f *fakeBrowser) LoadApplication(appID uint16, url string) {
	f.loads = append(f.loads, loadCall{appID, url})
}
func (f *fakeBrowser) ShowApplication()           { f.shown++ }
func (f *fakeBrowser) HideApplication()           { f.hidden++ }
func (f *fakeBrowser) StopBroadcast()             {}
func (f *fakeBrowser) ResetBroadcastPresentation() {}

func (f *fakeBrowser) DispatchApplicationLoadError(appID uint16, url string) {
	f.loadErrors = append(f.loadErrors, loadErrorCall{appID, url})
}
func (f *fakeBrowser) DispatchTransitionedToBroadcastRelated() { f.transitioned++ }
func (f *fakeBrowser) DispatchApplicationSchemeUpdated(appID uint16, scheme string) {
	f.schemeUpdates = append(f.schemeUpdates, schemeUpdateCall{appID, scheme})
}

func (f *fakeBrowser) GetXMLAITContents(url string) string { return f.xmlAITContents[url] }

func (f *fakeBrowser) GetParentalControlAge() int        { return f.age }
func (f *fakeBrowser) GetParentalControlRegion() string  { return f.region2 }
func (f *fakeBrowser) GetParentalControlRegion3() string { return f.region3 }

func (f *fakeBrowser) lastLoad() loadCall {
	if len(f.loads) == 0 {
		return loadCall{}
	}
	return f.loads[len(f.loads)-1]
}

func autostartDesc(orgID uint32, appID uint16, priority uint8) *ait.Application {
	a := &ait.Application{
		OrgID:        orgID,
		AppID:        appID,
		ControlCode:  ait.ControlAutostart,
		Priority:     priority,
		ServiceBound: true,
		Profiles:     []ait.AppProfile{{Major: 1, Minor: 6, Micro: 1}},
	}
	a.PutTransport(ait.Transport{ProtocolID: ait.ProtocolHTTP, BaseURL: "http://x/"})
	return a
}

// tableWith builds an already-complete AIT table directly, bypassing
// section decoding — the AIT decode pipeline has its own tests; these
// exercise the state machine given a finished table.
func tableWith(apps ...*ait.Application) *ait.Table {
	return &ait.Table{AppType: ait.AppTypeHbbTV, Apps: apps}
}

func TestAutostartOnFirstAIT(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	lowPriority := autostartDesc(1, 2, 3)
	highPriority := autostartDesc(1, 3, 5)
	table := tableWith(lowPriority, highPriority)
	table.Version = 1

	m.mu.Lock()
	m.table = table
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	m.mu.Unlock()

	got := fb.lastLoad()
	if got.url != "http://x/" {
		t.Fatalf("expected highest-priority app loaded, got %+v", got)
	}
	if m.RunningAppID() == app.InvalidAppID {
		t.Fatal("expected an app to be running after autostart")
	}
}

func TestVersionBumpKillsAbsentApp(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	descA := autostartDesc(1, 2, 5)
	m.mu.Lock()
	m.table = tableWith(descA)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	runningID := m.runningApp.ID
	m.mu.Unlock()

	if runningID == app.InvalidAppID {
		t.Fatal("expected app A to be running")
	}

	// New version omits A but carries a new autostart app B.
	descB := autostartDesc(9, 9, 1)
	m.mu.Lock()
	m.table = tableWith(descB)
	m.onUpdatedAITLocked()
	newRunningID := m.runningApp.ID
	m.mu.Unlock()

	if newRunningID == runningID {
		t.Fatal("expected app A to be killed and replaced")
	}
	if fb.hidden == 0 {
		t.Fatal("expected browser.HideApplication to be called on kill")
	}
	foundAboutBlank := false
	for _, l := range fb.loads {
		if l.url == "about:blank" {
			foundAboutBlank = true
		}
	}
	if !foundAboutBlank {
		t.Fatal("expected about:blank load as part of kill")
	}
}

// TestUpdatedAITDoesNotRecheckServiceBound confirms on_updated_ait's kill
// trigger is absent/KILL/transport-mismatch only: a service-bound app still
// present in the new table with a matching transport must survive an AIT
// update, even though on_first_ait would kill any service-bound app outright.
func TestUpdatedAITDoesNotRecheckServiceBound(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	descA := autostartDesc(1, 2, 5) // ServiceBound: true
	m.mu.Lock()
	m.table = tableWith(descA)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	runningID := m.runningApp.ID
	m.mu.Unlock()

	if runningID == app.InvalidAppID {
		t.Fatal("expected app A to be running")
	}

	// New version still carries A, same transport, not signalled KILL.
	m.mu.Lock()
	m.table = tableWith(autostartDesc(1, 2, 5))
	m.onUpdatedAITLocked()
	stillRunningID := m.runningApp.ID
	m.mu.Unlock()

	if stillRunningID != runningID {
		t.Fatalf("expected service-bound app to survive on_updated_ait, got new running id %v", stillRunningID)
	}
}

func TestBroadcastStopLeavesNonServiceBoundAppRunning(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	desc := autostartDesc(1, 2, 5)
	desc.ServiceBound = false
	m.mu.Lock()
	m.table = tableWith(desc)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	m.mu.Unlock()

	if m.RunningAppID() == app.InvalidAppID {
		t.Fatal("expected app to be running before broadcast stop")
	}

	m.OnBroadcastStopped()

	if m.RunningAppID() == app.InvalidAppID {
		t.Fatal("expected non-service-bound app to survive broadcast stop")
	}
	m.mu.Lock()
	isBroadcast := m.runningApp.IsBroadcast
	m.mu.Unlock()
	if isBroadcast {
		t.Fatal("expected app to become broadcast-independent after broadcast stop")
	}
}

func TestBroadcastStopKillsServiceBoundApp(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	desc := autostartDesc(1, 2, 5) // ServiceBound: true
	m.mu.Lock()
	m.table = tableWith(desc)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	m.mu.Unlock()

	m.OnBroadcastStopped()

	if m.RunningAppID() != app.InvalidAppID {
		t.Fatal("expected service-bound app to be killed on broadcast stop")
	}
}

func TestParentalBlockThenAgeChangeLaunches(t *testing.T) {
	fb := newFakeBrowser()
	fb.age = 12
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	desc := autostartDesc(1, 2, 5)
	desc.ParentalRatings = []ait.ParentalRating{{Scheme: "dvb-si", Region: "GB", Value: 18}}
	m.mu.Lock()
	m.table = tableWith(desc)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	m.mu.Unlock()

	if m.RunningAppID() != app.InvalidAppID {
		t.Fatal("expected app to be blocked by parental control at age 12")
	}

	fb.age = 18
	m.mu.Lock()
	m.launchAutostartLocked()
	m.mu.Unlock()

	if m.RunningAppID() == app.InvalidAppID {
		t.Fatal("expected app to launch once age meets the rating")
	}
}

func TestDestroyApplicationRejectsWrongCaller(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})
	m.mu.Lock()
	m.table = tableWith(autostartDesc(1, 2, 5))
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	m.mu.Unlock()

	if err := m.DestroyApplication(999); err == nil {
		t.Fatal("expected destroy_application from a non-running caller to be rejected")
	}
}

func TestIsRequestAllowedTiers(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})
	desc := autostartDesc(1, 2, 5)
	m.mu.Lock()
	m.table = tableWith(desc)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	id := m.runningApp.ID
	m.runningApp.IsTrusted = true
	m.mu.Unlock()

	if !m.IsRequestAllowed(id, "http://x/page", ForRunningAppOnly) {
		t.Fatal("expected FOR_RUNNING_APP_ONLY to pass for the running app")
	}
	if !m.IsRequestAllowed(id, "http://x/page", ForBroadcastAppOnly) {
		t.Fatal("expected FOR_BROADCAST_APP_ONLY to pass for a broadcast-related app")
	}
	if !m.IsRequestAllowed(id, "http://x/page", ForBroadcastOrTransitioningAppOnly) {
		t.Fatal("expected FOR_BROADCAST_OR_TRANSITIONING_APP_ONLY to pass with a valid current service")
	}
	if !m.IsRequestAllowed(id, "http://x/page", ForTrustedAppOnly) {
		t.Fatal("expected FOR_TRUSTED_APP_ONLY to pass for a trusted app within its own boundary")
	}
	if m.IsRequestAllowed(id, "about:blank", ForRunningAppOnly) {
		t.Fatal("expected about:blank calling page to always fail")
	}
	if m.IsRequestAllowed(id+1, "http://x/page", ForRunningAppOnly) {
		t.Fatal("expected a non-matching caller id to always fail")
	}
}

func TestHideApplicationIsIdempotent(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})
	m.mu.Lock()
	m.table = tableWith(autostartDesc(1, 2, 5))
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	id := m.runningApp.ID
	m.mu.Unlock()

	if err := m.HideApplication(id); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := m.HideApplication(id); err != nil {
		t.Fatalf("second hide: %v", err)
	}
	if fb.hidden != 1 {
		t.Fatalf("expected exactly one HideApplication call across two hide_application calls, got %d", fb.hidden)
	}
}

func TestOnLoadApplicationFailedMarksTransportAndRetries(t *testing.T) {
	fb := newFakeBrowser()
	m := New(fb)
	m.OnChannelChanged(ait.Triplet{OriginalNetworkID: 1, TransportStreamID: 2, ServiceID: 3})

	failing := autostartDesc(1, 2, 9)
	fallback := autostartDesc(9, 9, 1)
	m.mu.Lock()
	m.table = tableWith(failing, fallback)
	m.onFirstAITLocked()
	m.currentServiceReceivedFirstAIT = true
	failedID := m.runningApp.ID
	m.mu.Unlock()

	if m.runningApp.OrgID != 1 {
		t.Fatalf("expected highest-priority app (org=1) to launch first")
	}

	m.OnLoadApplicationFailed(failedID)

	m.mu.Lock()
	transport, ok := failing.Transport(ait.ProtocolHTTP)
	m.mu.Unlock()
	if !ok || !transport.FailedToLoad {
		t.Fatal("expected the failed app's transport to be marked failed_to_load")
	}
	if m.runningApp == nil || m.runningApp.OrgID != 9 {
		t.Fatal("expected fallback autostart app to be running after load failure")
	}
}
