// Package manager implements the Application Manager: the single-running-
// application state machine that reconciles broadcast AIT updates, XML AIT
// fetches, and browser navigation events into one authoritative running
// application, the way a terminal's middleware core does.
package manager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
	"github.com/OpenRedButtonProject/orb-core/internal/app"
	"github.com/OpenRedButtonProject/orb-core/internal/metrics"
)

// AITTimeout bounds how long the Manager waits for a complete AIT after a
// channel change before giving up and killing whatever was running.
const AITTimeout = 5000 * time.Millisecond

// RequirementClass orders the privilege tiers is_request_allowed checks,
// each one a strict superset of requirements over the previous.
type RequirementClass int

const (
	ForRunningAppOnly RequirementClass = iota
	ForBroadcastAppOnly
	ForBroadcastOrTransitioningAppOnly
	ForTrustedAppOnly
)

// BrowserCallback is the Manager's sole collaborator interface, consumed
// without the Manager ever depending on a concrete browser/broadcast-stack
// implementation. Calls are made while the Manager's mutex is held and must
// be short and non-blocking — they should return immediately or hand work
// off to their own executor.
type BrowserCallback interface {
	LoadApplication(appID uint16, url string)
	ShowApplication()
	HideApplication()
	StopBroadcast()
	ResetBroadcastPresentation()

	DispatchApplicationLoadError(appID uint16, url string)
	DispatchTransitionedToBroadcastRelated()
	DispatchApplicationSchemeUpdated(appID uint16, scheme string)

	GetXMLAITContents(url string) string

	GetParentalControlAge() int
	GetParentalControlRegion() string
	GetParentalControlRegion3() string
}

// Recorder receives diagnostic audit entries for AIT decode activity and
// application lifecycle transitions. Implementations must not block the
// Manager's mutex for longer than a channel send — internal/store's
// AsyncRecorder hands records off to its own goroutine. A nil Recorder
// (the default) disables recording entirely.
type Recorder interface {
	RecordAITEvent(onid, tsid, sid uint16, source, detail string, tsUnixMs int64)
	RecordAppTransition(appID uint16, orgID uint32, event, reason string, tsUnixMs int64)
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithRecorder attaches a diagnostic audit trail recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// Manager owns the single running application and the broadcast AIT
// reassembly state. All public methods acquire mu; internal helpers
// suffixed Locked assume it is already held.
type Manager struct {
	mu sync.Mutex

	browser  BrowserCallback
	recorder Recorder

	runningApp *app.RunningApplication
	nextAppID  uint16

	currentService                 ait.Triplet
	currentServiceReceivedFirstAIT bool
	currentServiceAITPid           uint16
	table                          *ait.Table

	networkAvailable bool

	aitTimeout *time.Timer
}

// New constructs a Manager with no running application and no current
// service. browser must not be nil.
func New(browser BrowserCallback, opts ...Option) *Manager {
	m := &Manager{
		browser:          browser,
		currentService:   ait.InvalidTriplet,
		networkAvailable: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) recordAIT(source, outcome, detail string) {
	metrics.AITEventsTotal.WithLabelValues(source, outcome).Inc()
	if m.recorder == nil {
		return
	}
	m.recorder.RecordAITEvent(m.currentService.OriginalNetworkID, m.currentService.TransportStreamID, m.currentService.ServiceID, source, detail, time.Now().UnixMilli())
}

func (m *Manager) recordTransition(ra *app.RunningApplication, event, reason string) {
	metrics.AppTransitionsTotal.WithLabelValues(event).Inc()
	if m.recorder == nil || ra == nil {
		return
	}
	m.recorder.RecordAppTransition(ra.ID, ra.OrgID, event, reason, time.Now().UnixMilli())
}

// Get returns an immutable snapshot of the current AIT table, or nil if
// none has completed yet.
func (m *Manager) Get() *ait.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Clone()
}

// RunningAppID returns the id of the currently running application, or
// app.InvalidAppID if nothing is running.
func (m *Manager) RunningAppID() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runningApp == nil {
		return app.InvalidAppID
	}
	return m.runningApp.ID
}

// CreateApplication implements the create_application event: caller must be
// 0 (privileged) or the running app's own id.
func (m *Manager) CreateApplication(caller uint16, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.callerIsPrivilegedOrRunningLocked(caller) {
		return fmt.Errorf("create_application: caller %d is not the running app", caller)
	}

	loc := app.ParseCreateLocator(url, m.currentService)
	switch loc.Kind {
	case app.LocatorAITApplication:
		return m.createFromAITLocatorLocked(loc, url)
	case app.LocatorEntryOrXMLAIT:
		return m.createFromEntryOrXMLAITLocked(url)
	default:
		slog.Warn("create_application: unresolvable locator", "url", url)
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, url)
		return fmt.Errorf("create_application: unresolvable locator %q", url)
	}
}

func (m *Manager) createFromAITLocatorLocked(loc app.Locator, url string) error {
	if m.table == nil {
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, url)
		return fmt.Errorf("create_application: no AIT for org=%x app=%x", loc.OrgID, loc.AppID)
	}
	desc := m.table.FindApp(loc.OrgID, loc.AppID)
	if desc == nil {
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, url)
		return fmt.Errorf("create_application: org=%x app=%x not in current AIT", loc.OrgID, loc.AppID)
	}
	m.killRunningLocked("create_application: replacing running app")
	_, err := m.launchFromDescLocked(desc, true, loc.Params)
	return err
}

func (m *Manager) createFromEntryOrXMLAITLocked(url string) error {
	content := m.browser.GetXMLAITContents(url)
	if content == "" {
		m.killRunningLocked("create_application: loading broadband entry page")
		m.launchBroadbandLocked(url)
		return nil
	}

	table, err := ait.DecodeXML([]byte(content))
	if err != nil {
		slog.Warn("create_application: XML AIT decode failed", "url", url, "error", err)
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, url)
		return fmt.Errorf("create_application: decode XML AIT: %w", err)
	}
	desc := app.AutoStartApp(table, m.browser.GetParentalControlAge(), m.browser.GetParentalControlRegion(), m.browser.GetParentalControlRegion3())
	if desc == nil {
		slog.Info("create_application: XML AIT has no eligible autostart app", "url", url)
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, url)
		return fmt.Errorf("create_application: no autostart app in XML AIT at %q", url)
	}
	m.killRunningLocked("create_application: launching from XML AIT")
	_, err = m.launchFromDescLocked(desc, false, "")
	return err
}

func (m *Manager) launchBroadbandLocked(url string) {
	id := m.assignNextAppIDLocked()
	ra := &app.RunningApplication{
		ID:        id,
		EntryURL:  url,
		LoadedURL: url,
		IsRunning: true,
	}
	m.runningApp = ra
	slog.Info("application launched", "app_id", id, "url", url, "broadcast", false)
	m.recordTransition(ra, "launched", "broadband")
	m.browser.LoadApplication(id, url)
}

// launchFromDescLocked resolves desc's base URL, enforces the parental
// restriction at launch time, assigns an id, and tells the browser to load
// it. broadcast marks whether the new app counts as broadcast-related.
func (m *Manager) launchFromDescLocked(desc *ait.Application, broadcast bool, params string) (*app.RunningApplication, error) {
	if app.IsAgeRestricted(desc.ParentalRatings, m.browser.GetParentalControlAge(), m.browser.GetParentalControlRegion(), m.browser.GetParentalControlRegion3()) {
		slog.Info("application blocked by parental control", "org_id", desc.OrgID, "app_id", desc.AppID)
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, desc.Location)
		return nil, fmt.Errorf("launch: org=%x app=%x is parentally restricted", desc.OrgID, desc.AppID)
	}

	baseURL, protocolID := app.ResolveBaseURL(desc, m.currentService, m.networkAvailable)
	if baseURL == "" {
		slog.Warn("application has no viable transport", "org_id", desc.OrgID, "app_id", desc.AppID)
		m.browser.DispatchApplicationLoadError(app.InvalidAppID, desc.Location)
		return nil, fmt.Errorf("launch: org=%x app=%x has no viable transport", desc.OrgID, desc.AppID)
	}

	entryURL := app.MergeURLParams(baseURL, desc.Location, params)
	id := m.assignNextAppIDLocked()
	ra := &app.RunningApplication{
		ID:                  id,
		OrgID:               desc.OrgID,
		AppID:               desc.AppID,
		EntryURL:            entryURL,
		LoadedURL:           entryURL,
		BaseURL:             baseURL,
		TransportProtocolID: protocolID,
		IsBroadcast:         broadcast,
		IsServiceBound:      desc.ServiceBound,
		IsRunning:           true,
		ParentalRatings:     desc.ParentalRatings,
		Boundaries:          desc.Boundaries,
	}
	m.runningApp = ra
	slog.Info("application launched", "app_id", id, "org_id", desc.OrgID, "ait_app_id", desc.AppID, "url", entryURL, "broadcast", broadcast)
	reason := "broadband"
	if broadcast {
		reason = "broadcast"
	}
	m.recordTransition(ra, "launched", reason)
	m.browser.LoadApplication(id, entryURL)
	return ra, nil
}

// launchAutostartLocked picks AutoStartApp from the current broadcast AIT
// (if any) and launches it as broadcast-related. A no-op if nothing is
// eligible.
func (m *Manager) launchAutostartLocked() {
	if m.table == nil {
		return
	}
	desc := app.AutoStartApp(m.table, m.browser.GetParentalControlAge(), m.browser.GetParentalControlRegion(), m.browser.GetParentalControlRegion3())
	if desc == nil {
		slog.Debug("autostart: no eligible application in current AIT")
		return
	}
	if _, err := m.launchFromDescLocked(desc, true, ""); err != nil {
		slog.Warn("autostart: launch failed", "error", err)
	}
}

// DestroyApplication implements destroy_application: caller must be the
// running app's own id.
func (m *Manager) DestroyApplication(caller uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningApp == nil || m.runningApp.ID != caller {
		return fmt.Errorf("destroy_application: caller %d is not the running app", caller)
	}
	m.killRunningLocked("destroy_application")
	if !m.currentService.Invalid() {
		m.launchAutostartLocked()
	}
	return nil
}

// ShowApplication implements show_application.
func (m *Manager) ShowApplication(caller uint16) error {
	return m.setHiddenLocked(caller, false)
}

// HideApplication implements hide_application.
func (m *Manager) HideApplication(caller uint16) error {
	return m.setHiddenLocked(caller, true)
}

func (m *Manager) setHiddenLocked(caller uint16, hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningApp == nil || m.runningApp.ID != caller {
		return fmt.Errorf("show/hide_application: caller %d is not the running app", caller)
	}
	if m.runningApp.IsHidden == hidden {
		return nil
	}
	m.runningApp.IsHidden = hidden
	if !m.runningApp.IsRunning {
		return nil
	}
	if hidden {
		m.browser.HideApplication()
	} else {
		m.browser.ShowApplication()
	}
	return nil
}

// ProcessAITSection implements process_ait_section: pid changes discard the
// in-progress table; section_id must match the currently tuned service.
func (m *Manager) ProcessAITSection(pid uint16, serviceID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentService.Invalid() || serviceID != m.currentService.ServiceID {
		return fmt.Errorf("process_ait_section: service_id %#x does not match current service", serviceID)
	}
	if pid != m.currentServiceAITPid {
		slog.Debug("process_ait_section: PID changed, discarding in-progress AIT", "old_pid", m.currentServiceAITPid, "new_pid", pid)
		m.table = nil
		m.currentServiceAITPid = pid
	}

	newTable, updated, err := ait.DecodeBinarySection(m.table, data)
	if err != nil {
		slog.Warn("process_ait_section: decode failed", "error", err)
		m.recordAIT("binary", "error", "decode failed: "+err.Error())
		return fmt.Errorf("process_ait_section: %w", err)
	}
	m.table = newTable
	if !updated || m.table == nil || !m.table.Complete() {
		return nil
	}
	m.recordAIT("binary", "ok", "section complete")

	if !m.currentServiceReceivedFirstAIT {
		m.currentServiceReceivedFirstAIT = true
		m.stopAITTimeoutLocked()
		m.onFirstAITLocked()
	} else {
		m.onUpdatedAITLocked()
	}
	return nil
}

// ProcessXMLAIT implements process_xml_ait: parse and launch the best
// autostart candidate, unconditionally (no running-app precondition).
func (m *Manager) ProcessXMLAIT(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := ait.DecodeXML(data)
	if err != nil {
		m.recordAIT("xml", "error", "decode failed: "+err.Error())
		return fmt.Errorf("process_xml_ait: %w", err)
	}
	desc := app.AutoStartApp(table, m.browser.GetParentalControlAge(), m.browser.GetParentalControlRegion(), m.browser.GetParentalControlRegion3())
	if desc == nil {
		m.recordAIT("xml", "error", "no eligible autostart app")
		return fmt.Errorf("process_xml_ait: no eligible autostart app")
	}
	m.recordAIT("xml", "ok", "autostart app selected")
	m.killRunningLocked("process_xml_ait")
	_, err = m.launchFromDescLocked(desc, false, "")
	return err
}

// onFirstAITLocked runs when the broadcast AIT for the current service
// completes for the first time since the last channel change.
func (m *Manager) onFirstAITLocked() {
	switch {
	case m.runningApp != nil && m.runningApp.IsBroadcast:
		if m.shouldKillBroadcastAppLocked(true) {
			m.killRunningLocked("on_first_ait: kill trigger")
		}
	case m.runningApp != nil && !m.runningApp.IsBroadcast:
		if !m.transitionToBroadcastRelatedLocked() {
			m.killRunningLocked("on_first_ait: transition to broadcast-related failed")
		}
	}
	if m.runningApp == nil {
		m.launchAutostartLocked()
	}
}

// onUpdatedAITLocked runs on every subsequent completion of the broadcast
// AIT for the current service (new version, or a later section rewriting
// an already-complete table).
func (m *Manager) onUpdatedAITLocked() {
	if m.runningApp != nil && m.runningApp.IsBroadcast && m.shouldKillBroadcastAppLocked(false) {
		m.killRunningLocked("on_updated_ait: kill trigger")
	}
	if m.runningApp == nil {
		m.launchAutostartLocked()
	}
}

// shouldKillBroadcastAppLocked reports the kill triggers for the currently
// running broadcast-related app: absent from the new table, explicitly
// signalled KILL, or present without the same transport protocol it was
// loaded through. checkServiceBound additionally kills a service-bound app
// unconditionally — on_first_ait_received does this, on_updated_ait does not.
func (m *Manager) shouldKillBroadcastAppLocked(checkServiceBound bool) bool {
	if checkServiceBound && m.runningApp.IsServiceBound {
		return true
	}
	if m.table == nil {
		return true
	}
	desc := m.table.FindApp(m.runningApp.OrgID, m.runningApp.AppID)
	if desc == nil {
		return true
	}
	if desc.ControlCode == ait.ControlKill {
		return true
	}
	if _, ok := desc.Transport(m.runningApp.TransportProtocolID); !ok {
		return true
	}
	return false
}

// transitionToBroadcastRelatedLocked attempts to promote the running
// broadcast-independent app to broadcast-related: its (org,app)
// must appear in the new AIT as AUTOSTART or PRESENT with an HTTP
// transport whose base_url (extended by boundaries) contains both
// entry_url and loaded_url.
func (m *Manager) transitionToBroadcastRelatedLocked() bool {
	if m.table == nil {
		return false
	}
	desc := m.table.FindApp(m.runningApp.OrgID, m.runningApp.AppID)
	if desc == nil {
		return false
	}
	if desc.ControlCode != ait.ControlAutostart && desc.ControlCode != ait.ControlPresent {
		return false
	}
	transport, ok := desc.Transport(ait.ProtocolHTTP)
	if !ok {
		return false
	}
	if !app.CheckBoundaries(m.runningApp.EntryURL, transport.BaseURL, desc.Boundaries) {
		return false
	}
	if !app.CheckBoundaries(m.runningApp.LoadedURL, transport.BaseURL, desc.Boundaries) {
		return false
	}
	m.runningApp.IsBroadcast = true
	m.runningApp.IsServiceBound = desc.ServiceBound
	slog.Info("application transitioned to broadcast-related", "app_id", m.runningApp.ID)
	m.browser.DispatchTransitionedToBroadcastRelated()
	return true
}

// transitionToBroadcastIndependentLocked demotes a broadcast-related app to
// broadcast-independent on broadcast stop; service-bound apps cannot make
// this transition and must be killed instead.
func (m *Manager) transitionToBroadcastIndependentLocked() bool {
	if m.runningApp.IsServiceBound {
		return false
	}
	m.runningApp.IsBroadcast = false
	return true
}

// OnBroadcastStopped implements on_broadcast_stopped.
func (m *Manager) OnBroadcastStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearServiceStateLocked()

	if m.runningApp != nil && m.runningApp.IsBroadcast {
		if !m.transitionToBroadcastIndependentLocked() {
			m.killRunningLocked("on_broadcast_stopped: service-bound app cannot transition")
		}
	}
}

// OnChannelChanged implements on_channel_changed.
func (m *Manager) OnChannelChanged(service ait.Triplet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearServiceStateLocked()
	m.currentService = service
	m.startAITTimeoutLocked()
}

func (m *Manager) clearServiceStateLocked() {
	m.currentService = ait.InvalidTriplet
	m.currentServiceAITPid = 0
	m.currentServiceReceivedFirstAIT = false
	m.table = nil
	m.stopAITTimeoutLocked()
}

// OnNetworkAvailabilityChanged implements on_network_availability_changed.
func (m *Manager) OnNetworkAvailabilityChanged(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkAvailable = available
}

// OnLoadApplicationFailed implements on_load_application_failed: marks the
// transport the app was loading through as failed so the next autostart
// selection skips it, kills the app, then retries autostart.
func (m *Manager) OnLoadApplicationFailed(appID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningApp == nil || m.runningApp.ID != appID {
		return
	}
	if m.table != nil {
		if desc := m.table.FindApp(m.runningApp.OrgID, m.runningApp.AppID); desc != nil {
			if t, ok := desc.Transport(m.runningApp.TransportProtocolID); ok {
				t.FailedToLoad = true
			}
		}
	}
	m.killRunningLocked("on_load_application_failed")
	m.launchAutostartLocked()
}

// OnApplicationPageChanged implements on_application_page_changed.
func (m *Manager) OnApplicationPageChanged(appID uint16, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningApp == nil || m.runningApp.ID != appID {
		return
	}
	m.runningApp.LoadedURL = url
	if m.runningApp.IsBroadcast {
		m.browser.ResetBroadcastPresentation()
	}
}

// IsRequestAllowed implements is_request_allowed, the four-tier
// authorisation gate external components consult before honoring a
// privileged API call from the app identified by caller.
func (m *Manager) IsRequestAllowed(caller uint16, callingPageURL string, requirement RequirementClass) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningApp == nil || m.runningApp.ID != caller {
		return false
	}
	if callingPageURL == "" || callingPageURL == "about:blank" {
		return false
	}
	if requirement == ForRunningAppOnly {
		return true
	}
	if !m.runningApp.IsBroadcast {
		return false
	}
	if requirement == ForBroadcastAppOnly {
		return true
	}
	if m.currentService.Invalid() {
		return false
	}
	if requirement == ForBroadcastOrTransitioningAppOnly {
		return true
	}
	if !app.CheckBoundaries(callingPageURL, m.runningApp.BaseURL, m.runningApp.Boundaries) {
		return false
	}
	return m.runningApp.IsTrusted
}

func (m *Manager) callerIsPrivilegedOrRunningLocked(caller uint16) bool {
	if caller == 0 {
		return true
	}
	return m.runningApp != nil && m.runningApp.ID == caller
}

// assignNextAppIDLocked returns the next application id, wrapping past
// app.InvalidAppID (0) which is reserved.
func (m *Manager) assignNextAppIDLocked() uint16 {
	m.nextAppID++
	if m.nextAppID == app.InvalidAppID {
		m.nextAppID++
	}
	return m.nextAppID
}

// killRunningLocked hides, tells the browser to fall back to about:blank
// under a freshly assigned id, marks the app not running, and clears it —
// matching the source's KillRunning: hide, bump next_app_id skipping 0,
// load about:blank with the new id, mark is_running false.
func (m *Manager) killRunningLocked(reason string) {
	if m.runningApp == nil {
		return
	}
	killed := m.runningApp
	m.browser.HideApplication()
	newID := m.assignNextAppIDLocked()
	m.browser.LoadApplication(newID, "about:blank")
	killed.IsRunning = false
	slog.Info("application killed", "app_id", killed.ID, "reason", reason)
	m.recordTransition(killed, "killed", reason)
	m.runningApp = nil
}

func (m *Manager) startAITTimeoutLocked() {
	m.stopAITTimeoutLocked()
	m.aitTimeout = time.AfterFunc(AITTimeout, m.onAITTimeout)
}

func (m *Manager) stopAITTimeoutLocked() {
	if m.aitTimeout != nil {
		m.aitTimeout.Stop()
		m.aitTimeout = nil
	}
}

// onAITTimeout fires on its own goroutine when no complete AIT arrived
// within AITTimeout of a channel change. Kills the running app; there is no
// AIT to autostart from.
func (m *Manager) onAITTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Info("ait_timeout: no complete AIT received in time")
	m.killRunningLocked("ait_timeout")
}
