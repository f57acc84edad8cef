// Package browser provides the terminal-side implementation of the
// Application Manager's BrowserCallback: it owns no actual rendering
// surface (out of scope for this middleware), so application lifecycle
// calls are logged for observability while XML AIT retrieval and parental
// control configuration are real.
package browser

import (
	"log/slog"
	"sync"

	"github.com/OpenRedButtonProject/orb-core/internal/fetch"
)

// ParentalControl holds the terminal's configured parental control
// settings, consulted by the Application Manager on every launch decision.
type ParentalControl struct {
	Age     int
	Region  string
	Region3 string
}

// Terminal implements manager.BrowserCallback. Application lifecycle
// callbacks log the requested transition; a real rendering engine would
// intercept these instead.
type Terminal struct {
	fetcher *fetch.Client

	mu sync.RWMutex
	pc ParentalControl
}

// NewTerminal constructs a Terminal with the given initial parental
// control configuration.
func NewTerminal(pc ParentalControl) *Terminal {
	return &Terminal{fetcher: fetch.NewClient(), pc: pc}
}

// SetParentalControl updates the parental control configuration consulted
// on subsequent launch decisions.
func (t *Terminal) SetParentalControl(pc ParentalControl) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pc = pc
}

func (t *Terminal) LoadApplication(appID uint16, url string) {
	slog.Info("browser: load application", "app_id", appID, "url", url)
}

func (t *Terminal) ShowApplication() {
	slog.Info("browser: show application")
}

func (t *Terminal) HideApplication() {
	slog.Info("browser: hide application")
}

func (t *Terminal) StopBroadcast() {
	slog.Info("browser: stop broadcast")
}

func (t *Terminal) ResetBroadcastPresentation() {
	slog.Info("browser: reset broadcast presentation")
}

func (t *Terminal) DispatchApplicationLoadError(appID uint16, url string) {
	slog.Warn("browser: application load error", "app_id", appID, "url", url)
}

func (t *Terminal) DispatchTransitionedToBroadcastRelated() {
	slog.Info("browser: transitioned to broadcast-related")
}

func (t *Terminal) DispatchApplicationSchemeUpdated(appID uint16, scheme string) {
	slog.Info("browser: application scheme updated", "app_id", appID, "scheme", scheme)
}

func (t *Terminal) GetXMLAITContents(url string) string {
	return t.fetcher.GetXMLAITContents(url)
}

func (t *Terminal) GetParentalControlAge() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pc.Age
}

func (t *Terminal) GetParentalControlRegion() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pc.Region
}

func (t *Terminal) GetParentalControlRegion3() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pc.Region3
}
