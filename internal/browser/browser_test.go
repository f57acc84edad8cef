package browser

import "testing"

func TestParentalControlGettersReflectConfiguration(t *testing.T) {
	term := NewTerminal(ParentalControl{Age: 12, Region: "GB", Region3: "GBR"})
	if term.GetParentalControlAge() != 12 {
		t.Fatalf("expected age 12, got %d", term.GetParentalControlAge())
	}
	if term.GetParentalControlRegion() != "GB" || term.GetParentalControlRegion3() != "GBR" {
		t.Fatalf("unexpected region fields: %q %q", term.GetParentalControlRegion(), term.GetParentalControlRegion3())
	}

	term.SetParentalControl(ParentalControl{Age: 18, Region: "US", Region3: "USA"})
	if term.GetParentalControlAge() != 18 {
		t.Fatalf("expected updated age 18, got %d", term.GetParentalControlAge())
	}
}

func TestApplicationLifecycleCallbacksDoNotPanic(t *testing.T) {
	term := NewTerminal(ParentalControl{})
	term.LoadApplication(1, "https://example.com")
	term.ShowApplication()
	term.HideApplication()
	term.StopBroadcast()
	term.ResetBroadcastPresentation()
	term.DispatchApplicationLoadError(1, "https://example.com")
	term.DispatchTransitionedToBroadcastRelated()
	term.DispatchApplicationSchemeUpdated(1, "https")
}
