package rpc

import "encoding/json"

// MediaState is the per-connection app.state.media snapshot ("Media
// snapshot"). Fields not required for the declared state are left zero.
type MediaState struct {
	State       string
	Kind        string
	Type        string
	CurrentTime float64
	RangeStart  float64
	RangeEnd    float64

	Accessibility MediaAccessibility
	Metadata      MediaMetadata
}

// MediaAccessibility mirrors the inbound accessibility object: per-feature
// enabled/available pairs for subtitles, audio description, and sign
// language.
type MediaAccessibility struct {
	Subtitles        FeatureAvailability
	AudioDescription FeatureAvailability
	SignLanguage     FeatureAvailability
}

// FeatureAvailability is one accessibility sub-object's enabled/available
// pair.
type FeatureAvailability struct {
	Enabled   bool
	Available bool
}

// MediaMetadata carries the presented content's display title.
type MediaMetadata struct {
	Title string
}

const (
	mediaStateBuffering      = "buffering"
	mediaStatePaused         = "paused"
	mediaStatePlaying        = "playing"
	mediaStateStopped        = "stopped"
	mediaStateNoPresentation = "noPresentation"
)

// parseStateMedia validates and decodes an inbound org.hbbtv.app.state.media
// payload per the conditional schema: required fields escalate with
// the declared state.
func parseStateMedia(raw json.RawMessage) (MediaState, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return MediaState{}, invalidParams("state.media: " + err.Error())
	}

	var state string
	if err := requireString(fields, "state", &state); err != nil {
		return MediaState{}, err
	}

	var ms MediaState
	ms.State = state

	switch state {
	case mediaStateBuffering, mediaStatePaused, mediaStatePlaying, mediaStateStopped:
		if err := requireString(fields, "kind", &ms.Kind); err != nil {
			return MediaState{}, err
		}
		if err := requireString(fields, "type", &ms.Type); err != nil {
			return MediaState{}, err
		}
	}

	switch state {
	case mediaStateBuffering, mediaStatePaused, mediaStatePlaying:
		if err := requireFloat(fields, "currentTime", &ms.CurrentTime); err != nil {
			return MediaState{}, err
		}
		rangeObj, ok := fields["range"]
		if !ok {
			return MediaState{}, invalidParams("state.media: missing range")
		}
		var rangeFields map[string]json.RawMessage
		if err := json.Unmarshal(rangeObj, &rangeFields); err != nil {
			return MediaState{}, invalidParams("state.media: range: " + err.Error())
		}
		if err := requireFloat(rangeFields, "start", &ms.RangeStart); err != nil {
			return MediaState{}, err
		}
		if err := requireFloat(rangeFields, "end", &ms.RangeEnd); err != nil {
			return MediaState{}, err
		}

		accessibilityObj, ok := fields["accessibility"]
		if !ok {
			return MediaState{}, invalidParams("state.media: missing accessibility")
		}
		var err *Error
		ms.Accessibility, err = parseAccessibility(accessibilityObj)
		if err != nil {
			return MediaState{}, err
		}
	}

	if state != mediaStateNoPresentation {
		metadataObj, ok := fields["metadata"]
		if !ok {
			return MediaState{}, invalidParams("state.media: missing metadata")
		}
		var metadataFields map[string]json.RawMessage
		if err := json.Unmarshal(metadataObj, &metadataFields); err != nil {
			return MediaState{}, invalidParams("state.media: metadata: " + err.Error())
		}
		if err := requireString(metadataFields, "title", &ms.Metadata.Title); err != nil {
			return MediaState{}, err
		}
	}

	return ms, nil
}

func parseAccessibility(raw json.RawMessage) (MediaAccessibility, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return MediaAccessibility{}, invalidParams("accessibility: " + err.Error())
	}

	var acc MediaAccessibility
	for name, dst := range map[string]*FeatureAvailability{
		"subtitles":        &acc.Subtitles,
		"audioDescription": &acc.AudioDescription,
		"signLanguage":     &acc.SignLanguage,
	} {
		sub, ok := fields[name]
		if !ok {
			return MediaAccessibility{}, invalidParams("accessibility: missing " + name)
		}
		var subFields map[string]json.RawMessage
		if err := json.Unmarshal(sub, &subFields); err != nil {
			return MediaAccessibility{}, invalidParams("accessibility." + name + ": " + err.Error())
		}
		if err := requireBool(subFields, "enabled", &dst.Enabled); err != nil {
			return MediaAccessibility{}, err
		}
		if err := requireBool(subFields, "available", &dst.Available); err != nil {
			return MediaAccessibility{}, err
		}
	}
	return acc, nil
}

func requireString(fields map[string]json.RawMessage, key string, dst *string) *Error {
	raw, ok := fields[key]
	if !ok {
		return invalidParams("missing " + key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(key + " must be a string")
	}
	return nil
}

func requireFloat(fields map[string]json.RawMessage, key string, dst *float64) *Error {
	raw, ok := fields[key]
	if !ok {
		return invalidParams("missing " + key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(key + " must be a number")
	}
	return nil
}

func requireBool(fields map[string]json.RawMessage, key string, dst *bool) *Error {
	raw, ok := fields[key]
	if !ok {
		return invalidParams("missing " + key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(key + " must be a boolean")
	}
	return nil
}
