package rpc

// Method names. App→terminal methods are handled by Dispatch;
// terminal→app methods are only ever sent, never received, and exist here
// so negotiateMethods and the notification fan-out can validate against
// the same fixed vocabulary.
const (
	MethodNegotiate        = "org.hbbtv.negotiateMethods"
	MethodSubscribe        = "org.hbbtv.subscribe"
	MethodUnsubscribe      = "org.hbbtv.unsubscribe"
	MethodVoiceReady       = "org.hbbtv.app.voice.ready"
	MethodStateMedia       = "org.hbbtv.app.state.media"
	MethodNotify           = "org.hbbtv.notify"
	MethodAFSupportInfo    = "org.hbbtv.af.featureSupportInfo"
	MethodAFSettingsQuery  = "org.hbbtv.af.featureSettingsQuery"
	MethodAFSuppress       = "org.hbbtv.af.featureSuppress"
	MethodAFDialogueEnh    = "org.hbbtv.af.dialogueEnhancementOverride"
	MethodAFTriggerAction  = "org.hbbtv.af.triggerResponseToUserAction"
	MethodIntentMediaPause = "org.hbbtv.app.intent.media.pause"
	MethodIntentMediaPlay  = "org.hbbtv.app.intent.media.play"
	MethodIntentMediaFF    = "org.hbbtv.app.intent.media.fast-forward"
	MethodIntentMediaFR    = "org.hbbtv.app.intent.media.fast-reverse"
	MethodIntentMediaStop  = "org.hbbtv.app.intent.media.stop"

	MethodIntentSeekContent   = "org.hbbtv.app.intent.media.seek-content"
	MethodIntentSeekRelative  = "org.hbbtv.app.intent.media.seek-relative"
	MethodIntentSeekLive      = "org.hbbtv.app.intent.media.seek-live"
	MethodIntentSeekWallclock = "org.hbbtv.app.intent.media.seek-wallclock"

	MethodIntentSearch   = "org.hbbtv.app.intent.search"
	MethodIntentDisplay  = "org.hbbtv.app.intent.display"
	MethodIntentPlayback = "org.hbbtv.app.intent.playback"

	MethodIPPlaybackStatus     = "org.hbbtv.ipplayback.status"
	MethodIPPlaybackPosition   = "org.hbbtv.ipplayback.position"
	MethodIPPlaybackComponents = "org.hbbtv.ipplayback.components"
	MethodIPPlaybackTimeline   = "org.hbbtv.ipplayback.timeline"
)

// supportedAppToTerminal is every method this terminal accepts from an app.
// negotiateMethods intersects the app's requested list against this set.
var supportedAppToTerminal = map[string]bool{
	MethodSubscribe:       true,
	MethodUnsubscribe:     true,
	MethodVoiceReady:      true,
	MethodStateMedia:      true,
	MethodAFSupportInfo:   true,
	MethodAFSettingsQuery: true,
	MethodAFSuppress:      true,
	MethodAFDialogueEnh:   true,
	MethodAFTriggerAction: true,
}

// supportedTerminalToApp is every method this terminal may send to an app.
var supportedTerminalToApp = map[string]bool{
	MethodNotify:               true,
	MethodIntentMediaPause:     true,
	MethodIntentMediaPlay:      true,
	MethodIntentMediaFF:        true,
	MethodIntentMediaFR:        true,
	MethodIntentMediaStop:      true,
	MethodIntentSeekContent:    true,
	MethodIntentSeekRelative:   true,
	MethodIntentSeekLive:       true,
	MethodIntentSeekWallclock:  true,
	MethodIntentSearch:         true,
	MethodIntentDisplay:        true,
	MethodIntentPlayback:       true,
	MethodIPPlaybackStatus:     true,
	MethodIPPlaybackPosition:   true,
	MethodIPPlaybackComponents: true,
	MethodIPPlaybackTimeline:   true,
}

// Feature is the fixed accessibility-feature enumeration. The
// `feature` param of af.* methods may arrive as this integer or as its
// name; featureFromRaw accepts either.
type Feature int

const (
	FeatureSubtitles Feature = iota
	FeatureDialogueEnhancement
	FeatureUIMagnifier
	FeatureHighContrastUI
	FeatureScreenReader
	FeatureResponseToUserAction
	FeatureAudioDescription
	FeatureInVisionSigning
)

var featureNames = map[string]Feature{
	"subtitles":            FeatureSubtitles,
	"dialogueEnhancement":  FeatureDialogueEnhancement,
	"uiMagnifier":          FeatureUIMagnifier,
	"highContrastUI":       FeatureHighContrastUI,
	"screenReader":         FeatureScreenReader,
	"responseToUserAction": FeatureResponseToUserAction,
	"audioDescription":     FeatureAudioDescription,
	"inVisionSigning":      FeatureInVisionSigning,
}

func (f Feature) String() string {
	for name, v := range featureNames {
		if v == f {
			return name
		}
	}
	return "unknown"
}

// subscriptionSuffixes maps a subscribe/unsubscribe msgType (e.g.
// "subtitlesPrefChange") to the feature it concerns. Only names the
// terminal recognises are accepted; others produce -32602.
var subscriptionSuffixes = map[string]Feature{
	"subtitlesPrefChange":            FeatureSubtitles,
	"dialogueEnhancementPrefChange":  FeatureDialogueEnhancement,
	"uiMagnifierPrefChange":          FeatureUIMagnifier,
	"highContrastUIPrefChange":       FeatureHighContrastUI,
	"screenReaderPrefChange":         FeatureScreenReader,
	"responseToUserActionPrefChange": FeatureResponseToUserAction,
	"audioDescriptionPrefChange":     FeatureAudioDescription,
	"inVisionSigningPrefChange":      FeatureInVisionSigning,
}
