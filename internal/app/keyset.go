package app

// Key-set bitmask values (HbbTV OIPF DAE table "VK_* key groups").
const (
	KeySetRed        uint16 = 0x001
	KeySetGreen      uint16 = 0x002
	KeySetYellow     uint16 = 0x004
	KeySetBlue       uint16 = 0x008
	KeySetNavigation uint16 = 0x010
	KeySetVCR        uint16 = 0x020
	KeySetScroll     uint16 = 0x040
	KeySetInfo       uint16 = 0x080
	KeySetNumeric    uint16 = 0x100
	KeySetAlpha      uint16 = 0x200
	KeySetOther      uint16 = 0x400
)

// JS VK_* key codes this classifier recognises.
const (
	vkRed      = 403
	vkGreen    = 404
	vkYellow   = 405
	vkBlue     = 406
	vkUp       = 38
	vkDown     = 40
	vkLeft     = 37
	vkRight    = 39
	vkEnter    = 13
	vkBack     = 461
	vkPlay     = 415
	vkStop     = 413
	vkPause    = 19
	vkFastFwd  = 417
	vkRewind   = 412
	vkNext     = 425
	vkPrev     = 424
	vkPlayPause = 402
	vkRecord   = 416
	vkPageUp   = 33
	vkPageDown = 34
	vkInfo     = 457

	vkNumericStart = 48
	vkNumericEnd   = 57
	vkAlphaStart   = 65
	vkAlphaEnd     = 90
)

func isKeyNavigation(code uint16) bool {
	switch code {
	case vkUp, vkDown, vkLeft, vkRight, vkEnter, vkBack:
		return true
	default:
		return false
	}
}

func isKeyNumeric(code uint16) bool { return code >= vkNumericStart && code <= vkNumericEnd }
func isKeyAlpha(code uint16) bool   { return code >= vkAlphaStart && code <= vkAlphaEnd }

func isKeyVCR(code uint16) bool {
	switch code {
	case vkPlay, vkStop, vkPause, vkFastFwd, vkRewind, vkNext, vkPrev, vkPlayPause:
		return true
	default:
		return false
	}
}

func isKeyScroll(code uint16) bool {
	return code == vkPageUp || code == vkPageDown
}

// ClassifyKey maps a JS VK_* key code to its key-set bit. VK_RECORD is
// intentionally classified OTHER rather than VCR — it is only meaningful to
// OpApps controlling IP playback, gated separately by other_keys.
func ClassifyKey(code uint16) uint16 {
	switch {
	case isKeyNavigation(code):
		return KeySetNavigation
	case isKeyNumeric(code):
		return KeySetNumeric
	case isKeyAlpha(code):
		return KeySetAlpha
	case isKeyVCR(code):
		return KeySetVCR
	case isKeyScroll(code):
		return KeySetScroll
	}
	switch code {
	case vkRed:
		return KeySetRed
	case vkGreen:
		return KeySetGreen
	case vkYellow:
		return KeySetYellow
	case vkBlue:
		return KeySetBlue
	case vkInfo:
		return KeySetInfo
	case vkRecord:
		return KeySetOther
	default:
		return 0
	}
}

// InKeySet reports whether code is accepted by app's current key-set mask,
// activating the app as a side effect of a successful match — mirroring the
// original HbbTVApp::InKeySet's "first accepted key activates" behavior.
func InKeySet(app *RunningApplication, code uint16) bool {
	bit := ClassifyKey(code)
	if app.KeySetMask&bit == 0 {
		return false
	}
	if app.KeySetMask&KeySetOther != 0 {
		if _, ok := app.OtherKeys[code]; !ok {
			return false
		}
	}
	app.IsActivated = true
	return true
}

// SetKeySetMask applies the scheme-dependent restriction rules and stores
// the result (and other_keys, if OTHER survived) on app. Returns the
// effective mask actually applied.
//
// Before activation, and unless the app runs under LINKED_APP_SCHEME_2, VCR
// and NUMERIC (and OTHER, unless the scheme is LINKED_APP_SCHEME_1_2) are
// stripped from apps declaring an HbbTV minor version newer than 1 — with an
// exception preserving VCR for "media control" linked apps (scheme 1_2,
// minor version 7, OIPF DAE App.O.7).
func SetKeySetMask(app *RunningApplication, mask uint16, otherKeys map[uint16]struct{}) uint16 {
	isOldVersion := app.VersionMinor > 1
	isLinkedAppScheme12 := app.Scheme == LinkedAppScheme12
	isException := isLinkedAppScheme12 && app.VersionMinor == 7

	if !app.IsActivated && app.Scheme != LinkedAppScheme2 {
		if mask&KeySetVCR != 0 && isOldVersion && !isException {
			mask &^= KeySetVCR
		}
		if mask&KeySetNumeric != 0 && !isLinkedAppScheme12 && isOldVersion {
			mask &^= KeySetNumeric
		}
		if mask&KeySetOther != 0 && !isLinkedAppScheme12 && isOldVersion {
			mask &^= KeySetOther
		}
	}

	app.KeySetMask = mask
	if mask&KeySetOther != 0 {
		app.OtherKeys = otherKeys
	}
	return mask
}
