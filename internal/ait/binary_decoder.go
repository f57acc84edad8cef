package ait

import (
	"fmt"
)

// Descriptor tags within an application_loop entry.
const (
	tagAppDesc           = 0x00
	tagAppName           = 0x01
	tagTransportProtocol = 0x02
	tagSimpleAppLocation = 0x15
	tagAppUsage          = 0x16
	tagSimpleAppBoundary = 0x17
	tagParentalRating    = 0x55
)

// cursor is a bounds-checked byte reader used by the binary decoder. Every
// read past the end of the slice returns ok=false instead of panicking, so a
// malformed descriptor degrades to "skip the rest of this descriptor" rather
// than crashing the section.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) u8() (uint8, bool) {
	if c.remaining() < 1 {
		return 0, false
	}
	v := c.data[c.pos]
	c.pos++
	return v, true
}

func (c *cursor) u16() (uint16, bool) {
	if c.remaining() < 2 {
		return 0, false
	}
	v := uint16(c.data[c.pos])<<8 | uint16(c.data[c.pos+1])
	c.pos += 2
	return v, true
}

func (c *cursor) u32() (uint32, bool) {
	if c.remaining() < 4 {
		return 0, false
	}
	v := uint32(c.data[c.pos])<<24 | uint32(c.data[c.pos+1])<<16 |
		uint32(c.data[c.pos+2])<<8 | uint32(c.data[c.pos+3])
	c.pos += 4
	return v, true
}

func (c *cursor) bytes(n int) ([]byte, bool) {
	if n < 0 || c.remaining() < n {
		return nil, false
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v, true
}

func (c *cursor) skip(n int) bool {
	if n < 0 || c.remaining() < n {
		return false
	}
	c.pos += n
	return true
}

// DecodeBinarySection decodes one MPEG-2 private_section carrying a
// broadcast AIT sub-table and folds it into table, creating table if nil.
// It returns the (possibly newly created) table and whether the section was
// accepted (false means the section was dropped: size mismatch, wrong
// application_type, or a duplicate/stale section).
func DecodeBinarySection(table *Table, data []byte) (*Table, bool, error) {
	if len(data) <= 2 {
		return table, false, fmt.Errorf("ait: section too small: %d bytes", len(data))
	}
	sectionLength := (uint32(data[1])<<8 | uint32(data[2])) & 0x0FFF
	wantLen := sectionLength + 3
	if uint32(len(data)) != wantLen {
		return table, false, fmt.Errorf("ait: section length mismatch: got %d want %d", len(data), wantLen)
	}

	c := cursor{data: data}
	c.skip(3) // table_id, section_length

	appType, ok := c.u16()
	if !ok {
		return table, false, fmt.Errorf("ait: truncated header")
	}
	if appType != AppTypeHbbTV {
		return table, false, nil
	}

	flagsVersion, ok := c.u8()
	if !ok {
		return table, false, fmt.Errorf("ait: truncated header")
	}
	version := (flagsVersion >> 1) & 0x1F

	sectionNumber, ok1 := c.u8()
	lastSectionNumber, ok2 := c.u8()
	if !ok1 || !ok2 {
		return table, false, fmt.Errorf("ait: truncated header")
	}
	c.skip(1) // reserved

	commonLen, ok := c.u16()
	if !ok {
		return table, false, fmt.Errorf("ait: truncated header")
	}
	if !c.skip(int(commonLen & 0x0FFF)) {
		return table, false, fmt.Errorf("ait: common descriptors overrun")
	}

	appLoopLen, ok := c.u16()
	if !ok {
		return table, false, fmt.Errorf("ait: truncated header")
	}
	loopBytes, ok := c.bytes(int(appLoopLen & 0x0FFF))
	if !ok {
		return table, false, fmt.Errorf("ait: application loop overrun")
	}

	if table != nil && table.Version != version {
		table = nil
	}
	if table != nil && table.alreadyReceived(sectionNumber) {
		return table, false, nil
	}
	if table == nil {
		table = &Table{AppType: appType, Version: version}
	}

	decodeApplicationLoop(table, loopBytes)
	table.markReceived(sectionNumber, lastSectionNumber)
	return table, true, nil
}

func decodeApplicationLoop(table *Table, loop []byte) {
	c := cursor{data: loop}
	for c.remaining() > 0 {
		orgID, ok := c.u32()
		if !ok {
			return
		}
		appID, ok := c.u16()
		if !ok {
			return
		}
		controlByte, ok := c.u8()
		if !ok {
			return
		}
		descLoopLen, ok := c.u16()
		if !ok {
			return
		}
		descBytes, ok := c.bytes(int(descLoopLen & 0x0FFF))
		if !ok {
			return
		}

		app := table.getOrCreateApp(orgID, appID)
		app.ControlCode = decodeControlCode(controlByte)
		decodeDescriptorLoop(app, descBytes)
	}
}

func decodeControlCode(b uint8) ControlCode {
	switch b {
	case 0x01:
		return ControlAutostart
	case 0x02:
		return ControlPresent
	case 0x03:
		return ControlDestroy
	case 0x04:
		return ControlKill
	case 0x05:
		return ControlPrefetch
	case 0x06:
		return ControlRemote
	case 0x07:
		return ControlDisabled
	case 0x08:
		return ControlPlaybackAutostart
	default:
		return ControlUnknown
	}
}

func decodeDescriptorLoop(app *Application, descs []byte) {
	c := cursor{data: descs}
	for c.remaining() > 0 {
		tag, ok := c.u8()
		if !ok {
			return
		}
		descLen, ok := c.u8()
		if !ok {
			return
		}
		body, ok := c.bytes(int(descLen))
		if !ok {
			// Truncated descriptor: nothing more to salvage from this loop.
			return
		}
		decodeDescriptor(app, tag, body)
	}
}

// decodeDescriptor dispatches one descriptor by tag. A malformed body never
// aborts the caller's loop — the descriptor is simply left partially or
// wholly unapplied.
func decodeDescriptor(app *Application, tag uint8, body []byte) {
	switch tag {
	case tagAppDesc:
		decodeAppDesc(app, body)
	case tagAppName:
		decodeAppNameDesc(app, body)
	case tagTransportProtocol:
		decodeTransportDesc(app, body)
	case tagSimpleAppLocation:
		decodeLocationDesc(app, body)
	case tagAppUsage:
		decodeUsageDesc(app, body)
	case tagSimpleAppBoundary:
		decodeBoundaryDesc(app, body)
	case tagParentalRating:
		decodeParentalRatingDesc(app, body)
	}
}

func decodeAppDesc(app *Application, body []byte) {
	if app.Visibility != visibilityUnset {
		return
	}
	c := cursor{data: body}
	profileLen, ok := c.u8()
	if !ok {
		return
	}
	for profileLen >= 5 && c.remaining() >= 5 {
		profile, _ := c.u16()
		major, _ := c.u8()
		minor, _ := c.u8()
		micro, _ := c.u8()
		app.Profiles = append(app.Profiles, AppProfile{Profile: profile, Major: major, Minor: minor, Micro: micro})
		profileLen -= 5
	}
	flags, ok := c.u8()
	if !ok {
		return
	}
	app.ServiceBound = flags&0x80 != 0
	app.Visibility = Visibility((flags & 0x60) >> 5)
	priority, ok := c.u8()
	if !ok {
		return
	}
	app.Priority = priority
	// Remaining bytes are transport protocol labels; not separately modeled
	// since PutTransport already carries each transport's own label.
}

func decodeAppNameDesc(app *Application, body []byte) {
	if len(app.Names) > 0 {
		return
	}
	c := cursor{data: body}
	for c.remaining() > 4 {
		langBytes, ok := c.bytes(3)
		if !ok {
			return
		}
		nameLen, ok := c.u8()
		if !ok {
			return
		}
		name, ok := c.bytes(int(nameLen))
		if !ok {
			return
		}
		if nameLen == 0 {
			continue
		}
		langCode := uint32(langBytes[0])<<16 | uint32(langBytes[1])<<8 | uint32(langBytes[2])
		app.Names[langCode] = string(name)
	}
}

func decodeTransportDesc(app *Application, body []byte) {
	c := cursor{data: body}
	protocolID, ok := c.u16()
	if !ok {
		return
	}
	if _, exists := app.Transport(protocolID); exists {
		return
	}
	label, ok := c.u8()
	if !ok {
		return
	}
	t := Transport{ProtocolID: protocolID, TransportProtocolLabel: label}

	switch protocolID {
	case ProtocolObjectCarousel:
		flags, ok := c.u8()
		if !ok {
			break
		}
		t.RemoteConnection = flags&0x80 != 0
		if t.RemoteConnection {
			onid, _ := c.u16()
			tsid, _ := c.u16()
			sid, _ := c.u16()
			t.Triplet = Triplet{OriginalNetworkID: onid, TransportStreamID: tsid, ServiceID: sid}
		}
		tag, ok := c.u8()
		if ok {
			t.ComponentTag = tag
		}
	case ProtocolHTTP:
		urlLen, ok := c.u8()
		if !ok {
			break
		}
		url, ok := c.bytes(int(urlLen))
		if !ok {
			break
		}
		t.BaseURL = string(url)
		count, ok := c.u8()
		if !ok {
			break
		}
		for i := 0; i < int(count); i++ {
			extLen, ok := c.u8()
			if !ok {
				break
			}
			ext, ok := c.bytes(int(extLen))
			if !ok {
				break
			}
			t.ExtensionURLs = append(t.ExtensionURLs, string(ext))
		}
	}
	app.PutTransport(t)
}

func decodeLocationDesc(app *Application, body []byte) {
	if app.Location != "" || len(body) == 0 {
		return
	}
	app.Location = string(body)
}

func decodeUsageDesc(app *Application, body []byte) {
	if app.UsageType == UsageTeletext || len(body) < 2 {
		return
	}
	if body[0] == 0x01 {
		app.UsageType = body[1]
	}
}

func decodeBoundaryDesc(app *Application, body []byte) {
	c := cursor{data: body}
	count, ok := c.u8()
	if !ok {
		return
	}
	for i := 0; i < int(count); i++ {
		n, ok := c.u8()
		if !ok {
			return
		}
		b, ok := c.bytes(int(n))
		if !ok {
			return
		}
		app.Boundaries = append(app.Boundaries, string(b))
	}
}

func decodeParentalRatingDesc(app *Application, body []byte) {
	if len(app.ParentalRatings) > 0 {
		return
	}
	c := cursor{data: body}
	for c.remaining() >= 4 {
		region, ok := c.bytes(3)
		if !ok {
			return
		}
		value, ok := c.u8()
		if !ok {
			return
		}
		app.ParentalRatings = append(app.ParentalRatings, ParentalRating{
			Scheme: "dvb-si",
			Region: string(region),
			Value:  value + 3,
		})
	}
}
