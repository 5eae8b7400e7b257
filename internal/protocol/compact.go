package protocol

import (
	"strconv"
	"time"
)

// Compact status-word format:
//
//	$DM <device id: 6 hex> <epoch seconds: 8 hex> <status word: 4 hex> [load: 4 hex]
//
// Status word bit layout (LSB = bit 0): bits 0-3 LS1..LS4 hit flags, bit 6
// overload, bit 7 crane-operating flag, bit 8 test mode, bit 9 secondary
// block. The optional trailing word is the hook load in fixed point x10.
const (
	compactBareLen = 18
	compactLoadLen = 22
)

func decodeCompact(raw string) (*Event, error) {
	body := raw[len("$DM"):]
	if len(body) != compactBareLen && len(body) != compactLoadLen {
		return nil, decodeFailuref("compact: body length %d", len(body))
	}
	if !isHex(body) {
		return nil, decodeFailuref("compact: non-hex body")
	}

	epoch, err := strconv.ParseInt(body[6:14], 16, 64)
	if err != nil {
		return nil, decodeFailuref("compact: bad timestamp %q", body[6:14])
	}
	word, err := strconv.ParseUint(body[14:18], 16, 16)
	if err != nil {
		return nil, decodeFailuref("compact: bad status word %q", body[14:18])
	}

	evt := &Event{
		DeviceID:  body[:6],
		Timestamp: time.Unix(epoch, 0).UTC(),
		Kind:      KindTelemetry,
		Raw:       raw,
		Overload:  boolPtr(word&(1<<6) != 0),
		Working:   boolPtr(word&(1<<7) != 0),
		TestMode:  boolPtr(word&(1<<8) != 0),
	}
	for i := 0; i < 4; i++ {
		evt.Switches[i] = hitState(word&(1<<uint(i)) != 0)
	}
	if word&(1<<9) != 0 {
		evt.SecondaryBlock = boolPtr(true)
	}

	if len(body) == compactLoadLen {
		load, err := strconv.ParseUint(body[18:22], 16, 16)
		if err != nil {
			return nil, decodeFailuref("compact: bad load word %q", body[18:22])
		}
		evt.Load = floatPtr(clampLoad(float64(load) / 10))
	}
	return evt, nil
}
