package protocol

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Framed command format:
//
//	$DM <device id: 3 chars> <epoch seconds: 8 hex> <command: 2 hex> <data: 0|2|4 hex> # <checksum: 4 hex>
//
// The checksum covers everything before the '#' terminator, marker included.
// The command byte selects the data semantics; anything not in the table
// below decodes to KindUnknown carrying the raw command and data bytes so the
// stream keeps flowing when firmware grows a new command.
const (
	cmdHeartbeat = 0x01
	cmdEvent     = 0x02
	cmdTicket    = 0x03
	cmdLoad      = 0x04
)

// ticketTypeNames is the fixed lookup for ticket type codes 0-14.
var ticketTypeNames = [15]string{
	"general",
	"hoist_brake",
	"slewing_gear",
	"trolley_drive",
	"limit_switch",
	"load_cell",
	"anemometer",
	"electrical",
	"hydraulic",
	"structural",
	"rope_wear",
	"counterweight",
	"cabin_controls",
	"radio_link",
	"other",
}

// TicketTypeName resolves a protocol ticket type code. Codes outside the
// table map to "other".
func TicketTypeName(code int) string {
	if code < 0 || code >= len(ticketTypeNames) {
		return ticketTypeNames[len(ticketTypeNames)-1]
	}
	return ticketTypeNames[code]
}

func decodeFramed(raw string) (*Event, error) {
	hash := strings.IndexRune(raw, '#')
	if hash < 0 {
		return nil, decodeFailuref("framed: missing terminator")
	}
	segment := raw[:hash]
	received := raw[hash+1:]

	// $DM + 3-char id + 8-hex timestamp + 2-hex command is the minimum frame.
	if len(segment) < 3+3+8+2 {
		return nil, decodeFailuref("framed: segment too short (%d)", len(segment))
	}

	deviceID := segment[3:6]
	tsHex := segment[6:14]
	if !isHex(tsHex) {
		return nil, decodeFailuref("framed: bad timestamp %q", tsHex)
	}
	epoch, err := strconv.ParseInt(tsHex, 16, 64)
	if err != nil {
		return nil, decodeFailuref("framed: bad timestamp %q", tsHex)
	}

	tail, err := hex.DecodeString(segment[14:])
	if err != nil || len(tail) < 1 || len(tail) > 3 {
		return nil, decodeFailuref("framed: bad command/data %q", segment[14:])
	}
	command := tail[0]
	data := tail[1:]

	evt := &Event{
		DeviceID:      deviceID,
		Timestamp:     time.Unix(epoch, 0).UTC(),
		Raw:           raw,
		Switches:      UnknownSwitches(),
		ChecksumValid: boolPtr(ValidateChecksum([]byte(segment), received)),
	}

	switch command {
	case cmdHeartbeat:
		evt.Kind = KindHeartbeat

	case cmdEvent:
		if len(data) < 1 {
			return nil, decodeFailuref("framed: event command without data")
		}
		flags := data[0]
		evt.Kind = KindEvent
		evt.Working = boolPtr(flags&0x80 != 0)
		evt.Overload = boolPtr(flags&0x40 != 0)
		evt.TestMode = boolPtr(flags&0x10 != 0)
		// Bits 3..0 carry LS4..LS1.
		for i := 0; i < 4; i++ {
			evt.Switches[i] = hitState(flags&(1<<uint(i)) != 0)
		}

	case cmdTicket:
		if len(data) < 2 {
			return nil, decodeFailuref("framed: ticket command without data")
		}
		evt.Kind = KindTicket
		evt.TicketNumber = intPtr(int(data[0]))
		evt.TicketOpen = boolPtr(data[1]&0x80 != 0)
		evt.TicketType = intPtr(int(data[1] & 0x0F))

	case cmdLoad:
		if len(data) < 2 {
			return nil, decodeFailuref("framed: load command without data")
		}
		evt.Kind = KindLoad
		evt.Load = floatPtr(clampLoad(float64(uint16(data[0])<<8|uint16(data[1])) / 10))

	default:
		evt.Kind = KindUnknown
		evt.CommandByte = command
		evt.DataBytes = append([]byte(nil), data...)
	}
	return evt, nil
}
