package protocol

import (
	"strconv"
	"strings"
	"time"
)

// Legacy pipe-delimited ASCII formats. Every variant frames its fields as
//
//	$<marker>|field|field|...#<checksum: 4 hex>
//
// with the checksum computed over everything before '#'. The oldest variants
// ($DM|, $ET|, $HT|) pack device state into a single hex status byte; the
// DRM/GSM/GPS variants spell fields out, including a geolocation fix.
var legacyDecoders = map[string]func(string) (*Event, error){
	"$DM|":  decodeLegacyDM,
	"$ET|":  decodeLegacyET,
	"$HT|":  decodeLegacyHT,
	"$DRM|": decodeLegacyDRM,
	"$GSM|": decodeLegacyGSM,
	"$GPS|": decodeLegacyGPS,
}

// Oldest status byte layout: bit 7 power, bit 6 ticket, bit 5 test,
// bit 4 overload, bits 3..0 LS1..LS4 hit flags.
func applyLegacyStatus(evt *Event, statusHex string) {
	status, err := strconv.ParseUint(statusHex, 16, 8)
	if err != nil {
		// Unparseable status degrades to UNKNOWN rather than failing the
		// whole decode.
		evt.Switches = UnknownSwitches()
		return
	}
	evt.Working = boolPtr(status&0x80 != 0)
	evt.TestMode = boolPtr(status&0x20 != 0)
	evt.Overload = boolPtr(status&0x10 != 0)
	if status&0x40 != 0 {
		evt.TicketOpen = boolPtr(true)
	}
	for i := 0; i < 4; i++ {
		evt.Switches[i] = hitState(status&(1<<uint(i)) != 0)
	}
}

func splitLegacy(raw string, marker string, want int) ([]string, *bool, error) {
	hash := strings.IndexRune(raw, '#')
	if hash < 0 {
		return nil, nil, decodeFailuref("%s: missing terminator", marker)
	}
	segment := raw[:hash]
	valid := ValidateChecksum([]byte(segment), raw[hash+1:])
	fields := strings.Split(segment[1:], "|")
	if len(fields) != want {
		return nil, nil, decodeFailuref("%s: %d fields, want %d", marker, len(fields), want)
	}
	return fields, boolPtr(valid), nil
}

func legacyBase(fields []string, valid *bool, raw string) (*Event, error) {
	epoch, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, decodeFailuref("legacy: bad epoch %q", fields[1])
	}
	return &Event{
		DeviceID:      fields[0],
		Timestamp:     time.Unix(epoch, 0).UTC(),
		Raw:           raw,
		Switches:      UnknownSwitches(),
		ChecksumValid: valid,
	}, nil
}

func decodeLegacyDM(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$DM|", 5)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindTelemetry
	applyLegacyStatus(evt, fields[3])
	if load, err := strconv.ParseFloat(fields[4], 64); err == nil {
		evt.Load = floatPtr(clampLoad(load))
	}
	return evt, nil
}

func decodeLegacyET(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$ET|", 4)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindEvent
	applyLegacyStatus(evt, fields[3])
	return evt, nil
}

func decodeLegacyHT(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$HT|", 3)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindHeartbeat
	return evt, nil
}

func decodeLegacyDRM(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$DRM|", 10)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindTelemetry
	if load, err := strconv.ParseFloat(fields[3], 64); err == nil {
		evt.Load = floatPtr(clampLoad(load))
	}
	if swl, err := strconv.ParseFloat(fields[4], 64); err == nil && swl > 0 {
		evt.RatedCapacity = floatPtr(swl)
	}
	evt.OperatingMode = fields[5]
	evt.Location = parseLocation(fields[6], fields[7], fields[8], fields[9])
	return evt, nil
}

func decodeLegacyGSM(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$GSM|", 7)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindTelemetry
	evt.Location = parseLocation(fields[4], fields[5], "gsm", fields[6])
	return evt, nil
}

func decodeLegacyGPS(raw string) (*Event, error) {
	fields, valid, err := splitLegacy(raw, "$GPS|", 6)
	if err != nil {
		return nil, err
	}
	evt, err := legacyBase(fields[1:], valid, raw)
	if err != nil {
		return nil, err
	}
	evt.Kind = KindTelemetry
	evt.Location = parseLocation(fields[3], fields[4], "gps", fields[5])
	return evt, nil
}

func parseLocation(lonField, latField, source, accField string) *Location {
	lon, lonErr := strconv.ParseFloat(lonField, 64)
	lat, latErr := strconv.ParseFloat(latField, 64)
	if lonErr != nil || latErr != nil {
		return nil
	}
	loc := &Location{Longitude: lon, Latitude: lat, Source: source}
	if acc, err := strconv.ParseFloat(accField, 64); err == nil && acc >= 0 {
		loc.Accuracy = floatPtr(acc)
	}
	return loc
}
