package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedPayload is returned when a payload matches no known grammar.
// The caller logs the raw payload and drops the message.
var ErrUnrecognizedPayload = errors.New("protocol: unrecognized payload")

// Decode normalizes a raw payload into an Event. Dispatch order, first match
// wins:
//
//  1. legacy pipe-delimited markers ($DM|, $ET|, $HT|, $DRM|, $GSM|, $GPS|)
//  2. $DM framed command format (the data segment always ends with '#'
//     followed by a 4-hex checksum)
//  3. $DM compact status-word format (18 or 22 hex characters after the
//     marker, never a '#')
//  4. generic fallbacks: JSON object, key=value;... pairs, id|ts|KEY:value|...
//
// The two $DM binary forms are disambiguated by the frame terminator, not by
// try-and-fallback: a '#' anywhere after the marker always selects the framed
// decoder, so a malformed frame can never be misread as a compact word.
func Decode(payload []byte) (*Event, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return nil, ErrUnrecognizedPayload
	}

	for marker, decode := range legacyDecoders {
		if strings.HasPrefix(raw, marker) {
			return decode(raw)
		}
	}

	if strings.HasPrefix(raw, "$DM") {
		if strings.ContainsRune(raw, '#') {
			return decodeFramed(raw)
		}
		return decodeCompact(raw)
	}

	if strings.HasPrefix(raw, "{") {
		return decodeJSON(raw)
	}
	if strings.Contains(raw, "=") && strings.Contains(raw, ";") {
		return decodeSemicolonPairs(raw)
	}
	if strings.Contains(raw, "|") {
		return decodePipePairs(raw)
	}
	return nil, ErrUnrecognizedPayload
}

// SniffDeviceID extracts the device identifier a legacy numeric topic cannot
// provide: the first four characters after the $DM marker.
func SniffDeviceID(payload []byte) (string, bool) {
	raw := strings.TrimSpace(string(payload))
	idx := strings.Index(raw, "$DM")
	if idx < 0 || len(raw) < idx+7 {
		return "", false
	}
	id := raw[idx+3 : idx+7]
	if strings.ContainsRune(id, '|') || strings.ContainsRune(id, '#') {
		return "", false
	}
	return id, true
}

func decodeFailuref(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnrecognizedPayload, fmt.Sprintf(format, args...))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func clampLoad(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
