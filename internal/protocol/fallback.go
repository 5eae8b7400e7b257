package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Generic fallbacks map loosely structured payloads onto the same event
// shape with best-effort coercion. They exist for bench rigs and gateway
// re-publishers that never learned the binary framing.

func decodeJSON(raw string) (*Event, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, decodeFailuref("json: %v", err)
	}
	evt := &Event{Kind: KindTelemetry, Raw: raw, Switches: UnknownSwitches()}
	for key, value := range doc {
		applyField(evt, key, stringify(value))
	}
	if evt.DeviceID == "" {
		return nil, decodeFailuref("json: no device id")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}

func decodeSemicolonPairs(raw string) (*Event, error) {
	evt := &Event{Kind: KindTelemetry, Raw: raw, Switches: UnknownSwitches()}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		applyField(evt, strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if evt.DeviceID == "" {
		return nil, decodeFailuref("pairs: no device id")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}

// decodePipePairs handles the `id|ts|KEY:value|...` shape.
func decodePipePairs(raw string) (*Event, error) {
	fields := strings.Split(raw, "|")
	if len(fields) < 3 {
		return nil, ErrUnrecognizedPayload
	}
	// A '$' prefix means an unhandled protocol frame, not a device id.
	if strings.HasPrefix(fields[0], "$") {
		return nil, ErrUnrecognizedPayload
	}
	epoch, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, decodeFailuref("pipe pairs: bad epoch %q", fields[1])
	}
	evt := &Event{
		DeviceID:  fields[0],
		Timestamp: time.Unix(epoch, 0).UTC(),
		Kind:      KindTelemetry,
		Raw:       raw,
		Switches:  UnknownSwitches(),
	}
	for _, field := range fields[2:] {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		applyField(evt, strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return evt, nil
}

func applyField(evt *Event, key, value string) {
	switch strings.ToLower(key) {
	case "deviceid", "device_id", "id", "device":
		evt.DeviceID = value
	case "devicetype", "device_type":
		evt.DeviceType = value
	case "tenantid", "tenant_id", "company":
		evt.TenantID = value
	case "ts", "timestamp", "time":
		if epoch, err := strconv.ParseInt(value, 10, 64); err == nil && epoch > 0 {
			evt.Timestamp = time.Unix(epoch, 0).UTC()
		}
	case "load", "hookload", "hook_load":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			evt.Load = floatPtr(clampLoad(v))
		}
	case "swl", "ratedcapacity", "rated_capacity":
		if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 {
			evt.RatedCapacity = floatPtr(v)
		}
	case "ls1", "ls2", "ls3", "ls4":
		idx := int(key[len(key)-1] - '1')
		evt.Switches[idx] = coerceSwitch(value)
	case "overload":
		if v, ok := coerceBool(value); ok {
			evt.Overload = boolPtr(v)
		}
	case "working", "utilization", "operating":
		if v, ok := coerceBool(value); ok {
			evt.Working = boolPtr(v)
		}
	case "testmode", "test_mode", "test":
		if v, ok := coerceBool(value); ok {
			evt.TestMode = boolPtr(v)
		}
	case "utilizationpct", "utilization_pct":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			evt.UtilizationPct = floatPtr(clampPercent(v))
		}
	case "mode", "operatingmode", "operating_mode":
		evt.OperatingMode = value
	case "lon", "longitude":
		setLocation(evt).Longitude, _ = strconv.ParseFloat(value, 64)
	case "lat", "latitude":
		setLocation(evt).Latitude, _ = strconv.ParseFloat(value, 64)
	}
}

func setLocation(evt *Event) *Location {
	if evt.Location == nil {
		evt.Location = &Location{Source: "payload"}
	}
	return evt.Location
}

func coerceSwitch(value string) SwitchState {
	switch strings.ToUpper(value) {
	case "OK", "0":
		return SwitchOK
	case "FAIL", "FAULT":
		return SwitchFail
	case "HIT", "1":
		return SwitchHit
	default:
		return SwitchUnknown
	}
}

func coerceBool(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
