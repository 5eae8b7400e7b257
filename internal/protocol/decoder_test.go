package protocol

import (
	"errors"
	"testing"
	"time"
)

func frame(segment string) string {
	return segment + "#" + ChecksumHex([]byte(segment))
}

func TestDecodeCompactStatusWord(t *testing.T) {
	evt, err := Decode([]byte("$DM123609f1bd5020000004C1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.DeviceID != "123609" {
		t.Fatalf("device id = %q", evt.DeviceID)
	}
	if evt.Kind != KindTelemetry {
		t.Fatalf("kind = %q", evt.Kind)
	}
	for i, state := range evt.Switches {
		if state != SwitchOK {
			t.Fatalf("ls%d = %q, want OK", i+1, state)
		}
	}
	if evt.Overload == nil || *evt.Overload {
		t.Fatalf("overload = %v, want false", evt.Overload)
	}
	if evt.Working == nil || *evt.Working {
		t.Fatalf("working = %v, want false", evt.Working)
	}
	if evt.Load == nil || *evt.Load != 121.7 {
		t.Fatalf("load = %v, want 121.7", evt.Load)
	}
}

func TestDecodeCompactStatusBits(t *testing.T) {
	// Bits: LS2 hit (bit 1), overload (bit 6), working (bit 7), test (bit 8).
	evt, err := Decode([]byte("$DM123609f1bd502001C2"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Switches[1] != SwitchHit || evt.Switches[0] != SwitchOK {
		t.Fatalf("switches = %v", evt.Switches)
	}
	if evt.Overload == nil || !*evt.Overload {
		t.Fatalf("overload not set")
	}
	if evt.Working == nil || !*evt.Working {
		t.Fatalf("working not set")
	}
	if evt.TestMode == nil || !*evt.TestMode {
		t.Fatalf("test mode not set")
	}
	if evt.Load != nil {
		t.Fatalf("bare compact payload decoded a load")
	}
}

func TestDecodeFramedHeartbeat(t *testing.T) {
	evt, err := Decode([]byte(frame("$DM1236915CDC401")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindHeartbeat {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if evt.DeviceID != "123" {
		t.Fatalf("device id = %q", evt.DeviceID)
	}
	if evt.Timestamp != time.Unix(0x6915CDC4, 0).UTC() {
		t.Fatalf("timestamp = %v", evt.Timestamp)
	}
	if evt.ChecksumValid == nil || !*evt.ChecksumValid {
		t.Fatalf("checksum flag = %v, want valid", evt.ChecksumValid)
	}
}

func TestDecodeFramedEventFlags(t *testing.T) {
	// 0xD5: working + overload + test mode, LS1 and LS3 hit.
	evt, err := Decode([]byte(frame("$DM1236915CDC402D5")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindEvent {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if !*evt.Working || !*evt.Overload || !*evt.TestMode {
		t.Fatalf("flags = working %v overload %v test %v", *evt.Working, *evt.Overload, *evt.TestMode)
	}
	want := [4]SwitchState{SwitchHit, SwitchOK, SwitchHit, SwitchOK}
	if evt.Switches != want {
		t.Fatalf("switches = %v, want %v", evt.Switches, want)
	}
}

func TestDecodeFramedTicket(t *testing.T) {
	evt, err := Decode([]byte(frame("$DM1236915CDC4030212")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindTicket {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if evt.TicketNumber == nil || *evt.TicketNumber != 2 {
		t.Fatalf("ticket number = %v, want 2", evt.TicketNumber)
	}
	// 0x12: open bit (0x80) clear, type code 2.
	if evt.TicketOpen == nil || *evt.TicketOpen {
		t.Fatalf("ticket open = %v, want closed", evt.TicketOpen)
	}
	if evt.TicketType == nil || *evt.TicketType != 2 {
		t.Fatalf("ticket type = %v, want 2", evt.TicketType)
	}
	if TicketTypeName(*evt.TicketType) != "slewing_gear" {
		t.Fatalf("ticket type name = %q", TicketTypeName(*evt.TicketType))
	}
}

func TestDecodeFramedLoad(t *testing.T) {
	// 0x04C1 = 1217 -> 121.7 after fixed-point scaling.
	evt, err := Decode([]byte(frame("$DM1236915CDC40404C1")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindLoad {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if evt.Load == nil || *evt.Load != 121.7 {
		t.Fatalf("load = %v, want 121.7", evt.Load)
	}
}

func TestDecodeFramedUnknownCommand(t *testing.T) {
	evt, err := Decode([]byte(frame("$DM1236915CDC47FBEEF")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindUnknown {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if evt.CommandByte != 0x7F {
		t.Fatalf("command byte = %02X", evt.CommandByte)
	}
	if len(evt.DataBytes) != 2 || evt.DataBytes[0] != 0xBE || evt.DataBytes[1] != 0xEF {
		t.Fatalf("data bytes = %X", evt.DataBytes)
	}
}

func TestDecodeFramedChecksumMismatchStillDecodes(t *testing.T) {
	evt, err := Decode([]byte("$DM1236915CDC401#0000"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.ChecksumValid == nil || *evt.ChecksumValid {
		t.Fatalf("checksum flag = %v, want invalid", evt.ChecksumValid)
	}
}

func TestDecodeLegacyDM(t *testing.T) {
	// Status 0x93: power + overload, LS1 and LS2 hit.
	evt, err := Decode([]byte(frame("$DM|CR-77|1700000000|93|42.5")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.DeviceID != "CR-77" {
		t.Fatalf("device id = %q", evt.DeviceID)
	}
	if evt.Kind != KindTelemetry {
		t.Fatalf("kind = %q", evt.Kind)
	}
	if !*evt.Working || !*evt.Overload {
		t.Fatalf("working %v overload %v", *evt.Working, *evt.Overload)
	}
	if evt.Switches[0] != SwitchHit || evt.Switches[1] != SwitchHit || evt.Switches[2] != SwitchOK {
		t.Fatalf("switches = %v", evt.Switches)
	}
	if evt.Load == nil || *evt.Load != 42.5 {
		t.Fatalf("load = %v", evt.Load)
	}
}

func TestDecodeLegacyStatusUnparseableDegradesToUnknown(t *testing.T) {
	evt, err := Decode([]byte(frame("$DM|CR-77|1700000000|zz|10")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Switches != UnknownSwitches() {
		t.Fatalf("switches = %v, want all UNKNOWN", evt.Switches)
	}
	if evt.Overload != nil {
		t.Fatalf("overload = %v, want unset", evt.Overload)
	}
}

func TestDecodeLegacyDRMLocation(t *testing.T) {
	evt, err := Decode([]byte(frame("$DRM|CR-12|1700000000|18.2|120|normal|100.5018|13.7563|gps|4.5")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.RatedCapacity == nil || *evt.RatedCapacity != 120 {
		t.Fatalf("rated capacity = %v", evt.RatedCapacity)
	}
	if evt.OperatingMode != "normal" {
		t.Fatalf("mode = %q", evt.OperatingMode)
	}
	if evt.Location == nil || evt.Location.Latitude != 13.7563 || evt.Location.Source != "gps" {
		t.Fatalf("location = %+v", evt.Location)
	}
	if evt.Location.Accuracy == nil || *evt.Location.Accuracy != 4.5 {
		t.Fatalf("accuracy = %v", evt.Location.Accuracy)
	}
}

func TestDecodeLegacyHeartbeat(t *testing.T) {
	evt, err := Decode([]byte(frame("$HT|CR-12|1700000000")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Kind != KindHeartbeat {
		t.Fatalf("kind = %q", evt.Kind)
	}
}

func TestDecodeJSONFallback(t *testing.T) {
	payload := `{"deviceId":"CR-9","ts":1700000000,"load":12.5,"overload":true,"ls1":"HIT","mode":"erection"}`
	evt, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.DeviceID != "CR-9" || evt.Kind != KindTelemetry {
		t.Fatalf("device %q kind %q", evt.DeviceID, evt.Kind)
	}
	if evt.Load == nil || *evt.Load != 12.5 {
		t.Fatalf("load = %v", evt.Load)
	}
	if evt.Overload == nil || !*evt.Overload {
		t.Fatalf("overload = %v", evt.Overload)
	}
	if evt.Switches[0] != SwitchHit {
		t.Fatalf("ls1 = %q", evt.Switches[0])
	}
	if evt.OperatingMode != "erection" {
		t.Fatalf("mode = %q", evt.OperatingMode)
	}
}

func TestDecodeSemicolonPairs(t *testing.T) {
	evt, err := Decode([]byte("device=CR-3;ts=1700000000;load=-5;working=1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.DeviceID != "CR-3" {
		t.Fatalf("device id = %q", evt.DeviceID)
	}
	if evt.Load == nil || *evt.Load != 0 {
		t.Fatalf("negative load not clamped: %v", evt.Load)
	}
	if evt.Working == nil || !*evt.Working {
		t.Fatalf("working = %v", evt.Working)
	}
}

func TestDecodePipePairs(t *testing.T) {
	evt, err := Decode([]byte("CR-4|1700000000|LOAD:33.1|UTILIZATION_PCT:140"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.DeviceID != "CR-4" {
		t.Fatalf("device id = %q", evt.DeviceID)
	}
	if evt.Load == nil || *evt.Load != 33.1 {
		t.Fatalf("load = %v", evt.Load)
	}
	if evt.UtilizationPct == nil || *evt.UtilizationPct != 100 {
		t.Fatalf("utilization pct = %v, want clamped 100", evt.UtilizationPct)
	}
}

func TestDecodeUnrecognizedPayload(t *testing.T) {
	for _, payload := range []string{"", "garbage", "$DMnothex", "$DM12", "$XX|1|2#FFFF"} {
		if _, err := Decode([]byte(payload)); !errors.Is(err, ErrUnrecognizedPayload) {
			t.Fatalf("payload %q: err = %v, want ErrUnrecognizedPayload", payload, err)
		}
	}
}

func TestSniffDeviceID(t *testing.T) {
	id, ok := SniffDeviceID([]byte("$DM123609f1bd5020000004C1"))
	if !ok || id != "1236" {
		t.Fatalf("sniff = %q %v", id, ok)
	}
	if _, ok := SniffDeviceID([]byte("no marker")); ok {
		t.Fatalf("sniff succeeded without marker")
	}
}
