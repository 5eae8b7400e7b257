package routing

import (
	"context"
	"errors"
	"strings"

	"cranecloud/internal/protocol"
)

// ErrUnroutableTopic is returned when a topic yields no device id. The
// caller logs and drops the message.
var ErrUnroutableTopic = errors.New("routing: unroutable topic")

// ErrTemplatePlaceholder flags identifiers still carrying template braces.
// That is a configuration error on the publishing side, not bad data.
var ErrTemplatePlaceholder = errors.New("routing: template placeholder in topic")

// HardwareResolver translates legacy numeric hardware ids to a tenant.
type HardwareResolver interface {
	TenantForHardware(ctx context.Context, hardwareID string) (string, bool)
}

// Route is the routing outcome for one inbound message.
type Route struct {
	TenantID string
	DeviceID string
	Channel  string
}

// Router extracts tenant and device identifiers from transport topics.
type Router struct {
	hardware HardwareResolver
}

// NewRouter constructs a router. The hardware resolver may be nil when no
// legacy numeric topics are subscribed.
func NewRouter(hardware HardwareResolver) *Router {
	return &Router{hardware: hardware}
}

// Parse resolves a topic, most specific shape first:
//
//	company/{tenant}/crane/{device}/{channel}
//	{tenant}/crane/{device}/{channel}
//	crane/{device}/{channel}
//	{hardwareId}/{line}          (legacy, device id sniffed from payload)
func (r *Router) Parse(ctx context.Context, topic string, payload []byte) (Route, error) {
	if strings.ContainsAny(topic, "{}") {
		return Route{}, ErrTemplatePlaceholder
	}
	segments := strings.Split(strings.Trim(topic, "/"), "/")

	switch {
	case len(segments) == 5 && segments[0] == "company" && segments[2] == "crane":
		return routeOf(segments[1], segments[3], segments[4])
	case len(segments) == 4 && segments[1] == "crane":
		return routeOf(segments[0], segments[2], segments[3])
	case len(segments) == 3 && segments[0] == "crane":
		return routeOf("", segments[1], segments[2])
	case len(segments) == 2 && isNumeric(segments[0]):
		return r.parseLegacy(ctx, segments[0], payload)
	default:
		return Route{}, ErrUnroutableTopic
	}
}

// parseLegacy normalizes the raw {hardwareId}/{line} shape: the tenant comes
// from the hardware lookup and the device id from the payload marker.
func (r *Router) parseLegacy(ctx context.Context, hardwareID string, payload []byte) (Route, error) {
	if r == nil || r.hardware == nil {
		return Route{}, ErrUnroutableTopic
	}
	tenantID, ok := r.hardware.TenantForHardware(ctx, hardwareID)
	if !ok {
		return Route{}, ErrUnroutableTopic
	}
	deviceID, ok := protocol.SniffDeviceID(payload)
	if !ok {
		return Route{}, ErrUnroutableTopic
	}
	return routeOf(tenantID, deviceID, "telemetry")
}

func routeOf(tenantID, deviceID, channel string) (Route, error) {
	if deviceID == "" {
		return Route{}, ErrUnroutableTopic
	}
	return Route{TenantID: tenantID, DeviceID: deviceID, Channel: channel}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
