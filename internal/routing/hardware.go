package routing

import "context"

// StaticHardwareResolver maps legacy hardware serials to tenants from
// configuration. Lookups never fail transiently, so there is no error path.
type StaticHardwareResolver map[string]string

func (r StaticHardwareResolver) TenantForHardware(_ context.Context, hardwareID string) (string, bool) {
	tenant, ok := r[hardwareID]
	return tenant, ok
}
