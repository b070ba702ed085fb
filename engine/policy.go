package engine

import (
	"fmt"

	"github.com/oneedge/gateway/interfaces"
)

// PolicyIssuer builds the connectivity policy delivered to a device after a
// successful authentication. The gateway only issues the document; a
// downstream enforcement point is expected to honor it.
type PolicyIssuer struct {
	// BaseTopic roots the per-device telemetry and alert topics.
	BaseTopic string
}

// Build returns the policy for a device. An operator-set policy document
// wins verbatim; otherwise the policy is synthesized from the device's
// allowed endpoints and rotation cadence.
func (p PolicyIssuer) Build(dev *interfaces.Device) map[string]any {
	if len(dev.PolicyDocument) > 0 {
		policy := make(map[string]any, len(dev.PolicyDocument))
		for k, v := range dev.PolicyDocument {
			policy[k] = v
		}
		return policy
	}

	endpoints := []string(dev.AllowedEndpoints)
	if endpoints == nil {
		endpoints = []string{}
	}
	return map[string]any{
		"device_id":         dev.DeviceID,
		"allowed_endpoints": endpoints,
		"topics": map[string]any{
			"telemetry": fmt.Sprintf("%s/devices/%s/telemetry", p.BaseTopic, dev.DeviceID),
			"alerts":    fmt.Sprintf("%s/devices/%s/alerts", p.BaseTopic, dev.DeviceID),
		},
		"rotation_interval_hours": dev.RotationIntervalHours,
	}
}
