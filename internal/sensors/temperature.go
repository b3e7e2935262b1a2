// ============================================================================
// TheSquid Chassis Temperature Probe
// ============================================================================
//
// Package: internal/sensors
// File: temperature.go
// Purpose: Best-effort chassis temperature reading reported in task results
//
// The probe is strictly optional: on hosts without readable sensors the
// result field is an empty string, never an error. Task handlers embed the
// value verbatim in their result JSON.
//
// ============================================================================

// Package sensors exposes the optional host temperature probe
package sensors

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/host"
)

// Temperature returns the hottest sensor reading in degrees Celsius
// formatted as a decimal string, or "" when no sensor is readable.
func Temperature() string {
	stats, err := host.SensorsTemperatures()
	if err != nil || len(stats) == 0 {
		return ""
	}
	max := 0.0
	found := false
	for _, s := range stats {
		if s.Temperature > max {
			max = s.Temperature
			found = true
		}
	}
	if !found {
		return ""
	}
	return fmt.Sprintf("%.1f", max)
}
