package utils

import "github.com/shirou/gopsutil/cpu"

// CheckCPUUsage reports whether current usage is at or below maxCPUUsage.
// A non-positive limit disables the check.
func CheckCPUUsage(maxCPUUsage float64) (bool, float64) {
	usage, err := cpu.Percent(0, false)
	if err != nil || len(usage) == 0 {
		return true, 0
	}
	if maxCPUUsage <= 0 {
		return true, usage[0]
	}
	return usage[0] <= maxCPUUsage, usage[0]
}
