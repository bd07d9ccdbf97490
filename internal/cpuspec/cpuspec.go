// Package cpuspec inspects the host CPU to pick a sensible thread count
// for embedding inference on hybrid core architectures, where running
// the model across efficiency cores slows it down.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec describes the host CPU as far as core topology is concerned.
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
	EfficiencyCores  int
}

// GetCPUSpec detects the host CPU and its performance core count.
// PerformanceCores is 0 when the model is not in the known tables.
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: performanceCores(brandName),
	}
}

// GetOptimalThreadCount returns the recommended number of inference
// threads: the performance core count on known hybrid CPUs, otherwise
// all logical cores. Never exceeds the CPUs actually available to the
// process, which matters inside VMs and containers.
func (c CPUSpec) GetOptimalThreadCount() int {
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, availableCPUs)
	}

	return cpuid.CPU.LogicalCores
}

// P-core counts for Intel hybrid desktop models, keyed by the model
// number extracted from the brand string.
var intelPCores = map[string]int{
	// 12th gen
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	// 13th gen
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	// 14th gen
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
}

// P-core counts for Intel Core Ultra models, keyed by series+model.
var intelUltraPCores = map[string]int{
	"9-285": 8,
	"7-265": 8, "7-255": 8,
	"5-235": 6, "5-225": 4,
}

// P-core counts for Apple Silicon, keyed by normalized chip name.
var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

var (
	intelCoreRegex = regexp.MustCompile(`intel.*(?:core.*i[357,9]-(\d{5})|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleRegex     = regexp.MustCompile(`(?i)apple\s+(m[123,4]\s*(pro|max|ultra)?)\s*`)
)

// performanceCores maps a CPU brand string to its P-core count, or 0
// when the CPU is not a known hybrid model.
func performanceCores(brandName string) int {
	lower := strings.ToLower(brandName)

	if matches := intelCoreRegex.FindStringSubmatch(lower); len(matches) > 1 {
		if matches[1] != "" {
			if cores, ok := intelPCores[matches[1]]; ok {
				return cores
			}
		} else if matches[2] != "" {
			if cores, ok := intelUltraPCores[matches[2]+"-"+matches[3]]; ok {
				return cores
			}
		}
	}

	if matches := appleRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		chip := strings.ToLower(strings.TrimSpace(matches[1]))
		if cores, ok := applePCores[chip]; ok {
			return cores
		}
	}

	return 0
}
