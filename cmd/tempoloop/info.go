package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/cpuid"

	"github.com/tphakala/tempoloop/internal/simdops"
)

// printInfo reports the CPU and the vector path the DSP code will take.
func printInfo(w io.Writer) {
	c := cpuid.CPU
	fmt.Fprintf(w, "CPU:      %s\n", c.BrandName)
	fmt.Fprintf(w, "Cores:    %d physical, %d logical (%d threads/core)\n",
		c.PhysicalCores, c.LogicalCores, c.ThreadsPerCore)
	fmt.Fprintf(w, "Cache:    L1d %s, L2 %s, L3 %s\n",
		formatBytes(c.Cache.L1D), formatBytes(c.Cache.L2), formatBytes(c.Cache.L3))
	fmt.Fprintf(w, "Features: SSE4.1=%t AVX=%t AVX2=%t FMA3=%t\n", c.SSE4(), c.AVX(), c.AVX2(), c.FMA3())
	fmt.Fprintf(w, "SIMD:     %s\n", simdops.Info())
	fmt.Fprintf(w, "Runtime:  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// formatBytes renders a cache size; cpuid reports -1 when unknown.
func formatBytes(n int) string {
	const kib = 1024
	switch {
	case n <= 0:
		return "unknown"
	case n >= kib*kib:
		return fmt.Sprintf("%d MiB", n/(kib*kib))
	case n >= kib:
		return fmt.Sprintf("%d KiB", n/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
