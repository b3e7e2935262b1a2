// ============================================================================
// TheSquid Benchmark Kernel
// ============================================================================
//
// Package: internal/bench
// File: kernel.go
// Purpose: Fixed, deterministic CPU workload for capacity measurement
//
// The exact computation is irrelevant to callers; what matters is that the
// same (nb, payload) input always burns the same amount of work, so timings
// from different squidlets are comparable.
//
// ============================================================================

// Package bench provides the deterministic benchmark workload
package bench

import "sort"

// workingSetSize is the number of elements sorted per loop
const workingSetSize = 1024

// Run executes the benchmark kernel nb times over the payload and returns a
// checksum of the work performed. The checksum forces the compiler to keep
// the sorts and gives tests a value to pin.
func Run(nb int, payload string) uint64 {
	var checksum uint64
	for loop := 0; loop < nb; loop++ {
		// Seed the working set from the payload so different payload sizes
		// produce different, but reproducible, orderings.
		set := make([]int, workingSetSize)
		for i := range set {
			c := 0
			if len(payload) > 0 {
				c = int(payload[(i+loop)%len(payload)])
			}
			set[i] = (i*31 + c*7 + loop) % workingSetSize
		}
		sort.Sort(sort.Reverse(sort.IntSlice(set)))
		sort.Ints(set)
		checksum += uint64(set[0]) + uint64(set[workingSetSize-1])*uint64(loop+1)
	}
	return checksum
}
