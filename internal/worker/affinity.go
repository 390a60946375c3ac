//go:build linux

package worker

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CPUListFromMask converts a CPU affinity bitmask (RootConfig.AffinityMask)
// into the list of CPU indices it selects. A zero mask selects no CPUs,
// meaning "leave affinity unset".
func CPUListFromMask(mask uint64) []int {
	var cpus []int
	for bit := 0; mask > 0; bit++ {
		if mask&1 != 0 {
			cpus = append(cpus, bit)
		}
		mask >>= 1
	}
	return cpus
}

// SetAffinity pins the calling OS thread to the CPUs selected by mask. It
// is a no-op when mask is zero. Each goroutine that calls this must also
// call runtime.LockOSThread, since affinity is a per-thread property on
// Linux and Go otherwise reschedules goroutines freely across OS threads.
func SetAffinity(mask uint64) error {
	cpus := CPUListFromMask(mask)
	if len(cpus) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("worker: setting CPU affinity: %w", err)
	}
	return nil
}
