package worker

import "testing"

func TestCPUListFromMask_ZeroMeansNone(t *testing.T) {
	if cpus := CPUListFromMask(0); len(cpus) != 0 {
		t.Errorf("expected no CPUs selected, got %v", cpus)
	}
}

func TestCPUListFromMask_DecodesBits(t *testing.T) {
	cpus := CPUListFromMask(0b101) // CPUs 0 and 2
	if len(cpus) != 2 || cpus[0] != 0 || cpus[1] != 2 {
		t.Errorf("expected [0 2], got %v", cpus)
	}
}
