//go:build linux

package cpudevice

import (
	"golang.org/x/sys/unix"

	"github.com/cloverproject/clovercore/internal/logging"
)

// setAffinity pins the calling worker goroutine's locked OS thread to
// one CPU from affinity, round-robin by worker index. A failure is
// logged and otherwise ignored: affinity is a scheduling hint here,
// not a correctness requirement.
func setAffinity(affinity []int, workerIdx int, logger *logging.Logger) {
	if len(affinity) == 0 {
		return
	}
	cpu := affinity[workerIdx%len(affinity)]
	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		if logger != nil {
			logger.Warn("failed to set cpu affinity", "cpu", cpu, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Debug("pinned to cpu", "cpu", cpu)
	}
}
