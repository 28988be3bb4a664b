package systems

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/Fullex26/framecore/pkg/models"
)

type fsStat struct {
	Bsize  int64
	Blocks uint64
	Bfree  uint64
}

// HostSampler reads load, memory and disk usage. Readings that fail are
// left at zero.
type HostSampler struct {
	ProcRoot string // normally /proc
	DiskPath string // filesystem sampled for disk usage

	statfs func(string) (fsStat, error)
}

func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{
		ProcRoot: "/proc",
		DiskPath: diskPath,
		statfs:   statfs,
	}
}

// Sample takes one reading. It does file and syscall I/O, so it belongs on
// a worker, not the loop goroutine.
func (h *HostSampler) Sample() models.HostSample {
	var s models.HostSample
	s.Load1, s.Load5, s.Load15 = h.loadAverage()
	s.MemoryUsedPercent = h.memoryUsage()
	s.DiskUsagePercent = h.diskUsage()
	s.Goroutines = runtime.NumGoroutine()
	return s
}

func (h *HostSampler) loadAverage() (l1, l5, l15 float64) {
	data, err := os.ReadFile(filepath.Join(h.ProcRoot, "loadavg"))
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15
}

func (h *HostSampler) memoryUsage() int {
	data, err := os.ReadFile(filepath.Join(h.ProcRoot, "meminfo"))
	if err != nil {
		return 0
	}

	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		val, _ := strconv.ParseInt(fields[1], 10, 64)
		switch fields[0] {
		case "MemTotal:":
			total = val
		case "MemAvailable:":
			available = val
		}
	}

	if total == 0 {
		return 0
	}
	used := total - available
	return int((used * 100) / total)
}

func (h *HostSampler) diskUsage() int {
	if h.statfs == nil {
		return 0
	}
	stat, err := h.statfs(h.DiskPath)
	if err != nil {
		return 0
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	used := total - free
	return int((used * 100) / total)
}
