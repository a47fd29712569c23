package manager

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// sampleMemUsage returns the process's current resident set size, the Go
// analogue of sampling erlang:memory/0 at a state transition.
func sampleMemUsage() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
