package probes

import (
	"os"
	"runtime"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// GoSystemProbe implements SystemProbe using gopsutil.
//
// System CPU usage is the busy share between two consecutive GetMetrics
// calls. The probe runs no goroutines; it is sampled from the scheduler
// loop like everything else.
type GoSystemProbe struct {
	startTime time.Time
	proc      *process.Process

	lastCPUTimes cpu.TimesStat
	haveBaseline bool
	lastPercent  float64
}

// NewGoSystemProbe creates a new system probe for this process
func NewGoSystemProbe() (*GoSystemProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	probe := &GoSystemProbe{
		startTime: time.Now(),
		proc:      p,
	}
	probe.sampleCPU()

	return probe, nil
}

// sampleCPU updates the cached system CPU percentage from the delta since
// the previous sample.
func (p *GoSystemProbe) sampleCPU() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return p.lastPercent
	}

	current := times[0]
	if p.haveBaseline {
		deltaTotal := current.Total() - p.lastCPUTimes.Total()
		deltaIdle := current.Idle - p.lastCPUTimes.Idle
		if deltaTotal > 0 {
			p.lastPercent = round(100*(deltaTotal-deltaIdle)/deltaTotal, 2)
		}
	}

	p.lastCPUTimes = current
	p.haveBaseline = true
	return p.lastPercent
}

// GetMetrics collects current system and process metrics
func (p *GoSystemProbe) GetMetrics() (*SystemMetrics, error) {
	hostname, _ := os.Hostname()

	return &SystemMetrics{
		Language: types.LangGo,
		Version:  runtime.Version(),
		PID:      os.Getpid(),
		Hostname: hostname,
		Platform: runtime.GOOS,
		Uptime:   time.Since(p.startTime).Seconds(),
		CPU:      p.getCPUMetrics(),
		Memory:   p.getMemoryMetrics(),
	}, nil
}

func (p *GoSystemProbe) getCPUMetrics() types.CPUMetrics {
	systemPercent := p.sampleCPU()

	cores := runtime.NumCPU()
	if c, err := cpu.Counts(true); err == nil && c > 0 {
		cores = c
	}

	procPercent := 0.0
	if pct, err := p.proc.CPUPercent(); err == nil {
		// gopsutil reports a share of ONE core; normalise to the machine.
		procPercent = round(pct/float64(cores), 2)
	}

	return types.CPUMetrics{
		System:  systemPercent,
		Process: procPercent,
		Cores:   cores,
	}
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := 1.0
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}

func (p *GoSystemProbe) getMemoryMetrics() types.MemoryMetrics {
	var systemMem types.SystemMemory
	if v, err := mem.VirtualMemory(); err == nil {
		systemMem.Total = v.Total
		systemMem.Free = v.Available
		systemMem.Used = v.Used
	}

	var processMem types.ProcessMemory
	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		processMem.RSS = memInfo.RSS
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	processMem.HeapTotal = m.HeapSys
	processMem.HeapUsed = m.HeapAlloc
	if processMem.RSS == 0 {
		processMem.RSS = m.Sys
	}

	return types.MemoryMetrics{
		System:  systemMem,
		Process: processMem,
	}
}
