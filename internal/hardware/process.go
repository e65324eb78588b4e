package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"syslink-agent/internal/model"
)

const processCacheTTL = time.Second

var systemProcessNames = map[string]struct{}{
	"system": {}, "idle": {}, "registry": {}, "smss": {}, "csrss": {}, "wininit": {},
	"services": {}, "lsass": {}, "svchost": {}, "dwm": {}, "fontdrvhost": {},
	"wmiprvse": {}, "searchindexer": {}, "securityhealthservice": {},
	"kthreadd": {}, "systemd": {}, "init": {},
}

// IsSystemProcess reports whether the process belongs to the operating system.
func IsSystemProcess(p model.ProcessInfo) bool {
	if p.Pid <= 4 {
		return true
	}
	_, ok := systemProcessNames[strings.ToLower(p.Name)]
	return ok
}

// processSample is one raw reading of a process before rates are derived.
type processSample struct {
	Pid        int32
	Name       string
	CPUSeconds float64
	RSSBytes   uint64
	ReadBytes  uint64
	WriteBytes uint64
	Status     []string
	CreateTime time.Time
	Exe        string
}

type processLister func(ctx context.Context) ([]processSample, error)

type cpuTrack struct {
	cpuSeconds float64
	at         time.Time
	usage      float64
}

// ProcessMonitor lists processes with CPU and disk rates derived from the
// previous refresh. The list is cached for one second.
type ProcessMonitor struct {
	logger   *slog.Logger
	list     processLister
	now      func() time.Time
	numCPU   int
	totalMem func(ctx context.Context) uint64

	mu       sync.Mutex
	cached   []model.ProcessInfo
	cachedAt time.Time
	cpu      map[int32]cpuTrack
	delta    *deltaEngine
}

func NewProcessMonitor(logger *slog.Logger) *ProcessMonitor {
	return &ProcessMonitor{
		logger:   logger.With("component", "processes"),
		list:     listHostProcesses,
		now:      time.Now,
		numCPU:   max(runtime.NumCPU(), 1),
		totalMem: hostTotalMemory,
		cpu:      make(map[int32]cpuTrack),
		delta:    newDeltaEngine(),
	}
}

func (p *ProcessMonitor) List(ctx context.Context, opts model.ProcessQueryOptions) (model.ProcessListResponse, error) {
	all, err := p.snapshot(ctx)
	if err != nil {
		return model.ProcessListResponse{}, err
	}

	search := strings.ToLower(strings.TrimSpace(opts.SearchTerm))
	filtered := make([]model.ProcessInfo, 0, len(all))
	for _, proc := range all {
		if search != "" && !strings.Contains(strings.ToLower(proc.Name), search) {
			continue
		}
		if !opts.IncludeSystemProcesses && IsSystemProcess(proc) {
			continue
		}
		filtered = append(filtered, proc)
	}
	sortProcesses(filtered, opts.SortBy, opts.SortDescending)

	total := len(filtered)
	if opts.Top > 0 && len(filtered) > opts.Top {
		filtered = filtered[:opts.Top]
	}
	resp := model.ProcessListResponse{
		Timestamp:         p.now().UTC(),
		TotalProcessCount: total,
		Processes:         filtered,
		SortBy:            string(opts.SortBy),
	}
	if opts.SearchTerm != "" {
		term := opts.SearchTerm
		resp.FilterApplied = &term
	}
	return resp, nil
}

func (p *ProcessMonitor) Get(ctx context.Context, pid int32) (model.ProcessInfo, error) {
	all, err := p.snapshot(ctx)
	if err != nil {
		return model.ProcessInfo{}, err
	}
	for _, proc := range all {
		if proc.Pid == pid {
			return proc, nil
		}
	}
	return model.ProcessInfo{}, fmt.Errorf("%w: %d", ErrProcessNotFound, pid)
}

func (p *ProcessMonitor) TopByCPU(ctx context.Context, n int) ([]model.ProcessInfo, error) {
	return p.top(ctx, model.SortByCpuUsage, n)
}

func (p *ProcessMonitor) TopByMemory(ctx context.Context, n int) ([]model.ProcessInfo, error) {
	return p.top(ctx, model.SortByMemoryUsage, n)
}

func (p *ProcessMonitor) top(ctx context.Context, by model.ProcessSortField, n int) ([]model.ProcessInfo, error) {
	resp, err := p.List(ctx, model.ProcessQueryOptions{SortBy: by, SortDescending: true, Top: n})
	if err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

func (p *ProcessMonitor) snapshot(ctx context.Context) ([]model.ProcessInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached != nil && now.Sub(p.cachedAt) < processCacheTTL {
		return append([]model.ProcessInfo(nil), p.cached...), nil
	}

	samples, err := p.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	totalMem := p.totalMem(ctx)

	live := make(map[int32]struct{}, len(samples))
	out := make([]model.ProcessInfo, 0, len(samples))
	for _, s := range samples {
		live[s.Pid] = struct{}{}
		key := fmt.Sprintf("proc:%d:%d", s.Pid, s.CreateTime.UnixMilli())
		info := model.ProcessInfo{
			Pid:           s.Pid,
			Name:          s.Name,
			CpuUsage:      p.cpuUsage(s, now),
			MemoryUsageMB: toMB(s.RSSBytes),
			DiskReadMBps:  p.delta.Rate(key+":read", now, s.ReadBytes) / bytesPerMB,
			DiskWriteMBps: p.delta.Rate(key+":write", now, s.WriteBytes) / bytesPerMB,
			Status:        mapProcessStatus(s.Status),
			StartTime:     s.CreateTime,
			FilePath:      s.Exe,
		}
		if totalMem > 0 {
			info.MemoryUsagePercent = clampPercent(float64(s.RSSBytes) / float64(totalMem) * 100)
		}
		out = append(out, info)
	}
	for pid := range p.cpu {
		if _, ok := live[pid]; !ok {
			delete(p.cpu, pid)
		}
	}
	p.delta.Forget(now.Add(-time.Minute))

	p.cached, p.cachedAt = out, now
	return append([]model.ProcessInfo(nil), out...), nil
}

// cpuUsage is CPU time consumed since the previous refresh divided by wall
// time and core count. The last value is kept when no time has passed.
func (p *ProcessMonitor) cpuUsage(s processSample, now time.Time) float64 {
	prev, ok := p.cpu[s.Pid]
	track := cpuTrack{cpuSeconds: s.CPUSeconds, at: now, usage: prev.usage}
	if ok && s.CPUSeconds >= prev.cpuSeconds {
		if wall := now.Sub(prev.at).Seconds(); wall > 0 {
			track.usage = clampPercent((s.CPUSeconds - prev.cpuSeconds) / wall * 100 / float64(p.numCPU))
		}
	}
	p.cpu[s.Pid] = track
	return track.usage
}

func mapProcessStatus(states []string) model.ProcessStatus {
	if len(states) == 0 {
		return model.ProcessUnknown
	}
	switch states[0] {
	case process.Running, process.Sleep, process.Idle, process.Wait, process.Lock:
		return model.ProcessRunning
	case process.Stop:
		return model.ProcessSuspended
	case process.Zombie:
		return model.ProcessNotResponding
	default:
		return model.ProcessUnknown
	}
}

func sortProcesses(procs []model.ProcessInfo, by model.ProcessSortField, desc bool) {
	less := func(a, b model.ProcessInfo) bool {
		switch by {
		case model.SortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case model.SortByPid:
			return a.Pid < b.Pid
		case model.SortByMemoryUsage:
			return a.MemoryUsageMB < b.MemoryUsageMB
		case model.SortByDiskUsage:
			return a.DiskReadMBps+a.DiskWriteMBps < b.DiskReadMBps+b.DiskWriteMBps
		case model.SortByNetworkUsage:
			return a.NetworkUsageMbps < b.NetworkUsageMbps
		case model.SortByStartTime:
			return a.StartTime.Before(b.StartTime)
		default:
			return a.CpuUsage < b.CpuUsage
		}
	}
	sort.SliceStable(procs, func(i, j int) bool {
		if desc {
			return less(procs[j], procs[i])
		}
		return less(procs[i], procs[j])
	})
}

func listHostProcesses(ctx context.Context) ([]processSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]processSample, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// process exited between listing and inspection
			continue
		}
		s := processSample{Pid: proc.Pid, Name: name}
		if t, err := proc.TimesWithContext(ctx); err == nil {
			s.CPUSeconds = t.User + t.System
		}
		if m, err := proc.MemoryInfoWithContext(ctx); err == nil {
			s.RSSBytes = m.RSS
		}
		if io, err := proc.IOCountersWithContext(ctx); err == nil {
			s.ReadBytes, s.WriteBytes = io.ReadBytes, io.WriteBytes
		}
		if st, err := proc.StatusWithContext(ctx); err == nil {
			s.Status = st
		}
		if ms, err := proc.CreateTimeWithContext(ctx); err == nil {
			s.CreateTime = time.UnixMilli(ms).UTC()
		}
		if exe, err := proc.ExeWithContext(ctx); err == nil {
			s.Exe = exe
		}
		out = append(out, s)
	}
	return out, nil
}

func hostTotalMemory(ctx context.Context) uint64 {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0
	}
	return vm.Total
}
