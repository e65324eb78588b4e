package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"

	"syslink-agent/internal/model"
)

// LibvirtSource overlays hypervisor host statistics onto a base source.
// Any libvirt failure falls back to the base values.
type LibvirtSource struct {
	base   Source
	conn   *ConnManager
	logger *slog.Logger

	mu           sync.Mutex
	prevCPUUsed  uint64
	prevCPUTotal uint64
	primed       bool
}

func NewLibvirtSource(base Source, conn *ConnManager, logger *slog.Logger) *LibvirtSource {
	return &LibvirtSource{base: base, conn: conn, logger: logger.With("component", "libvirt_source")}
}

func (s *LibvirtSource) GetMetrics(ctx context.Context) (model.SystemMetrics, error) {
	m, err := s.base.GetMetrics(ctx)
	if err != nil {
		return m, err
	}
	client := s.conn.Current()
	if client == nil {
		return m, nil
	}

	if usage, ok, err := s.cpuUsage(client); err != nil {
		s.logger.Debug("libvirt cpu stats unavailable", "error", err)
	} else if ok {
		m.Cpu.AverageUsage = usage
	}
	if used, total, err := memoryFromLibvirt(client); err != nil {
		s.logger.Debug("libvirt memory stats unavailable", "error", err)
	} else {
		swapTotal := m.Ram.SwapTotalGB
		swapUsed := m.Ram.SwapUsedGB
		m.Ram = model.NewRAMMetrics(toGB(total), toGB(used), swapTotal, swapUsed)
	}
	return m, nil
}

func (s *LibvirtSource) GetMinimal(ctx context.Context) (model.MinimalMetrics, error) {
	m, err := s.GetMetrics(ctx)
	if err != nil {
		return model.MinimalMetrics{}, err
	}
	return m.Minimal(), nil
}

func (s *LibvirtSource) GetSystemInfo(ctx context.Context) (model.SystemInfo, error) {
	info, err := s.base.GetSystemInfo(ctx)
	if err != nil {
		return info, err
	}
	client := s.conn.Current()
	if client == nil {
		return info, nil
	}
	cpuModel, memKiB, cpus, _, _, _, _, _, err := client.NodeGetInfo()
	if err != nil {
		s.logger.Debug("libvirt node info unavailable", "error", err)
		return info, nil
	}
	if name := int8String(cpuModel[:]); name != "" && info.CpuName == "" {
		info.CpuName = name
	}
	if cpus > 0 {
		info.CpuThreads = int(cpus)
	}
	if memKiB > 0 {
		info.TotalRamGB = toGB(memKiB * 1024)
	}
	return info, nil
}

// cpuUsage is the busy share of node CPU time since the previous call.
func (s *LibvirtSource) cpuUsage(client *golibvirt.Libvirt) (float64, bool, error) {
	_, nparams, err := client.NodeGetCPUStats(-1, 0, 0)
	if err != nil {
		return 0, false, err
	}
	stats, _, err := client.NodeGetCPUStats(-1, nparams, 0)
	if err != nil {
		return 0, false, err
	}
	fields := make(map[string]uint64, len(stats))
	for _, st := range stats {
		fields[strings.ToLower(st.Field)] = st.Value
	}
	used, total, err := cpuCountersFromFields(fields)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primed || total < s.prevCPUTotal || used < s.prevCPUUsed {
		s.prevCPUUsed, s.prevCPUTotal, s.primed = used, total, true
		return 0, false, nil
	}
	usedDelta := used - s.prevCPUUsed
	totalDelta := total - s.prevCPUTotal
	s.prevCPUUsed, s.prevCPUTotal = used, total
	if totalDelta == 0 {
		return 0, false, nil
	}
	return clampPercent(float64(usedDelta) / float64(totalDelta) * 100), true, nil
}

func cpuCountersFromFields(fields map[string]uint64) (used, total uint64, err error) {
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("empty node cpu stats")
	}
	for _, v := range fields {
		total += v
	}
	idle := fields["idle"] + fields["iowait"]
	if idle > total {
		return 0, total, nil
	}
	return total - idle, total, nil
}

func memoryFromLibvirt(client *golibvirt.Libvirt) (usedBytes, totalBytes uint64, err error) {
	_, nparams, err := client.NodeGetMemoryStats(0, -1, 0)
	if err != nil {
		return 0, 0, err
	}
	stats, _, err := client.NodeGetMemoryStats(nparams, -1, 0)
	if err != nil {
		return 0, 0, err
	}
	vals := make(map[string]uint64, len(stats))
	for _, st := range stats {
		vals[strings.ToLower(st.Field)] = st.Value
	}
	return memoryFromFields(vals)
}

// memoryFromFields converts libvirt KiB fields into used and total bytes.
func memoryFromFields(vals map[string]uint64) (usedBytes, totalBytes uint64, err error) {
	total := vals["total"] * 1024
	if total == 0 {
		return 0, 0, fmt.Errorf("total memory is zero")
	}
	reclaimable := (vals["free"] + vals["buffers"] + vals["cached"]) * 1024
	if reclaimable > total {
		return total, total, nil
	}
	return total - reclaimable, total, nil
}

func int8String(raw []int8) string {
	b := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return strings.TrimSpace(string(b))
}

// libvirtProbeTimeout bounds the agent's initial libvirt dial.
const libvirtProbeTimeout = 5 * time.Second

// ConnectWithTimeout performs a bounded initial dial; failures are left to Supervise.
func ConnectWithTimeout(ctx context.Context, conn *ConnManager) error {
	ctx, cancel := context.WithTimeout(ctx, libvirtProbeTimeout)
	defer cancel()
	return conn.Connect(ctx)
}
