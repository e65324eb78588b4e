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

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"syslink-agent/internal/model"
)

// HostSource samples the local machine. Samples are serialized because
// rates are derived from the previous sample.
type HostSource struct {
	logger       *slog.Logger
	settings     SettingsSource
	hostname     string
	agentVersion string
	sysRoot      string
	now          func() time.Time
	gpu          func(ctx context.Context) (model.GPUMetrics, bool)

	mu    sync.Mutex
	delta *deltaEngine

	infoOnce sync.Once
	cpuName  string
	cpuMhz   float64
}

func NewHostSource(hostname, agentVersion string, settings SettingsSource, logger *slog.Logger) *HostSource {
	return &HostSource{
		logger:       logger.With("component", "hardware"),
		settings:     settings,
		hostname:     hostname,
		agentVersion: agentVersion,
		sysRoot:      "/sys",
		now:          time.Now,
		gpu:          readNvidiaGPU,
		delta:        newDeltaEngine(),
	}
}

func (h *HostSource) GetMetrics(ctx context.Context) (model.SystemMetrics, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mon := h.settings.Get().Monitoring
	now := h.now().UTC()
	out := model.SystemMetrics{
		Timestamp: now,
		Disks:     []model.DiskMetrics{},
		Fans:      []model.FanMetrics{},
	}

	if mon.EnableCpuMonitoring {
		c, err := h.readCPU(ctx)
		if err != nil {
			return model.SystemMetrics{}, fmt.Errorf("read cpu: %w", err)
		}
		out.Cpu = c
	}
	if mon.EnableRamMonitoring {
		r, err := readRAM(ctx)
		if err != nil {
			return model.SystemMetrics{}, fmt.Errorf("read memory: %w", err)
		}
		out.Ram = r
	}
	if mon.EnableGpuMonitoring {
		if g, ok := h.gpu(ctx); ok {
			out.Gpu = g
		}
	}
	if mon.EnableDiskMonitoring {
		disks, err := h.readDisks(ctx, now)
		if err != nil {
			h.logger.Warn("disk read failed", "error", err)
		} else {
			out.Disks = disks
		}
	}
	if mon.EnableNetworkMonitoring {
		n, err := h.readNetwork(ctx, now)
		if err != nil {
			h.logger.Warn("network read failed", "error", err)
		} else {
			out.Network = n
		}
	}
	if mon.EnableBatteryMonitoring {
		out.Battery = readBattery()
	}
	if mon.EnableFanMonitoring {
		if fans := readHwmonFans(h.sysRoot); len(fans) > 0 {
			out.Fans = fans
		}
	}

	h.delta.Forget(now.Add(-10 * time.Minute))
	return out, nil
}

func (h *HostSource) GetMinimal(ctx context.Context) (model.MinimalMetrics, error) {
	m, err := h.GetMetrics(ctx)
	if err != nil {
		return model.MinimalMetrics{}, err
	}
	return m.Minimal(), nil
}

func (h *HostSource) GetSystemInfo(ctx context.Context) (model.SystemInfo, error) {
	h.loadCPUInfo(ctx)

	info := model.SystemInfo{
		DeviceName:   h.hostname,
		CpuName:      h.cpuName,
		AgentVersion: h.agentVersion,
		Motherboard:  readMotherboard(h.sysRoot),
		HasBattery:   readBattery() != nil,
	}
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return model.SystemInfo{}, fmt.Errorf("host info: %w", err)
	}
	info.OperatingSystem = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
	if info.OperatingSystem == "" {
		info.OperatingSystem = hi.OS
	}
	info.OsVersion = hi.KernelVersion
	info.BootTime = time.Unix(int64(hi.BootTime), 0).UTC()
	info.UptimeSeconds = int64(hi.Uptime)

	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CpuCores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CpuThreads = threads
	} else {
		info.CpuThreads = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalRamGB = toGB(vm.Total)
	}
	if g, ok := h.gpu(ctx); ok {
		info.GpuName = g.Name
	}
	return info, nil
}

func (h *HostSource) loadCPUInfo(ctx context.Context) {
	h.infoOnce.Do(func() {
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil || len(infos) == 0 {
			h.cpuName = runtime.GOARCH
			return
		}
		h.cpuName = strings.TrimSpace(infos[0].ModelName)
		h.cpuMhz = infos[0].Mhz
	})
}

func (h *HostSource) readCPU(ctx context.Context) (model.CPUMetrics, error) {
	h.loadCPUInfo(ctx)

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return model.CPUMetrics{}, err
	}
	temps := readCPUTemperatures(ctx, h.sysRoot)

	out := model.CPUMetrics{
		Name:               h.cpuName,
		AverageTemperature: temps.avg,
		MaxTemperature:     temps.max,
		Cores:              make([]model.CPUCoreMetrics, 0, len(perCore)),
	}
	var sum float64
	for i, pct := range perCore {
		pct = clampPercent(pct)
		sum += pct
		out.Cores = append(out.Cores, model.CPUCoreMetrics{
			CoreID:      i,
			Usage:       pct,
			Temperature: temps.perCore[i],
			ClockSpeed:  h.cpuMhz,
		})
	}
	if len(perCore) > 0 {
		out.AverageUsage = sum / float64(len(perCore))
	}
	return out, nil
}

func readRAM(ctx context.Context) (model.RAMMetrics, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.RAMMetrics{}, err
	}
	var swapTotal, swapUsed uint64
	if sw, swErr := mem.SwapMemoryWithContext(ctx); swErr == nil {
		swapTotal, swapUsed = sw.Total, sw.Used
	}
	used := vm.Total - vm.Available
	if vm.Available > vm.Total {
		used = vm.Used
	}
	return model.NewRAMMetrics(toGB(vm.Total), toGB(used), toGB(swapTotal), toGB(swapUsed)), nil
}

func (h *HostSource) readDisks(ctx context.Context, now time.Time) ([]model.DiskMetrics, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	io, ioErr := disk.IOCountersWithContext(ctx)
	if ioErr != nil {
		h.logger.Debug("disk io counters unavailable", "error", ioErr)
	}

	seen := map[string]bool{}
	out := make([]model.DiskMetrics, 0, len(parts))
	for _, p := range parts {
		if seen[p.Device] || !isPhysicalFS(p.Fstype) {
			continue
		}
		seen[p.Device] = true
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		d := model.DiskMetrics{
			Name:         p.Device,
			DriveLetter:  p.Mountpoint,
			TotalGB:      toGB(usage.Total),
			UsedGB:       toGB(usage.Used),
			FreeGB:       toGB(usage.Free),
			UsagePercent: clampPercent(usage.UsedPercent),
			HealthStatus: "Healthy",
		}
		dev := strings.TrimPrefix(p.Device, "/dev/")
		if c, ok := io[dev]; ok {
			d.ReadSpeedMBps = h.delta.Rate("disk:"+dev+":read", now, c.ReadBytes) / bytesPerMB
			d.WriteSpeedMBps = h.delta.Rate("disk:"+dev+":write", now, c.WriteBytes) / bytesPerMB
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriveLetter < out[j].DriveLetter })
	return out, nil
}

func isPhysicalFS(fstype string) bool {
	switch strings.ToLower(fstype) {
	case "", "tmpfs", "devtmpfs", "overlay", "squashfs", "proc", "sysfs", "cgroup", "cgroup2", "devfs", "autofs", "nsfs", "fuse.snapfuse":
		return false
	default:
		return true
	}
}

func (h *HostSource) readNetwork(ctx context.Context, now time.Time) (model.NetworkMetrics, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return model.NetworkMetrics{}, err
	}
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return model.NetworkMetrics{}, err
	}
	byName := make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}

	primary, ok := pickPrimaryInterface(ifaces, byName)
	if !ok {
		return model.NetworkMetrics{}, nil
	}
	c := byName[primary.Name]
	out := model.NetworkMetrics{
		AdapterName:        primary.Name,
		ConnectionType:     connectionType(primary.Name),
		TotalBytesSent:     c.BytesSent,
		TotalBytesReceived: c.BytesRecv,
		IsConnected:        hasFlag(primary.Flags, "up") && len(primary.Addrs) > 0,
	}
	for _, a := range primary.Addrs {
		if ip := strings.SplitN(a.Addr, "/", 2)[0]; strings.Contains(ip, ".") {
			out.IPAddress = ip
			break
		}
	}
	out.UploadSpeedMbps = h.delta.Rate("net:"+primary.Name+":tx", now, c.BytesSent) * 8 / 1e6
	out.DownloadSpeedMbps = h.delta.Rate("net:"+primary.Name+":rx", now, c.BytesRecv) * 8 / 1e6
	return out, nil
}

// pickPrimaryInterface prefers an up, non-loopback adapter with an address
// and the most traffic.
func pickPrimaryInterface(ifaces []psnet.InterfaceStat, counters map[string]psnet.IOCountersStat) (psnet.InterfaceStat, bool) {
	var best psnet.InterfaceStat
	var bestScore uint64
	found := false
	for _, ifc := range ifaces {
		if hasFlag(ifc.Flags, "loopback") || isVirtualAdapter(ifc.Name) {
			continue
		}
		c := counters[ifc.Name]
		score := c.BytesSent + c.BytesRecv
		if hasFlag(ifc.Flags, "up") && len(ifc.Addrs) > 0 {
			score += 1 << 62
		}
		if !found || score > bestScore {
			best, bestScore, found = ifc, score, true
		}
	}
	return best, found
}

func isVirtualAdapter(name string) bool {
	for _, prefix := range []string{"docker", "veth", "br-", "virbr", "vnet", "tun", "tap", "lo"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func connectionType(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"):
		return "WiFi"
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return "Ethernet"
	case strings.HasPrefix(name, "ww"):
		return "Cellular"
	default:
		return "Other"
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
