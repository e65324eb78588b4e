package hardware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"

	"syslink-agent/internal/model"
)

func TestDeltaEngineRate(t *testing.T) {
	e := newDeltaEngine()
	t0 := time.Unix(100, 0)
	if r := e.Rate("k", t0, 1000); r != 0 {
		t.Fatalf("first sample must be 0, got %v", r)
	}
	if r := e.Rate("k", t0.Add(2*time.Second), 5000); r != 2000 {
		t.Fatalf("expected 2000/s, got %v", r)
	}
	if r := e.Rate("k", t0.Add(3*time.Second), 10); r != 0 {
		t.Fatalf("counter reset must yield 0, got %v", r)
	}
	e.Forget(t0.Add(time.Hour))
	if _, _, ok := e.ObserveCounter("k", t0.Add(4*time.Second), 20); ok {
		t.Fatalf("forgotten key must start over")
	}
}

func TestParseNvidiaRow(t *testing.T) {
	g, ok := parseNvidiaRow([]string{"NVIDIA GeForce RTX 3080", "57", "2048", "10240", "66", "1710", "9501", "[Not Supported]", "40"})
	if !ok {
		t.Fatalf("expected row to parse")
	}
	if g.Name != "NVIDIA GeForce RTX 3080" || g.Usage != 57 || g.Temperature != 66 || g.Power != 0 || g.FanSpeed != 40 {
		t.Fatalf("unexpected gpu %+v", g)
	}
	if math.Abs(g.VramUsagePercent-20) > 1e-9 {
		t.Fatalf("expected 20%% vram, got %v", g.VramUsagePercent)
	}
	if _, ok := parseNvidiaRow([]string{"short"}); ok {
		t.Fatalf("short rows must be rejected")
	}
}

func TestSummarizeCPUSensors(t *testing.T) {
	temps := summarizeCPUSensors([]host.TemperatureStat{
		{SensorKey: "coretemp_packageid0", Temperature: 70},
		{SensorKey: "coretemp_core0", Temperature: 60},
		{SensorKey: "coretemp_core_1", Temperature: 80},
		{SensorKey: "nvme_composite", Temperature: 95},
	})
	if temps.max != 80 || temps.avg != 70 {
		t.Fatalf("unexpected max/avg %v/%v", temps.max, temps.avg)
	}
	if temps.perCore[0] != 60 || temps.perCore[1] != 80 {
		t.Fatalf("unexpected per core %v", temps.perCore)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSysfsReaders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "class/hwmon/hwmon0/name"), "nct6775\n")
	writeFile(t, filepath.Join(root, "class/hwmon/hwmon0/fan1_input"), "1200\n")
	writeFile(t, filepath.Join(root, "class/hwmon/hwmon0/fan1_label"), "CPU Fan\n")
	writeFile(t, filepath.Join(root, "class/hwmon/hwmon0/pwm1"), "255\n")
	writeFile(t, filepath.Join(root, "class/hwmon/hwmon0/fan2_input"), "800\n")
	writeFile(t, filepath.Join(root, "class/thermal/thermal_zone0/temp"), "45000\n")
	writeFile(t, filepath.Join(root, "class/thermal/thermal_zone0/type"), "acpitz\n")
	writeFile(t, filepath.Join(root, "class/thermal/thermal_zone1/temp"), "61500\n")
	writeFile(t, filepath.Join(root, "class/thermal/thermal_zone1/type"), "x86_pkg_temp\n")
	writeFile(t, filepath.Join(root, "class/dmi/id/board_vendor"), "ASUSTeK\n")
	writeFile(t, filepath.Join(root, "class/dmi/id/board_name"), "PRIME B550\n")

	fans := readHwmonFans(root)
	if len(fans) != 2 {
		t.Fatalf("expected 2 fans, got %+v", fans)
	}
	if fans[0].Name != "CPU Fan" || fans[0].RPM != 1200 || fans[0].SpeedPercent != 100 || fans[0].Type != model.FanCPU {
		t.Fatalf("unexpected first fan %+v", fans[0])
	}
	if fans[1].Name != "nct6775 fan 2" || fans[1].Type != model.FanOther {
		t.Fatalf("unexpected second fan %+v", fans[1])
	}
	if got := readThermalZoneCPU(root); got != 61.5 {
		t.Fatalf("expected package zone 61.5, got %v", got)
	}
	if got := readMotherboard(root); got != "ASUSTeK PRIME B550" {
		t.Fatalf("unexpected board %q", got)
	}
}

func TestPickPrimaryInterface(t *testing.T) {
	ifaces := []psnet.InterfaceStat{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "docker0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "172.17.0.1/16"}}},
		{Name: "eth0", Flags: []string{"up"}},
		{Name: "wlan0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.20/24"}}},
	}
	counters := map[string]psnet.IOCountersStat{"eth0": {BytesRecv: 1 << 30}, "wlan0": {BytesRecv: 10}}
	got, ok := pickPrimaryInterface(ifaces, counters)
	if !ok || got.Name != "wlan0" {
		t.Fatalf("expected wlan0, got %q", got.Name)
	}
	if connectionType(got.Name) != "WiFi" || connectionType("enp3s0") != "Ethernet" {
		t.Fatalf("unexpected connection types")
	}
}

func TestBatteryMetrics(t *testing.T) {
	b := &battery.Battery{
		State:      battery.State{Raw: battery.Discharging},
		Current:    25000,
		Full:       50000,
		Design:     62500,
		ChargeRate: 12500,
		Voltage:    11.4,
	}
	m := batteryMetrics(b)
	if m.ChargePercent != 50 || m.Status != model.BatteryDischarging {
		t.Fatalf("unexpected %+v", m)
	}
	if m.FullChargeCapacityWh != 50 || m.DesignCapacityWh != 62.5 || math.Abs(m.WearLevel-20) > 1e-9 {
		t.Fatalf("unexpected capacities %+v", m)
	}
	if m.DischargeRateW != 12.5 || m.EstimatedTimeRemaining == nil || *m.EstimatedTimeRemaining != 7200 {
		t.Fatalf("unexpected discharge data %+v", m)
	}
	if batteryStatus(battery.Idle) != model.BatteryNotCharging || batteryStatus(battery.Full) != model.BatteryFull {
		t.Fatalf("unexpected status mapping")
	}
}

func TestLibvirtFieldHelpers(t *testing.T) {
	used, total, err := cpuCountersFromFields(map[string]uint64{"kernel": 100, "user": 300, "idle": 500, "iowait": 100})
	if err != nil || used != 400 || total != 1000 {
		t.Fatalf("unexpected cpu counters %d/%d (%v)", used, total, err)
	}
	if _, _, err := cpuCountersFromFields(nil); err == nil {
		t.Fatalf("empty stats must fail")
	}
	usedB, totalB, err := memoryFromFields(map[string]uint64{"total": 1000, "free": 200, "buffers": 50, "cached": 250})
	if err != nil || usedB != 500*1024 || totalB != 1000*1024 {
		t.Fatalf("unexpected memory %d/%d (%v)", usedB, totalB, err)
	}
	if got := int8String([]int8{'x', '8', '6', '_', '6', '4', 0, 'z'}); got != "x86_64" {
		t.Fatalf("unexpected model %q", got)
	}
}

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) GetMetrics(context.Context) (model.SystemMetrics, error) {
	c.calls++
	if c.err != nil {
		return model.SystemMetrics{}, c.err
	}
	return model.SystemMetrics{Cpu: model.CPUMetrics{AverageUsage: float64(c.calls)}}, nil
}

func (c *countingSource) GetMinimal(ctx context.Context) (model.MinimalMetrics, error) {
	m, err := c.GetMetrics(ctx)
	return m.Minimal(), err
}

func (c *countingSource) GetSystemInfo(context.Context) (model.SystemInfo, error) {
	return model.SystemInfo{DeviceName: "box"}, nil
}

func TestCachedSourceSharesSnapshot(t *testing.T) {
	base := &countingSource{}
	c := NewCachedSource(base, 500*time.Millisecond)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	first, _ := c.GetMetrics(ctx)
	now = now.Add(100 * time.Millisecond)
	second, _ := c.GetMinimal(ctx)
	if base.calls != 1 || second.CpuUsage != first.Cpu.AverageUsage {
		t.Fatalf("expected cached sample, calls=%d", base.calls)
	}
	now = now.Add(time.Second)
	if m, _ := c.GetMetrics(ctx); base.calls != 2 || m.Cpu.AverageUsage != 2 {
		t.Fatalf("expected refresh after maxAge, calls=%d", base.calls)
	}

	base.err = errors.New("sensor fault")
	now = now.Add(time.Second)
	if _, err := c.GetMetrics(ctx); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func fakeProcesses(samples *[]processSample) processLister {
	return func(context.Context) ([]processSample, error) {
		return append([]processSample(nil), (*samples)...), nil
	}
}

func newTestMonitor(samples *[]processSample, now *time.Time) *ProcessMonitor {
	p := NewProcessMonitor(discardLogger())
	p.list = fakeProcesses(samples)
	p.now = func() time.Time { return *now }
	p.numCPU = 2
	p.totalMem = func(context.Context) uint64 { return 1000 * bytesPerMB }
	return p
}

func TestProcessMonitorListing(t *testing.T) {
	now := time.Unix(1000, 0)
	samples := []processSample{
		{Pid: 4, Name: "System"},
		{Pid: 100, Name: "svchost", CPUSeconds: 1},
		{Pid: 200, Name: "chrome", CPUSeconds: 10, RSSBytes: 300 * bytesPerMB, Status: []string{"running"}},
		{Pid: 300, Name: "Chromium", CPUSeconds: 5, RSSBytes: 100 * bytesPerMB, Status: []string{"stop"}},
		{Pid: 400, Name: "editor", CPUSeconds: 0, RSSBytes: 50 * bytesPerMB},
	}
	p := newTestMonitor(&samples, &now)
	ctx := context.Background()

	if _, err := p.List(ctx, model.DefaultProcessQueryOptions()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	now = now.Add(2 * time.Second)
	samples[2].CPUSeconds = 12 // 2s of cpu over 2s wall on 2 cores = 50%
	samples[3].CPUSeconds = 5.4

	resp, err := p.List(ctx, model.ProcessQueryOptions{SortBy: model.SortByCpuUsage, SortDescending: true, Top: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.TotalProcessCount != 3 {
		t.Fatalf("system processes must be excluded before counting, got %d", resp.TotalProcessCount)
	}
	if len(resp.Processes) != 2 || resp.Processes[0].Pid != 200 || resp.Processes[0].CpuUsage != 50 {
		t.Fatalf("unexpected top processes %+v", resp.Processes)
	}
	if resp.Processes[0].MemoryUsagePercent != 30 || resp.Processes[0].Status != model.ProcessRunning {
		t.Fatalf("unexpected process details %+v", resp.Processes[0])
	}
	if resp.Processes[1].Status != model.ProcessSuspended {
		t.Fatalf("stopped process should be Suspended, got %s", resp.Processes[1].Status)
	}
	if resp.FilterApplied != nil || resp.SortBy != "CpuUsage" {
		t.Fatalf("unexpected response metadata %+v", resp)
	}

	resp, _ = p.List(ctx, model.ProcessQueryOptions{SortBy: model.SortByName, SearchTerm: "CHROM", IncludeSystemProcesses: true})
	if resp.TotalProcessCount != 2 || resp.Processes[0].Name != "chrome" || resp.FilterApplied == nil || *resp.FilterApplied != "CHROM" {
		t.Fatalf("unexpected search result %+v", resp)
	}

	resp, _ = p.List(ctx, model.ProcessQueryOptions{SortBy: model.SortByPid, IncludeSystemProcesses: true})
	if resp.TotalProcessCount != 5 || resp.Processes[0].Pid != 4 {
		t.Fatalf("including system processes should list all, got %+v", resp)
	}
}

func TestProcessMonitorGetAndTop(t *testing.T) {
	now := time.Unix(1000, 0)
	samples := []processSample{
		{Pid: 10, Name: "a", RSSBytes: 10 * bytesPerMB},
		{Pid: 11, Name: "b", RSSBytes: 30 * bytesPerMB},
		{Pid: 12, Name: "c", RSSBytes: 20 * bytesPerMB},
	}
	p := newTestMonitor(&samples, &now)
	ctx := context.Background()

	top, err := p.TopByMemory(ctx, 2)
	if err != nil || len(top) != 2 || top[0].Pid != 11 || top[1].Pid != 12 {
		t.Fatalf("unexpected top memory %+v (%v)", top, err)
	}
	got, err := p.Get(ctx, 12)
	if err != nil || got.Name != "c" {
		t.Fatalf("unexpected get %+v (%v)", got, err)
	}
	if _, err := p.Get(ctx, 999); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
}

func TestProcessListIsCachedForOneSecond(t *testing.T) {
	now := time.Unix(1000, 0)
	calls := 0
	p := NewProcessMonitor(discardLogger())
	p.now = func() time.Time { return now }
	p.totalMem = func(context.Context) uint64 { return 0 }
	p.list = func(context.Context) ([]processSample, error) {
		calls++
		return []processSample{{Pid: 50, Name: "x"}}, nil
	}
	ctx := context.Background()
	_, _ = p.TopByCPU(ctx, 10)
	now = now.Add(500 * time.Millisecond)
	_, _ = p.TopByCPU(ctx, 10)
	if calls != 1 {
		t.Fatalf("expected cached list, calls=%d", calls)
	}
	now = now.Add(time.Second)
	_, _ = p.TopByCPU(ctx, 10)
	if calls != 2 {
		t.Fatalf("expected refresh, calls=%d", calls)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
