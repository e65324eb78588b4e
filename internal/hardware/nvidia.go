package hardware

import (
	"context"
	"encoding/csv"
	"os/exec"
	"strconv"
	"strings"

	"syslink-agent/internal/model"
)

var nvidiaGPUFields = []string{
	"name",
	"utilization.gpu",
	"memory.used",
	"memory.total",
	"temperature.gpu",
	"clocks.current.graphics",
	"clocks.current.memory",
	"power.draw",
	"fan.speed",
}

// readNvidiaGPU reports the first NVIDIA GPU. ok is false when nvidia-smi is
// unavailable or returned nothing usable.
func readNvidiaGPU(ctx context.Context) (model.GPUMetrics, bool) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return model.GPUMetrics{}, false
	}
	rows, err := runNvidiaQueryCSV(ctx, nvidiaGPUFields)
	if err != nil || len(rows) == 0 {
		return model.GPUMetrics{}, false
	}
	return parseNvidiaRow(rows[0])
}

func parseNvidiaRow(row []string) (model.GPUMetrics, bool) {
	if len(row) < len(nvidiaGPUFields) {
		return model.GPUMetrics{}, false
	}
	used := parseFloatFlexible(row[2])
	total := parseFloatFlexible(row[3])
	return model.GPUMetrics{
		Name:             normalizeField(row[0]),
		Usage:            clampPercent(parseFloatFlexible(row[1])),
		VramUsed:         used,
		VramTotal:        total,
		VramUsagePercent: model.Percent(used, total),
		Temperature:      parseFloatFlexible(row[4]),
		CoreClock:        parseFloatFlexible(row[5]),
		MemoryClock:      parseFloatFlexible(row[6]),
		Power:            parseFloatFlexible(row[7]),
		FanSpeed:         parseFloatFlexible(row[8]),
	}, true
}

func runNvidiaQueryCSV(ctx context.Context, fields []string) ([][]string, error) {
	args := []string{
		"--query-gpu=" + strings.Join(fields, ","),
		"--format=csv,noheader,nounits",
	}
	cmd := exec.CommandContext(ctx, "nvidia-smi", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(strings.NewReader(string(out)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func normalizeField(raw string) string {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "n/a", "[not supported]", "not supported", "unknown", "-", "none":
		return ""
	default:
		return v
	}
}

func parseFloatFlexible(raw string) float64 {
	raw = normalizeField(raw)
	if raw == "" {
		return 0
	}
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "C")
	raw = strings.TrimSuffix(raw, "W")
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}
