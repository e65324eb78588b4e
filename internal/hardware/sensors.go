package hardware

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"syslink-agent/internal/model"
)

var coreIndexPattern = regexp.MustCompile(`core_?(\d+)`)

// cpuTemperatures is the per-core and package view of the CPU sensors.
type cpuTemperatures struct {
	perCore map[int]float64
	max     float64
	avg     float64
}

func readCPUTemperatures(ctx context.Context, sysRoot string) cpuTemperatures {
	// partial sensor errors are common; use whatever was read
	stats, _ := host.SensorsTemperaturesWithContext(ctx)
	out := summarizeCPUSensors(stats)
	if out.max == 0 {
		if t := readThermalZoneCPU(sysRoot); t > 0 {
			out.max, out.avg = t, t
		}
	}
	return out
}

func summarizeCPUSensors(stats []host.TemperatureStat) cpuTemperatures {
	out := cpuTemperatures{perCore: map[int]float64{}}
	var sum float64
	var n int
	for _, st := range stats {
		key := strings.ToLower(st.SensorKey)
		if !isCPUSensor(key) || st.Temperature <= 0 || st.Temperature > 200 {
			continue
		}
		if m := coreIndexPattern.FindStringSubmatch(key); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil {
				out.perCore[idx] = st.Temperature
			}
		}
		out.max = max(out.max, st.Temperature)
		sum += st.Temperature
		n++
	}
	if n > 0 {
		out.avg = sum / float64(n)
	}
	return out
}

func isCPUSensor(key string) bool {
	for _, needle := range []string{"coretemp", "k10temp", "zenpower", "cpu", "x86_pkg_temp", "package", "tctl", "tdie"} {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

func readThermalZoneCPU(sysRoot string) float64 {
	paths, err := filepath.Glob(filepath.Join(sysRoot, "class/thermal/thermal_zone*/temp"))
	if err != nil || len(paths) == 0 {
		return 0
	}

	var cpuTemps, fallbackTemps []float64
	for _, tempPath := range paths {
		temp := readMilliCelsius(tempPath)
		if temp == 0 {
			continue
		}
		fallbackTemps = append(fallbackTemps, temp)
		typeRaw, readErr := os.ReadFile(filepath.Join(filepath.Dir(tempPath), "type"))
		if readErr != nil {
			continue
		}
		typeValue := strings.ToLower(strings.TrimSpace(string(typeRaw)))
		if strings.Contains(typeValue, "cpu") ||
			strings.Contains(typeValue, "x86_pkg_temp") ||
			strings.Contains(typeValue, "package") {
			cpuTemps = append(cpuTemps, temp)
		}
	}

	candidates := cpuTemps
	if len(candidates) == 0 {
		candidates = fallbackTemps
	}
	var hottest float64
	for _, v := range candidates {
		hottest = max(hottest, v)
	}
	return hottest
}

func readMilliCelsius(path string) float64 {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil || temp <= 0 {
		return 0
	}
	if temp > 1000 {
		temp = temp / 1000
	}
	if temp > 200 {
		return 0
	}
	return temp
}

// readHwmonFans lists every fan*_input exposed under class/hwmon.
func readHwmonFans(sysRoot string) []model.FanMetrics {
	inputs, err := filepath.Glob(filepath.Join(sysRoot, "class/hwmon/hwmon*/fan*_input"))
	if err != nil {
		return nil
	}
	sort.Strings(inputs)

	fans := make([]model.FanMetrics, 0, len(inputs))
	for _, input := range inputs {
		rpm, ok := readSysFloat(input)
		if !ok {
			continue
		}
		dir := filepath.Dir(input)
		base := strings.TrimSuffix(filepath.Base(input), "_input")
		index := strings.TrimPrefix(base, "fan")

		chip := readSysString(filepath.Join(dir, "name"))
		label := readSysString(filepath.Join(dir, base+"_label"))
		name := label
		if name == "" {
			name = strings.TrimSpace(chip + " fan " + index)
		}

		fan := model.FanMetrics{Name: name, RPM: rpm, Type: classifyFan(label + " " + chip)}
		if pwm, ok := readSysFloat(filepath.Join(dir, "pwm"+index)); ok {
			fan.SpeedPercent = clampPercent(pwm / 255 * 100)
		} else if maxRPM, ok := readSysFloat(filepath.Join(dir, base+"_max")); ok && maxRPM > 0 {
			fan.SpeedPercent = clampPercent(rpm / maxRPM * 100)
		}
		fans = append(fans, fan)
	}
	return fans
}

func classifyFan(label string) model.FanType {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "pump"):
		return model.FanPump
	case strings.Contains(l, "gpu"), strings.Contains(l, "amdgpu"), strings.Contains(l, "nouveau"):
		return model.FanGPU
	case strings.Contains(l, "cpu"):
		return model.FanCPU
	case strings.Contains(l, "case"), strings.Contains(l, "chassis"), strings.Contains(l, "sys"):
		return model.FanCase
	default:
		return model.FanOther
	}
}

func readMotherboard(sysRoot string) string {
	dmi := filepath.Join(sysRoot, "class/dmi/id")
	vendor := readSysString(filepath.Join(dmi, "board_vendor"))
	name := readSysString(filepath.Join(dmi, "board_name"))
	return strings.TrimSpace(vendor + " " + name)
}

func readSysString(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return normalizeField(string(raw))
}

func readSysFloat(path string) (float64, bool) {
	s := readSysString(path)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
