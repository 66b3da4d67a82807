package sysmon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/inferd/inferd/pkg/models"
)

// drmRoot is the sysfs tree where render devices appear. Overridable in tests.
var drmRoot = "/sys/class/drm"

// npuRoot is where the NPU driver exposes its devices. Overridable in tests.
var npuRoot = "/sys/class/accel"

// DiscoverDevices enumerates the accelerators available for inference on
// this host. CPU is always present; GPUs and NPUs are probed from sysfs.
func DiscoverDevices() []models.Device {
	devices := []models.Device{cpuDevice()}
	devices = append(devices, gpuDevices()...)
	devices = append(devices, npuDevices()...)
	return devices
}

func cpuDevice() models.Device {
	name := "CPU"
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		name = strings.TrimSpace(infos[0].ModelName)
	}
	return models.Device{
		ID:      string(models.DeviceCPU),
		Kind:    models.DeviceCPU,
		Name:    name,
		Present: true,
	}
}

// gpuDevices lists DRM card devices. The first card maps to the selector
// "GPU", further cards to "GPU.1", "GPU.2" and so on.
func gpuDevices() []models.Device {
	entries, err := os.ReadDir(drmRoot)
	if err != nil {
		return nil
	}

	var out []models.Device
	idx := 0
	for _, e := range entries {
		name := e.Name()
		// cardN entries only; renderD and connector entries are skipped
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		id := string(models.DeviceGPU)
		if idx > 0 {
			id = fmt.Sprintf("%s.%d", models.DeviceGPU, idx)
		}
		out = append(out, models.Device{
			ID:      id,
			Kind:    models.DeviceGPU,
			Name:    gpuName(filepath.Join(drmRoot, name)),
			Present: true,
		})
		idx++
	}
	return out
}

func gpuName(cardPath string) string {
	for _, f := range []string{"device/label", "device/product_name"} {
		if data, err := os.ReadFile(filepath.Join(cardPath, f)); err == nil {
			if s := strings.TrimSpace(string(data)); s != "" {
				return s
			}
		}
	}
	return "GPU"
}

// npuDevices lists accel devices exposed by the NPU driver
func npuDevices() []models.Device {
	entries, err := os.ReadDir(npuRoot)
	if err != nil {
		return nil
	}

	var out []models.Device
	for range entries {
		out = append(out, models.Device{
			ID:      string(models.DeviceNPU),
			Kind:    models.DeviceNPU,
			Name:    "NPU",
			Present: true,
		})
		break // one logical NPU selector regardless of device count
	}
	return out
}
