package lifecycle

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/inferd/inferd/pkg/models"
)

// Paths holds the filesystem layout the worker command lines depend on
type Paths struct {
	WorkersDir      string // one subdirectory per worker
	AssetsDir       string // predefined media under <assets>/media
	CustomModelsDir string // custom models under <custom_models>/<usecase>
	UploadsDir      string // user-uploaded input files
}

// DefaultPrecision is used when a workload does not pin one
const DefaultPrecision = "FP16"

// BuildDeviceString converts an ordered device list into the inference
// runtime's device selector: a single device verbatim, several devices as
// MULTI with priority order preserved.
func BuildDeviceString(devices []string) string {
	if len(devices) == 0 {
		return string(models.DeviceCPU)
	}
	if len(devices) == 1 {
		return devices[0]
	}
	return "MULTI:" + strings.Join(devices, ",")
}

// decodeDevice picks the device used for media decode. GPUs decode; NPUs
// and CPU-only workloads decode on CPU.
func decodeDevice(devices []string) string {
	for _, d := range devices {
		if strings.HasPrefix(d, string(models.DeviceGPU)) {
			return d
		}
	}
	return string(models.DeviceCPU)
}

// resolveSource turns the workload's source descriptor into the --input value
func resolveSource(src models.Source, paths Paths) string {
	switch src.Kind {
	case models.SourceCamera:
		// Accept either a bare index or a full device path
		if strings.HasPrefix(src.Value, "/dev/") {
			return src.Value
		}
		if idx, err := strconv.Atoi(src.Value); err == nil {
			return fmt.Sprintf("/dev/video%d", idx)
		}
		return src.Value
	case models.SourceFile:
		if filepath.IsAbs(src.Value) {
			return src.Value
		}
		return filepath.Join(paths.UploadsDir, src.Value)
	case models.SourceVideo:
		return filepath.Join(paths.AssetsDir, "media", src.Value)
	default:
		return src.Value
	}
}

// BuildArgs constructs the worker command line for a workload. The flag set
// is usecase-specific: vision workers take the full pipeline flags, text and
// audio workers only the model, device and serving flags.
func BuildArgs(w *models.Workload, uc *models.Usecase, paths Paths, apiPort, tcpPort int) []string {
	precision := w.Metadata.Precision
	if precision == "" {
		precision = DefaultPrecision
	}

	args := []string{
		"--model", w.Model,
		"--model_precision", precision,
		"--device", BuildDeviceString(w.Devices),
		"--port", strconv.Itoa(apiPort),
		"--id", strconv.Itoa(w.ID),
	}

	if w.Metadata.CustomModel != "" {
		args = append(args,
			"--model_parent_dir", filepath.Join(paths.CustomModelsDir, uc.Name),
			"--model", w.Metadata.CustomModel,
		)
	}

	if uc.Task != "vision" {
		return args
	}

	// Vision pipeline flags
	args = append(args,
		"--input", resolveSource(w.Source, paths),
		"--decode_device", decodeDevice(w.Devices),
		"--tcp_port", strconv.Itoa(tcpPort),
	)

	streams := w.Metadata.StreamCount
	if streams <= 0 {
		streams = 1
	}
	args = append(args, "--number_of_streams", strconv.Itoa(streams))

	if w.Metadata.BatchSize > 0 {
		args = append(args, "--batch_size", strconv.Itoa(w.Metadata.BatchSize))
	}

	return args
}
