package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/inferd/inferd/internal/lifecycle"
	"github.com/inferd/inferd/pkg/models"
)

// Export writes the report to w in the requested format
func Export(r *Report, format Format, w io.Writer) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatCSV:
		return exportCSV(r, w)
	case FormatXLSX:
		return exportXLSX(r, w)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// ContentType returns the MIME type for a report format
func ContentType(format Format) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename returns a download filename for a report
func Filename(r *Report, format Format) string {
	ext := string(format)
	if ext == "" {
		ext = "json"
	}
	return fmt.Sprintf("inferd-report-%s.%s", r.GeneratedAt.Format("20060102-150405"), ext)
}

var workloadHeader = []string{
	"id", "usecase", "task", "model", "precision", "devices", "streams",
	"batch_size", "status", "port", "throughput", "latency_ms", "error",
}

func workloadRow(e WorkloadEntry) []string {
	w := e.Workload
	precision := w.Metadata.Precision
	if precision == "" {
		precision = lifecycle.DefaultPrecision
	}
	throughput, latency := "", ""
	if e.Metrics != nil {
		throughput = strconv.FormatFloat(e.Metrics.Throughput, 'f', 2, 64)
		latency = strconv.FormatFloat(e.Metrics.LatencyMS, 'f', 2, 64)
	}
	return []string{
		strconv.Itoa(w.ID),
		w.Usecase,
		w.Task,
		w.Model,
		precision,
		lifecycle.BuildDeviceString(w.Devices),
		strconv.Itoa(w.Metadata.StreamCount),
		strconv.Itoa(w.Metadata.BatchSize),
		string(w.Status),
		strconv.Itoa(w.Port),
		throughput,
		latency,
		w.Error,
	}
}

var sampleHeader = []string{
	"timestamp", "cpu_percent", "memory_percent", "gpu_percent", "npu_percent",
}

func sampleRow(s models.UtilizationSample) []string {
	return []string{
		time.UnixMilli(s.Timestamp).UTC().Format(time.RFC3339),
		strconv.FormatFloat(s.CPUPercent, 'f', 2, 64),
		strconv.FormatFloat(s.MemoryPercent, 'f', 2, 64),
		strconv.FormatFloat(s.GPUPercent, 'f', 2, 64),
		strconv.FormatFloat(s.NPUPercent, 'f', 2, 64),
	}
}

// exportCSV writes the workload table followed by the utilization samples
func exportCSV(r *Report, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(workloadHeader); err != nil {
		return err
	}
	for _, e := range r.Workloads {
		if err := cw.Write(workloadRow(e)); err != nil {
			return err
		}
	}

	// Blank line between the two tables
	if err := cw.Write([]string{}); err != nil {
		return err
	}
	if err := cw.Write(sampleHeader); err != nil {
		return err
	}
	for _, s := range r.Samples {
		if err := cw.Write(sampleRow(s)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// exportXLSX writes a spreadsheet with one sheet per section
func exportXLSX(r *Report, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	summary := [][]interface{}{
		{"Report ID", r.ID},
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Hostname", r.Hostname},
		{"Workloads", len(r.Workloads)},
		{"Devices", deviceList(r.Devices)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	if err := writeSheet(f, "Workloads", workloadHeader, len(r.Workloads), func(i int) []string {
		return workloadRow(r.Workloads[i])
	}); err != nil {
		return err
	}
	if err := writeSheet(f, "Utilization", sampleHeader, len(r.Samples), func(i int) []string {
		return sampleRow(r.Samples[i])
	}); err != nil {
		return err
	}

	return f.Write(w)
}

func writeSheet(f *excelize.File, name string, header []string, rows int, row func(int) []string) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := setStringRow(f, name, 1, header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if err := setStringRow(f, name, i+2, row(i)); err != nil {
			return err
		}
	}
	return nil
}

func setStringRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return f.SetSheetRow(sheet, cell, &row)
}

func deviceList(devices []models.Device) string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return strings.Join(ids, ", ")
}
