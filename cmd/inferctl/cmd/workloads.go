package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/inferd/inferd/pkg/models"
)

var (
	// Workload submit flags
	submitUsecase   string
	submitModel     string
	submitDevices   []string
	submitSource    string
	submitStreams   int
	submitBatch     int
	submitPrecision string
	submitCustom    string

	// Workload list flags
	listStatus string

	// Workload logs flags
	logBytes int64

	// Workload watch flags
	watchInterval time.Duration
)

// workloadsCmd represents the workloads command
var workloadsCmd = &cobra.Command{
	Use:     "workloads",
	Aliases: []string{"wl"},
	Short:   "Manage inference workloads",
	Long:    `Commands for submitting, listing and managing AI inference workloads.`,
}

var workloadsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new workload",
	Long:  `Submit a new inference workload. The daemon launches the worker immediately.`,
	RunE:  runWorkloadsSubmit,
}

var workloadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workloads",
	RunE:  runWorkloadsList,
}

var workloadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one workload with its latest metrics",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkloadsShow,
}

var workloadsStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a workload",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkloadsStop,
}

var workloadsStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Restart a stopped or failed workload",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkloadsStart,
}

var workloadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workload",
	Long:  `Stop the workload's worker process and remove the workload.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkloadsDelete,
}

var workloadsLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show the tail of a workload's worker log",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkloadsLogs,
}

var workloadsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously show workload states",
	RunE:  runWorkloadsWatch,
}

func init() {
	rootCmd.AddCommand(workloadsCmd)
	workloadsCmd.AddCommand(workloadsSubmitCmd)
	workloadsCmd.AddCommand(workloadsListCmd)
	workloadsCmd.AddCommand(workloadsShowCmd)
	workloadsCmd.AddCommand(workloadsStopCmd)
	workloadsCmd.AddCommand(workloadsStartCmd)
	workloadsCmd.AddCommand(workloadsDeleteCmd)
	workloadsCmd.AddCommand(workloadsLogsCmd)
	workloadsCmd.AddCommand(workloadsWatchCmd)

	workloadsSubmitCmd.Flags().StringVar(&submitUsecase, "usecase", "", "usecase name (required, e.g. object-detection)")
	workloadsSubmitCmd.Flags().StringVar(&submitModel, "model", "", "model name (defaults to the usecase default)")
	workloadsSubmitCmd.Flags().StringSliceVar(&submitDevices, "device", []string{"CPU"}, "device(s) in priority order, e.g. GPU.0,NPU")
	workloadsSubmitCmd.Flags().StringVar(&submitSource, "source", "", "input source: camera:<index>, file:<path> or video:<name>")
	workloadsSubmitCmd.Flags().IntVar(&submitStreams, "streams", 1, "number of parallel streams (vision usecases)")
	workloadsSubmitCmd.Flags().IntVar(&submitBatch, "batch-size", 0, "inference batch size (0 uses the worker default)")
	workloadsSubmitCmd.Flags().StringVar(&submitPrecision, "precision", "", "model precision (e.g. FP16, INT8)")
	workloadsSubmitCmd.Flags().StringVar(&submitCustom, "custom-model", "", "custom model directory name")
	workloadsSubmitCmd.MarkFlagRequired("usecase")

	workloadsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (prepare, active, inactive, failed)")
	workloadsLogsCmd.Flags().Int64Var(&logBytes, "bytes", 64*1024, "maximum log bytes to fetch")
	workloadsWatchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")
}

// parseSource parses the kind:value source flag
func parseSource(s string) (models.Source, error) {
	if s == "" {
		return models.Source{}, nil
	}
	kind, value, found := strings.Cut(s, ":")
	if !found {
		// A bare path is treated as a file
		return models.Source{Kind: models.SourceFile, Value: s}, nil
	}
	switch models.SourceKind(kind) {
	case models.SourceCamera, models.SourceFile, models.SourceVideo:
		return models.Source{Kind: models.SourceKind(kind), Value: value}, nil
	default:
		return models.Source{}, fmt.Errorf("unknown source kind %q (want camera, file or video)", kind)
	}
}

func runWorkloadsSubmit(cmd *cobra.Command, args []string) error {
	source, err := parseSource(submitSource)
	if err != nil {
		return err
	}

	req := &models.WorkloadRequest{
		Usecase: submitUsecase,
		Model:   submitModel,
		Devices: submitDevices,
		Source:  source,
		Metadata: models.Metadata{
			StreamCount: submitStreams,
			BatchSize:   submitBatch,
			Precision:   submitPrecision,
			CustomModel: submitCustom,
		},
	}

	w, err := apiClient().CreateWorkload(context.Background(), req)
	if err != nil {
		return fmt.Errorf("failed to submit workload: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(w)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", strconv.Itoa(w.ID))
	table.Append("Usecase", w.Usecase)
	table.Append("Model", w.Model)
	table.Append("Devices", strings.Join(w.Devices, ","))
	table.Append("Status", string(w.Status))
	table.Render()
	fmt.Printf("\nWorkload submitted successfully! ID %d\n", w.ID)
	return nil
}

func runWorkloadsList(cmd *cobra.Command, args []string) error {
	workloads, err := apiClient().ListWorkloads(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list workloads: %w", err)
	}

	if listStatus != "" {
		filtered := workloads[:0]
		for _, w := range workloads {
			if string(w.Status) == listStatus {
				filtered = append(filtered, w)
			}
		}
		workloads = filtered
	}

	if outputFormat == "json" {
		return printJSON(workloads)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Usecase", "Model", "Devices", "Status", "Port", "Created")
	for _, w := range workloads {
		table.Append(
			strconv.Itoa(w.ID),
			w.Usecase,
			w.Model,
			strings.Join(w.Devices, ","),
			string(w.Status),
			strconv.Itoa(w.Port),
			w.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
	fmt.Printf("\nTotal workloads: %d\n", len(workloads))
	return nil
}

func runWorkloadsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid workload ID: %s", args[0])
	}

	c := apiClient()
	w, err := c.GetWorkload(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get workload: %w", err)
	}
	m, _ := c.WorkloadMetrics(context.Background(), id)

	if outputFormat == "json" {
		return printJSON(map[string]interface{}{"workload": w, "metrics": m})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", strconv.Itoa(w.ID))
	table.Append("Task", w.Task)
	table.Append("Usecase", w.Usecase)
	table.Append("Model", w.Model)
	table.Append("Devices", strings.Join(w.Devices, ","))
	if w.Source.Value != "" {
		table.Append("Source", fmt.Sprintf("%s:%s", w.Source.Kind, w.Source.Value))
	}
	if w.Metadata.StreamCount > 0 {
		table.Append("Streams", strconv.Itoa(w.Metadata.StreamCount))
	}
	if w.Metadata.Precision != "" {
		table.Append("Precision", w.Metadata.Precision)
	}
	table.Append("Status", string(w.Status))
	table.Append("Port", strconv.Itoa(w.Port))
	if w.Error != "" {
		table.Append("Error", w.Error)
	}
	if m != nil {
		table.Append("Throughput", fmt.Sprintf("%.2f", m.Throughput))
		table.Append("Latency", fmt.Sprintf("%.2f ms", m.LatencyMS))
	}
	table.Append("Created At", w.CreatedAt.Format(time.RFC3339))
	table.Render()
	return nil
}

func runWorkloadsStop(cmd *cobra.Command, args []string) error {
	return setStatus(args[0], models.StatusInactive, "stopped")
}

func runWorkloadsStart(cmd *cobra.Command, args []string) error {
	return setStatus(args[0], models.StatusPrepare, "starting")
}

func setStatus(arg string, status models.WorkloadStatus, verb string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid workload ID: %s", arg)
	}
	w, err := apiClient().SetWorkloadStatus(context.Background(), id, status)
	if err != nil {
		return fmt.Errorf("failed to update workload: %w", err)
	}
	fmt.Printf("Workload %d %s (status: %s)\n", w.ID, verb, w.Status)
	return nil
}

func runWorkloadsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid workload ID: %s", args[0])
	}
	if err := apiClient().DeleteWorkload(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete workload: %w", err)
	}
	fmt.Printf("Workload %d deleted\n", id)
	return nil
}

func runWorkloadsLogs(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid workload ID: %s", args[0])
	}
	logs, err := apiClient().WorkloadLogs(context.Background(), id, logBytes)
	if err != nil {
		return fmt.Errorf("failed to fetch logs: %w", err)
	}
	fmt.Print(logs)
	return nil
}

func runWorkloadsWatch(cmd *cobra.Command, args []string) error {
	for {
		// Clear screen between refreshes
		fmt.Print("\033[H\033[2J")
		fmt.Printf("Workloads on %s (refreshed %s)\n\n", daemonURL, time.Now().Format("15:04:05"))
		if err := runWorkloadsList(cmd, nil); err != nil {
			return err
		}
		time.Sleep(watchInterval)
	}
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
