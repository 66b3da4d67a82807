package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/inferd/inferd/pkg/models"
)

var (
	reportFormat string
	reportOut    string
)

// devicesCmd lists the host's accelerators
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List accelerator devices",
	RunE:  runDevices,
}

// systemCmd shows host utilization
var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Show host utilization",
	RunE:  runSystem,
}

// usecasesCmd lists supported usecases
var usecasesCmd = &cobra.Command{
	Use:   "usecases",
	Short: "List supported usecases",
	RunE:  runUsecases,
}

// setupCmd manages worker environments
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Show worker environment status",
	RunE:  runSetupList,
}

var setupInstallCmd = &cobra.Command{
	Use:   "install <usecase>",
	Short: "Provision a worker environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupInstall,
}

// reportCmd exports a report
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a workload and utilization report",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(systemCmd)
	rootCmd.AddCommand(usecasesCmd)
	rootCmd.AddCommand(setupCmd)
	setupCmd.AddCommand(setupInstallCmd)
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFormat, "format", "json", "report format: json, csv or xlsx")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output file (default stdout for json/csv)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := apiClient().ListDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(devices)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Kind", "Name")
	for _, d := range devices {
		table.Append(d.ID, string(d.Kind), d.Name)
	}
	table.Render()
	return nil
}

func runSystem(cmd *cobra.Command, args []string) error {
	util, err := apiClient().GetUtilization(context.Background(), 1)
	if err != nil {
		return fmt.Errorf("failed to get utilization: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(util)
	}

	cur := util.Current
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Resource", "Utilization")
	table.Append("CPU", fmt.Sprintf("%.1f%%", cur.CPUPercent))
	table.Append("Memory", fmt.Sprintf("%.1f%% (%s / %s)", cur.MemoryPercent,
		formatBytes(cur.MemoryUsed), formatBytes(cur.MemoryTotal)))
	table.Append("GPU", formatPercent(cur.GPUPercent))
	table.Append("NPU", formatPercent(cur.NPUPercent))
	table.Render()
	return nil
}

func formatPercent(v float64) string {
	if v == models.NotAvailable {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func runUsecases(cmd *cobra.Command, args []string) error {
	usecases, err := apiClient().ListUsecases(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list usecases: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(usecases)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Task", "Default Model", "Multi-Device", "Multi-Stream")
	for _, uc := range usecases {
		table.Append(
			uc.Name,
			uc.Task,
			uc.DefaultModel,
			strconv.FormatBool(uc.MultiDevice),
			strconv.FormatBool(uc.MultiStream),
		)
	}
	table.Render()
	return nil
}

func runSetupList(cmd *cobra.Command, args []string) error {
	envs, err := apiClient().ListWorkerEnvs(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list worker environments: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(envs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Usecase", "Status", "Error")
	for _, env := range envs {
		table.Append(env.Usecase, string(env.Status), env.Error)
	}
	table.Render()
	return nil
}

func runSetupInstall(cmd *cobra.Command, args []string) error {
	if err := apiClient().ProvisionWorker(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to start provisioning: %w", err)
	}
	fmt.Printf("Provisioning started for %s; check progress with 'inferctl setup'\n", args[0])
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	data, err := apiClient().ExportReport(context.Background(), reportFormat)
	if err != nil {
		return fmt.Errorf("failed to export report: %w", err)
	}

	out := reportOut
	if out == "" {
		if reportFormat == "xlsx" {
			out = "inferd-report.xlsx" // binary format never goes to stdout
		} else {
			_, err := os.Stdout.Write(data)
			return err
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report written to %s (%d bytes)\n", out, len(data))
	return nil
}
