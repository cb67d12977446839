package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lodestar-sh/lodestar/internal/buildinfo"
	"github.com/lodestar-sh/lodestar/pkg/config"
	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/daemon/service"
	"github.com/lodestar-sh/lodestar/pkg/transport/uds"
	tuimodel "github.com/lodestar-sh/lodestar/pkg/tui/model"
)

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lodestar",
	Short: "Telemetry dashboard for development environments",
	Long:  "Lodestar streams metrics and logs from development services into a local daemon and renders them live in the terminal.",
	RunE:  runTop,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocketPath(), "daemon socket path")

	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Top (dashboard) ---

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live metrics dashboard",
	RunE:  runTop,
}

func runTop(_ *cobra.Command, _ []string) error {
	ensureDaemon()
	app := tuimodel.New(socketPath)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func ensureDaemon() {
	if _, err := os.Stat(socketPath); err == nil {
		return
	}
	cmd := exec.Command("lodestard")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Start()
	for i := 0; i < 30; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: could not start daemon, continuing anyway")
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

func request(client *uds.Client, method string, data, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Request(ctx, method, data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.UnmarshalData(out)
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		var pong uds.PingResponse
		if err := request(client, uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Println("pong ✓")
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("lodestar %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			fmt.Println(service.Status(socketPath))
			return err
		}
		defer client.Close()

		var status uds.StatusResponse
		if err := request(client, uds.MethodStatus, nil, &status); err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		fmt.Printf("lodestard %s\n", status.Version)
		fmt.Printf("uptime:       %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
		fmt.Printf("sources:      %d\n", status.Sources)
		fmt.Printf("points:       %d\n", status.Points)
		fmt.Printf("log sessions: %d\n", status.LogSessions)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// --- Sources ---

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List streamed sources and their connection state",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		var out uds.SourcesResponse
		if err := request(client, uds.MethodSources, nil, &out); err != nil {
			return err
		}

		if sourcesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out.Sources)
		}

		if len(out.Sources) == 0 {
			fmt.Println("no sources")
			return nil
		}

		fmt.Printf("%-20s %-14s %-8s %-8s %s\n", "SOURCE", "STATE", "TRANS", "ATTEMPTS", "LAST ERROR")
		for _, s := range out.Sources {
			fmt.Printf("%-20s %-14s %-8s %-8d %s\n", s.SourceID, s.State, s.Transport, s.Attempts, s.LastError)
		}
		return nil
	},
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
}

// --- Logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query, export, or delete session logs",
}

var (
	logsTailN  int
	logsFilter string
)

var logsTailCmd = &cobra.Command{
	Use:   "tail <session>",
	Short: "Print the last entries of a session's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		var out uds.LogsQueryResponse
		err = request(client, uds.MethodLogsQuery, uds.LogsQueryRequest{
			SessionID: args[0],
			Tail:      logsTailN,
			Filter:    logsFilter,
		}, &out)
		if err != nil {
			return err
		}

		for _, e := range out.Entries {
			ts := time.UnixMilli(e.TsUnixMs).UTC().Format(time.RFC3339)
			fmt.Printf("[%s] %s: %s\n", ts, e.Type, e.Data)
		}
		return nil
	},
}

var logsExportFormat string

var logsExportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export a session's log as json or text",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		var out uds.LogsExportResponse
		err = request(client, uds.MethodLogsExport, uds.LogsExportRequest{
			SessionID: args[0],
			Format:    logsExportFormat,
		}, &out)
		if err != nil {
			return err
		}

		fmt.Print(out.Content)
		return nil
	},
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a session's log files",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := request(client, uds.MethodLogsDelete, uds.LogsDeleteRequest{SessionID: args[0]}, nil); err != nil {
			return err
		}
		fmt.Printf("deleted logs for %s ✓\n", args[0])
		return nil
	},
}

var logsStoreType string

var logsStoreCmd = &cobra.Command{
	Use:   "store <session> <line>",
	Short: "Append a log line to a session (for scripting)",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		return request(client, uds.MethodLogsStore, uds.LogsStoreRequest{
			SessionID: args[0],
			Entries: []core.LogEntry{
				{TsUnixMs: time.Now().UnixMilli(), Type: logsStoreType, Data: args[1]},
			},
		}, nil)
	},
}

func init() {
	logsTailCmd.Flags().IntVar(&logsTailN, "n", 100, "number of entries")
	logsTailCmd.Flags().StringVar(&logsFilter, "filter", "", "case-insensitive regex filter")
	logsExportCmd.Flags().StringVar(&logsExportFormat, "format", "text", "export format: json or text")
	logsStoreCmd.Flags().StringVar(&logsStoreType, "type", "stdout", "entry type")

	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsExportCmd)
	logsCmd.AddCommand(logsDeleteCmd)
	logsCmd.AddCommand(logsStoreCmd)
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lodestar.yaml",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default lodestar.yaml",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := config.Default()
		if err := config.Save(cfg, configInitOutput); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configInitOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a lodestar.yaml config",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "lodestar.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d sources)\n", path, len(cfg.Sources))
			return nil
		}

		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  • %s\n", e)
		}
		return fmt.Errorf("%s: %d error(s)", path, len(errs))
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "lodestar.yaml", "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the lodestard systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the systemd user unit",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Install(); err != nil {
			return err
		}
		fmt.Println("installed lodestard.service ✓")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the systemd user unit",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Println("removed lodestard.service ✓")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and unit status",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(service.Status(socketPath))
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
