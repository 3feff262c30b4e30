package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/run-bigpig/guardchat/pkg/config"
	"github.com/run-bigpig/guardchat/pkg/metrics"
	"github.com/run-bigpig/guardchat/pkg/supervisor"
	"github.com/spf13/cobra"
)

func newProxyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage LiteLLM proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printer.Println("Unknown proxy action. Use: restart, stop, status, start or watch")
			return exitCode(1)
		},
	}

	cmd.AddCommand(
		newProxyRestartCmd(a),
		newProxyStopCmd(a),
		newProxyStatusCmd(a),
		newProxyStartCmd(a),
		newProxyWatchCmd(a),
	)

	return cmd
}

func newProxyRestartCmd(a *app) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the proxy server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := a.newSupervisor(configPath)

			a.printer.Println("Restarting LiteLLM proxy server...")
			// always stop first to catch orphaned processes
			if err := sup.Restart(cmd.Context(), supervisor.DefaultStartOptions()); err != nil {
				a.logger.Error(cmd.Context(), "Restart failed", map[string]interface{}{"error": err.Error()})
				a.printer.Progress("✗ Failed to restart proxy")
				return exitCode(1)
			}

			a.printer.Progress("✓ Proxy restarted successfully")
			a.printer.Println(fmt.Sprintf("  Using config: %s", sup.Config().ConfigPath))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to LiteLLM config.yaml file (default: config.yaml)")
	return cmd
}

func newProxyStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := a.newSupervisor("")
			if !sup.IsRunning(cmd.Context()) {
				a.printer.Println("Proxy is not running")
				return nil
			}
			sup.Stop(cmd.Context())
			return nil
		},
	}
}

func newProxyStatusCmd(a *app) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check proxy server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := a.newSupervisor(configPath)
			if !sup.IsRunning(cmd.Context()) {
				a.printer.Progress("✗ Proxy is not running")
				return exitCode(1)
			}

			a.printer.Progress(fmt.Sprintf("✓ Proxy is running at %s", sup.Config().BaseURL))

			settings, err := config.InspectGateway(sup.Config().ConfigPath)
			if err != nil {
				a.logger.Debug(cmd.Context(), "Gateway settings unavailable", map[string]interface{}{"error": err.Error()})
				return nil
			}
			a.printer.Println(fmt.Sprintf("  Config: %s", settings.Path))
			if len(settings.Models) > 0 {
				a.printer.Println(fmt.Sprintf("  Models: %s", strings.Join(settings.Models, ", ")))
			}
			if len(settings.Guardrails) > 0 {
				a.printer.Println(fmt.Sprintf("  Guardrails: %s", strings.Join(settings.Guardrails, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to LiteLLM config.yaml file (default: config.yaml)")
	return cmd
}

func newProxyStartCmd(a *app) *cobra.Command {
	var (
		configPath string
		noWait     bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := a.newSupervisor(configPath)
			err := sup.Start(cmd.Context(), supervisor.StartOptions{
				WaitForReady: !noWait,
				Timeout:      timeout,
			})
			if err != nil {
				a.logger.Error(cmd.Context(), "Start failed", map[string]interface{}{"error": err.Error()})
				return exitCode(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to LiteLLM config.yaml file (default: config.yaml)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return as soon as the process is spawned")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the proxy to become ready")
	return cmd
}

func newProxyWatchCmd(a *app) *cobra.Command {
	var (
		configPath  string
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the proxy running and restart it when its config changes",
		Long: `Check the proxy on a schedule, start it whenever it is down and restart it
after its config file changes. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := a.newSupervisor(configPath)
			collector := metrics.NewCollector(nil)

			watchdog := supervisor.NewWatchdog(sup, sup.Config().ConfigPath,
				supervisor.WithSchedule(fmt.Sprintf("@every %s", interval)),
				supervisor.WithMetricsAddr(metricsAddr),
				supervisor.WithWatchdogLogger(a.logger),
				supervisor.WithWatchdogMetrics(collector),
			)

			a.printer.Println(fmt.Sprintf("Watching LiteLLM proxy (config: %s, every %s). Press Ctrl-C to stop.",
				sup.Config().ConfigPath, interval))
			if err := watchdog.Run(cmd.Context()); err != nil {
				return err
			}
			a.printer.Println("Watch stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to LiteLLM config.yaml file (default: config.yaml)")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "health check interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}
