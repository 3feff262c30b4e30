package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/run-bigpig/guardchat/pkg/config"
	"github.com/run-bigpig/guardchat/pkg/gateway"
	"github.com/run-bigpig/guardchat/pkg/logging"
	"github.com/run-bigpig/guardchat/pkg/supervisor"
	"github.com/run-bigpig/guardchat/pkg/tracing"
	"github.com/run-bigpig/guardchat/pkg/ui"
	"github.com/spf13/cobra"
)

// exitError ends the command with code after its output was already printed
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return "exit status " + strconv.Itoa(e.code)
}

func exitCode(code int) error {
	return &exitError{code: code}
}

// app carries the state shared by all commands of one invocation
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	settingsFile string
	logLevel     string

	settings config.Config
	logger   logging.Logger
	tracer   *tracing.OTelTracer
	printer  *ui.Printer

	// supervisorOptions are appended to every supervisor built by the app
	supervisorOptions []supervisor.Option
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := &app{in: in, out: out, errOut: errOut}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.shutdown()

	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	fmt.Fprintln(a.errOut, "Error:", err)
	return 1
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "guardchat",
		Short: "Chat with LLMs through a local LiteLLM gateway with Lakera guardrails",
		Long: `guardchat talks to a locally run LiteLLM gateway that screens every message
with Lakera guardrails. It starts the gateway on demand, shows policy
violations in a readable form and manages the gateway process.

Provider keys are read from the environment or a .env file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return exitCode(1)
		},
	}

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.settingsFile, "settings", "", "client settings file (default: guardchat.yaml when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newChatCmd(a), newProxyCmd(a), newVersionCmd())

	return root
}

// setup loads settings and builds the logger, tracer and printer
func (a *app) setup(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	settings, err := config.Load(a.settingsFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		settings.LogLevel = strings.ToLower(a.logLevel)
	}
	a.settings = settings

	a.logger = logging.New(
		logging.WithOutput(a.errOut),
		logging.WithLevel(settings.LogLevel),
		logging.WithComponent("guardchat"),
	)

	a.tracer = tracing.Noop()
	if settings.OTLPEndpoint != "" {
		tracer, err := tracing.NewOTelTracer(tracing.OTelConfig{
			Enabled:           true,
			ServiceName:       "guardchat",
			CollectorEndpoint: collectorHost(settings.OTLPEndpoint),
		})
		if err != nil {
			a.logger.Warn(ctx, "Tracing disabled", map[string]interface{}{"error": err.Error()})
		} else {
			a.tracer = tracer
		}
	}

	a.printer = ui.NewPrinter(a.out, ui.WithMarkdown(isTerminal(a.out)))
	return nil
}

func (a *app) shutdown() {
	if a.tracer == nil || !a.tracer.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "Failed to flush traces", map[string]interface{}{"error": err.Error()})
	}
}

// newSupervisor builds a supervisor for the gateway settings file at
// configPath, or the configured one when empty
func (a *app) newSupervisor(configPath string) *supervisor.Supervisor {
	cfg := supervisor.DefaultConfig()
	cfg.ConfigPath = a.settings.ProxyConfig
	if configPath != "" {
		cfg.ConfigPath = configPath
	}
	cfg.BaseURL = a.settings.BaseURL
	cfg.Port = portOf(a.settings.BaseURL, supervisor.DefaultPort)

	options := []supervisor.Option{
		supervisor.WithLogger(a.logger),
		supervisor.WithTracer(a.tracer),
		supervisor.WithProgress(a.printer.Progress),
	}
	options = append(options, a.supervisorOptions...)

	return supervisor.New(cfg, options...)
}

func (a *app) newClient() *gateway.Client {
	return gateway.NewClient(
		gateway.WithBaseURL(a.settings.BaseURL),
		gateway.WithAPIKey(a.settings.APIKey),
		gateway.WithLogger(a.logger),
		gateway.WithTracer(a.tracer),
	)
}

// portOf returns the port of baseURL, or fallback when it has none
func portOf(baseURL string, fallback int) int {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fallback
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return fallback
	}
	return port
}

// collectorHost strips the scheme the OTLP env var usually carries
func collectorHost(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimRight(endpoint, "/")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
