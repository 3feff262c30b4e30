package supervisor

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultConfigPath is the gateway settings file used when none is given
	DefaultConfigPath = "config.yaml"
	// DefaultSourceDir is the local gateway checkout launched as a module
	DefaultSourceDir = "litellm"
	// DefaultModule is the gateway entry point inside the checkout
	DefaultModule = "litellm.proxy.proxy_cli"
	// DefaultExecutable is the installed gateway command
	DefaultExecutable = "litellm"
	// DefaultMarker identifies gateway processes by command line
	DefaultMarker = "proxy_cli"
	// DefaultPort is the port the gateway listens on
	DefaultPort = 4000
	// DefaultBaseURL is the gateway address derived from DefaultPort
	DefaultBaseURL = "http://localhost:4000"
)

// Config holds the supervisor settings
type Config struct {
	// ConfigPath is the gateway settings file; made absolute by New
	ConfigPath string

	// SourceDir selects "<Interpreter> -m <Module>" when it exists
	SourceDir string

	// Interpreter runs the gateway from SourceDir
	Interpreter string

	// Module is the gateway entry point module
	Module string

	// Executable is used when SourceDir is absent
	Executable string

	// BaseURL is where the gateway answers health checks
	BaseURL string

	// Port is the port the gateway listens on
	Port int

	// Marker is matched against process command lines when stopping
	Marker string

	// OutputLines is how many trailing output lines a failed start reports
	OutputLines int

	// Timings; zero values take the defaults
	PollInterval     time.Duration
	StartTimeout     time.Duration
	HandleGrace      time.Duration
	ScanGrace        time.Duration
	SignalPause      time.Duration
	PortReleasePause time.Duration
	RestartPause     time.Duration
	DrainTimeout     time.Duration
}

// DefaultConfig returns the settings for a gateway on localhost:4000
func DefaultConfig() Config {
	interpreter := os.Getenv("PYTHON")
	if interpreter == "" {
		interpreter = "python3"
	}

	return Config{
		ConfigPath:       DefaultConfigPath,
		SourceDir:        DefaultSourceDir,
		Interpreter:      interpreter,
		Module:           DefaultModule,
		Executable:       DefaultExecutable,
		BaseURL:          DefaultBaseURL,
		Port:             DefaultPort,
		Marker:           DefaultMarker,
		OutputLines:      20,
		PollInterval:     500 * time.Millisecond,
		StartTimeout:     30 * time.Second,
		HandleGrace:      5 * time.Second,
		ScanGrace:        3 * time.Second,
		SignalPause:      500 * time.Millisecond,
		PortReleasePause: time.Second,
		RestartPause:     time.Second,
		DrainTimeout:     time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig and makes ConfigPath absolute
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.ConfigPath == "" {
		c.ConfigPath = d.ConfigPath
	}
	if abs, err := filepath.Abs(c.ConfigPath); err == nil {
		c.ConfigPath = abs
	}
	if c.SourceDir == "" {
		c.SourceDir = d.SourceDir
	}
	if c.Interpreter == "" {
		c.Interpreter = d.Interpreter
	}
	if c.Module == "" {
		c.Module = d.Module
	}
	if c.Executable == "" {
		c.Executable = d.Executable
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Marker == "" {
		c.Marker = d.Marker
	}
	if c.OutputLines <= 0 {
		c.OutputLines = d.OutputLines
	}
	setDuration(&c.PollInterval, d.PollInterval)
	setDuration(&c.StartTimeout, d.StartTimeout)
	setDuration(&c.HandleGrace, d.HandleGrace)
	setDuration(&c.ScanGrace, d.ScanGrace)
	setDuration(&c.SignalPause, d.SignalPause)
	setDuration(&c.PortReleasePause, d.PortReleasePause)
	setDuration(&c.RestartPause, d.RestartPause)
	setDuration(&c.DrainTimeout, d.DrainTimeout)

	return c
}

func setDuration(d *time.Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = fallback
	}
}
