package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultNodeVersion is the version sent when nothing more specific is
	// configured.
	DefaultNodeVersion = "auto"

	// DefaultRunner is the runner used when no selector or setting names one.
	DefaultRunner = "node"

	// DefaultDavPrefix is stripped from active file paths before they are
	// sent to the host.
	DefaultDavPrefix = "/workspace"
)

type Config struct {
	// ServerURL is the base URL of the execution host.
	ServerURL string
	// SocketPath is the socket.io endpoint path on the host.
	SocketPath string

	// Home is the directory where noderunner stores local state.
	Home string
	// AccessKey is the path to the access token file.
	AccessKey string
	// SettingsPath is the path to the persisted settings file.
	SettingsPath string

	// LogLevel is the textual log level (trace|debug|info|warn|error).
	LogLevel string
	// Debug enables verbose logging.
	Debug bool

	// NodeVersion is a per-invocation version override. Empty means unset.
	NodeVersion string
	// Runner is the runner used when settings do not name one.
	Runner string
	// DavPrefix is removed from the active file path for C9_SELECTED_FILE.
	DavPrefix string

	// DiagnosticsURL receives server exception reports. Empty disables them.
	DiagnosticsURL string
	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string
}

// Load loads configuration from environment and defaults
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	home := getenvFirst("NODERUNNER_HOME_DIR", "C9_HOME_DIR")
	if home == "" {
		home = filepath.Join(homeDir, ".noderunner")
	}

	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create noderunner home: %w", err)
	}

	serverURL := getenvFirst("NODERUNNER_SERVER_URL", "C9_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://127.0.0.1:8080"
	}
	socketPath := getenvFirst("NODERUNNER_SOCKET_PATH", "C9_SOCKET_PATH")
	if socketPath == "" {
		socketPath = "/socket.io/"
	}

	debug := isTruthy(os.Getenv("DEBUG"))
	if !debug {
		debug = isTruthy(getenvFirst("NODERUNNER_DEBUG", "C9_DEBUG"))
	}
	logLevel := strings.ToLower(getenvFirst("NODERUNNER_LOG_LEVEL", "C9_LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}
	if debug {
		logLevel = "debug"
	}

	runner := getenvFirst("NODERUNNER_RUNNER", "C9_RUNNER")
	if runner == "" {
		runner = DefaultRunner
	}
	davPrefix := getenvFirst("NODERUNNER_DAV_PREFIX", "C9_DAV_PREFIX")
	if davPrefix == "" {
		davPrefix = DefaultDavPrefix
	}

	return &Config{
		ServerURL:      serverURL,
		SocketPath:     socketPath,
		Home:           home,
		AccessKey:      filepath.Join(home, "access.key"),
		SettingsPath:   filepath.Join(home, "settings.yaml"),
		LogLevel:       logLevel,
		Debug:          debug,
		NodeVersion:    getenvFirst("NODERUNNER_NODE_VERSION", "C9_NODE_VERSION"),
		Runner:         runner,
		DavPrefix:      davPrefix,
		DiagnosticsURL: getenvFirst("NODERUNNER_DIAGNOSTICS_URL", "C9_DIAGNOSTICS_URL"),
		MetricsAddr:    os.Getenv("NODERUNNER_METRICS_ADDR"),
	}, nil
}

// Save creates the home directory so persisted state can be written.
func (c *Config) Save() error {
	if c.Home == "" {
		return nil
	}
	return os.MkdirAll(c.Home, 0700)
}

func isTruthy(v string) bool {
	return v == "true" || v == "1"
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}
