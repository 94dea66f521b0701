package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/bhandras/noderunner/internal/auth"
	"github.com/bhandras/noderunner/internal/config"
	"github.com/bhandras/noderunner/internal/console"
	"github.com/bhandras/noderunner/internal/diagnostics"
	"github.com/bhandras/noderunner/internal/events"
	"github.com/bhandras/noderunner/internal/metrics"
	"github.com/bhandras/noderunner/internal/runner"
	"github.com/bhandras/noderunner/internal/session"
	"github.com/bhandras/noderunner/internal/version"
	"github.com/bhandras/noderunner/internal/websocket"
	"github.com/bhandras/noderunner/pkg/logger"
	"github.com/google/uuid"
)

const connectTimeout = 10 * time.Second

var errShowHelp = errors.New("help requested")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if errors.Is(err, errShowHelp) {
		printUsage()
		return nil
	}
	if err != nil {
		return err
	}

	if len(args) > 0 {
		switch args[0] {
		case "help":
			printUsage()
			return nil
		case "version":
			fmt.Printf("noderunner v%s\n", version.Full())
			return nil
		}
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.Debugf("Config: ServerURL=%s, Home=%s", cfg.ServerURL, cfg.Home)

	token, err := auth.LoadToken(cfg.AccessKey)
	if err != nil {
		return err
	}

	clientID := uuid.NewString()
	out := console.New(os.Stdout)
	reg := metrics.Get()
	hub := events.NewHub()

	var reporter runner.Reporter
	if cfg.DiagnosticsURL != "" {
		r, err := diagnostics.NewReporter(diagnostics.Config{
			Endpoint: cfg.DiagnosticsURL,
			ClientID: clientID,
			Version:  version.Version(),
		})
		if err != nil {
			return err
		}
		defer r.Wait()
		reporter = r
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	client := websocket.NewClient(websocket.Options{
		ServerURL: cfg.ServerURL,
		Path:      cfg.SocketPath,
		Token:     token,
		ClientID:  clientID,
	})

	sel := &selection{}
	mgr, err := session.NewManager(session.Options{
		Config:         cfg,
		Channel:        client,
		Debugger:       logDebugger{},
		Console:        out,
		Reporter:       reporter,
		Hub:            hub,
		Metrics:        reg,
		RunnerSelector: sel,
		ActiveFile:     sel,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer mgr.Close()

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if !client.WaitForConnect(connectTimeout) {
		logger.Warnf("Not connected to %s yet; commands will be rejected until it is", cfg.ServerURL)
	}

	evs := mgr.Subscribe(64)
	defer mgr.Unsubscribe(evs)
	go printEvents(out, evs)

	cwd, _ := os.Getwd()
	r := &repl{mgr: mgr, out: out, sel: sel, cwd: cwd}
	return r.loop(context.Background(), os.Stdin)
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("noderunner", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server", "", "Execution host URL")
	socketPath := fs.String("socket-path", "", "socket.io endpoint path")
	nodeVersion := fs.String("node-version", "", "Node version override")
	runnerName := fs.String("runner", "", "Default runner (node|python|java)")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	metricsAddr := fs.String("metrics-addr", "", "Listen address for /metrics")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showHelp {
		return nil, errShowHelp
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *nodeVersion != "" {
		cfg.NodeVersion = *nodeVersion
	}
	if *runnerName != "" {
		cfg.Runner = *runnerName
	}
	if *logLevel != "" && !cfg.Debug {
		if _, err := logger.ParseLevel(*logLevel); err != nil {
			return nil, err
		}
		cfg.LogLevel = *logLevel
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	return fs.Args(), nil
}

func serveMetrics(addr string, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics listener: %v", err)
	}
}

func printEvents(out *console.Console, evs <-chan runner.Event) {
	for ev := range evs {
		switch ev.Kind {
		case runner.EventStateChanged:
			logger.Debugf("state: %s", describeState(ev.State))
		default:
			out.Infof("%s (%s)", ev.Kind, describeState(ev.State))
		}
	}
}

// logDebugger stands in for a debugger view and logs the calls it receives.
type logDebugger struct{}

func (logDebugger) RegisterManualAttach() { logger.Debugf("debugger: manual attach registered") }
func (logDebugger) Attach()               { logger.Infof("debugger: attach") }
func (logDebugger) Detach()               { logger.Infof("debugger: detach") }
func (logDebugger) ShowTabs()             { logger.Debugf("debugger: show tabs") }
func (logDebugger) LoadTabs()             { logger.Debugf("debugger: load tabs") }

func printUsage() {
	fmt.Println(`noderunner - run and debug programs on a remote execution host

Usage:
  noderunner [flags]           Start an interactive session
  noderunner version           Show version
  noderunner help              Show this help

Flags:
  --server URL                 Execution host URL (NODERUNNER_SERVER_URL)
  --socket-path PATH           socket.io path (default /socket.io/)
  --node-version V             Version override (NODERUNNER_NODE_VERSION)
  --runner NAME                Default runner (NODERUNNER_RUNNER)
  --log-level LEVEL            trace|debug|info|warn|error
  --metrics-addr ADDR          Serve prometheus metrics on ADDR

Session commands:
  run <path> [args...]         Run a file
  debug <path> [args...]       Run a file with the debugger attached
  stop                         Kill the running process
  state                        Request and print the session state
  exec <argv...>               Forward a console run command
  runner <name>                Select the runner
  version <v>                  Persist the default node version
  quit                         Exit`)
}
