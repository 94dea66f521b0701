// Package session owns one run/debug session: the runner actor, the message
// channel, and the collaborators the actor drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	framework "github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/config"
	"github.com/bhandras/noderunner/internal/events"
	"github.com/bhandras/noderunner/internal/metrics"
	"github.com/bhandras/noderunner/internal/protocol/wire"
	"github.com/bhandras/noderunner/internal/runner"
	"github.com/bhandras/noderunner/internal/storage"
	"github.com/bhandras/noderunner/pkg/logger"
)

// versionUnset is the explicit version value that means "no preference".
const versionUnset = "default"

// Channel is the message channel to the execution host.
type Channel interface {
	runner.Sender
	socketLifecycle
	Connect() error
	Close() error
}

// RunnerSelector reports the runner currently chosen by the user.
type RunnerSelector interface {
	SelectedRunner() string
}

// ActiveFile reports the path of the file open in the editor, or "".
type ActiveFile interface {
	ActiveFilePath() string
}

// Options wires a Manager. Config and Channel are required; other
// collaborators are optional.
type Options struct {
	Config  *config.Config
	Channel Channel

	Debugger runner.Debugger
	Console  runner.Console
	Reporter runner.Reporter

	Hub     *events.Hub
	Metrics *metrics.Registry

	RunnerSelector RunnerSelector
	ActiveFile     ActiveFile
}

// Manager is the public surface of a session.
type Manager struct {
	cfg     *config.Config
	channel Channel
	hub     *events.Hub
	metrics *metrics.Registry

	selector   RunnerSelector
	activeFile ActiveFile

	actor *framework.Actor[runner.State]

	startOnce sync.Once
	closeOnce sync.Once
}

// NewManager creates a session manager with its actor running. Call Start to
// connect; until then every guarded command fails with runner.ErrDisconnected.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("session: channel is required")
	}

	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	m := &Manager{
		cfg:        opts.Config,
		channel:    opts.Channel,
		hub:        hub,
		metrics:    opts.Metrics,
		selector:   opts.RunnerSelector,
		activeFile: opts.ActiveFile,
	}

	rt := runner.NewRuntime(runner.RuntimeConfig{
		Sender:    opts.Channel,
		Debugger:  opts.Debugger,
		Console:   opts.Console,
		Reporter:  opts.Reporter,
		Publisher: hub,
		OnSend:    m.observeSend,
	})
	hooks := framework.Hooks[runner.State]{
		OnInput: func(input framework.Input) {
			logger.Tracef("noderunner: input %T", input)
		},
	}
	m.actor = framework.New(runner.State{}, runner.Reduce, rt, framework.WithHooks(hooks))
	m.actor.Start()
	return m, nil
}

// Start wires and connects the channel. Every connect, including reconnects,
// triggers a state resync.
func (m *Manager) Start() error {
	var err error
	m.startOnce.Do(func() {
		wireActorToSocket(m.actor, m.channel, m.metrics)
		err = m.channel.Connect()
	})
	return err
}

// Close disconnects the channel and stops the actor.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.channel.Close()
		m.actor.Stop()
	})
	return err
}

// State returns a copy of the current session state.
func (m *Manager) State() runner.State {
	return m.actor.State()
}

// Subscribe returns a channel of session events; see events.Hub.Subscribe.
func (m *Manager) Subscribe(bufSize int, kinds ...runner.EventKind) <-chan runner.Event {
	return m.hub.Subscribe(bufSize, kinds...)
}

// Unsubscribe removes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch <-chan runner.Event) {
	m.hub.Unsubscribe(ch)
}

// Run starts path on the host. isDebug selects a debug run. versionOverride
// takes precedence over configured versions unless empty or "default".
func (m *Manager) Run(ctx context.Context, path, args string, isDebug bool, versionOverride string) error {
	settings := m.loadSettings()
	req := runner.RunRequest{
		Path:    path,
		Args:    args,
		Debug:   isDebug,
		Runner:  m.resolveRunner(settings),
		Version: resolveVersion(versionOverride, m.cfg.NodeVersion, settings.NodeVersion),
		Env:     map[string]string{wire.EnvSelectedFile: m.selectedFile()},
	}

	err := m.call(ctx, func(reply chan error) framework.Input {
		return runner.Run(req, reply)
	})
	if err != nil {
		logger.Debugf("noderunner: run %q rejected: %v", path, err)
		m.recordRejected(err)
	}
	return err
}

// Debug is Run with isDebug set.
func (m *Manager) Debug(ctx context.Context, path, args, versionOverride string) error {
	return m.Run(ctx, path, args, true, versionOverride)
}

// Stop kills the running process. It is a no-op when nothing is running.
func (m *Manager) Stop(ctx context.Context) error {
	name := m.resolveRunner(m.loadSettings())
	err := m.call(ctx, func(reply chan error) framework.Input {
		return runner.Stop(name, reply)
	})
	if errors.Is(err, runner.ErrNotRunning) {
		logger.Debugf("noderunner: stop ignored: %v", err)
		return nil
	}
	return err
}

// ConsoleRun forwards a console `run` command to the host.
func (m *Manager) ConsoleRun(ctx context.Context, argv []string, cwd string) error {
	return m.call(ctx, func(reply chan error) framework.Input {
		return runner.ConsoleRun(argv, cwd, reply)
	})
}

// RequestState asks the host for a fresh state message.
func (m *Manager) RequestState(ctx context.Context) error {
	return m.call(ctx, func(reply chan error) framework.Input {
		return runner.RequestState(reply)
	})
}

// SetDefaultNodeVersion persists the version used when no override is given.
func (m *Manager) SetDefaultNodeVersion(version string) error {
	version = strings.TrimSpace(version)
	if err := m.cfg.Save(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return storage.UpdateSettings(m.cfg.SettingsPath, func(s *storage.Settings) {
		s.NodeVersion = version
	})
}

// call enqueues one command and waits for its reply.
func (m *Manager) call(ctx context.Context, build func(reply chan error) framework.Input) error {
	reply := make(chan error, 1)
	if err := m.actor.EnqueueContext(ctx, build(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.actor.Done():
		return framework.ErrStopped
	}
}

func (m *Manager) loadSettings() storage.Settings {
	if m.cfg.SettingsPath == "" {
		return storage.Settings{}
	}
	s, err := storage.LoadSettings(m.cfg.SettingsPath)
	if err != nil {
		logger.Warnf("noderunner: %v", err)
		return storage.Settings{}
	}
	return s
}

func (m *Manager) resolveRunner(settings storage.Settings) string {
	if m.selector != nil {
		if name := strings.TrimSpace(m.selector.SelectedRunner()); name != "" {
			return name
		}
	}
	if settings.Runner != "" {
		return settings.Runner
	}
	if m.cfg.Runner != "" {
		return m.cfg.Runner
	}
	return config.DefaultRunner
}

// selectedFile returns the active file path relative to the DAV root.
func (m *Manager) selectedFile() string {
	if m.activeFile == nil {
		return ""
	}
	return strings.TrimPrefix(m.activeFile.ActiveFilePath(), m.cfg.DavPrefix)
}

func (m *Manager) observeSend(command string, err error) {
	if m.metrics != nil {
		m.metrics.RecordCommand(command, err)
	}
}

func (m *Manager) recordRejected(err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, runner.ErrProcessRunning):
		m.metrics.RecordRejected("process-running")
	case errors.Is(err, runner.ErrDisconnected):
		m.metrics.RecordRejected("disconnected")
	case errors.Is(err, runner.ErrInvalidPath):
		m.metrics.RecordRejected("invalid-path")
	}
}

// resolveVersion picks the first set version in priority order, falling
// back to config.DefaultNodeVersion.
func resolveVersion(candidates ...string) string {
	for _, v := range candidates {
		v = strings.TrimSpace(v)
		if v != "" && v != versionUnset {
			return v
		}
	}
	return config.DefaultNodeVersion
}
