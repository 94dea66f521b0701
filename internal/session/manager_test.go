package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	framework "github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/config"
	"github.com/bhandras/noderunner/internal/metrics"
	"github.com/bhandras/noderunner/internal/protocol/wire"
	"github.com/bhandras/noderunner/internal/runner"
	"github.com/bhandras/noderunner/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeChannel records sent commands and exposes the registered callbacks.
type fakeChannel struct {
	mu   sync.Mutex
	sent []wire.Outbound

	onConnect    func()
	onDisconnect func(string)
	onMessage    func(any)

	connects int
	closes   int
}

func newFakeChannel() *fakeChannel { return &fakeChannel{} }

func (f *fakeChannel) OnConnect(fn func())                 { f.onConnect = fn }
func (f *fakeChannel) OnDisconnect(fn func(reason string)) { f.onDisconnect = fn }
func (f *fakeChannel) OnMessage(fn func(payload any))      { f.onMessage = fn }

func (f *fakeChannel) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) Send(cmd wire.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeChannel) commands() []wire.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Outbound(nil), f.sent...)
}

func (f *fakeChannel) names() []string {
	var out []string
	for _, cmd := range f.commands() {
		out = append(out, cmd.Name())
	}
	return out
}

type fakeConsole struct {
	mu     sync.Mutex
	errors []string
}

func (c *fakeConsole) Warn(string) {}

func (c *fakeConsole) Error(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, text)
}

func (c *fakeConsole) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

type fakeReporter struct {
	mu    sync.Mutex
	codes []int
}

func (r *fakeReporter) ReportException(code *int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code != nil {
		r.codes = append(r.codes, *code)
	}
}

func (r *fakeReporter) reported() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

type staticRunner string

func (s staticRunner) SelectedRunner() string { return string(s) }

type staticFile string

func (s staticFile) ActiveFilePath() string { return string(s) }

type harness struct {
	mgr     *Manager
	ch      *fakeChannel
	cfg     *config.Config
	metrics *metrics.Registry
	console *fakeConsole
	report  *fakeReporter
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	cfg := &config.Config{
		SettingsPath: filepath.Join(t.TempDir(), "settings.yaml"),
		Runner:       config.DefaultRunner,
		DavPrefix:    config.DefaultDavPrefix,
	}
	h := &harness{
		ch:      newFakeChannel(),
		cfg:     cfg,
		metrics: metrics.New(),
		console: &fakeConsole{},
		report:  &fakeReporter{},
	}
	opts := Options{
		Config:   cfg,
		Channel:  h.ch,
		Console:  h.console,
		Reporter: h.report,
		Metrics:  h.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}

	mgr, err := NewManager(opts)
	require.NoError(t, err)
	h.mgr = mgr
	t.Cleanup(func() { _ = mgr.Close() })

	require.NoError(t, mgr.Start())
	return h
}

// connect fires the connect callback and waits for the resync to go out.
func (h *harness) connect(t *testing.T) {
	t.Helper()
	before := len(h.ch.commands())
	h.ch.onConnect()
	require.Eventually(t, func() bool {
		return len(h.ch.commands()) > before && h.mgr.State().Connected
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitState(t *testing.T, cond func(runner.State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.mgr.State()) }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) lastCommand(t *testing.T, name string) wire.Outbound {
	t.Helper()
	var found wire.Outbound
	require.Eventually(t, func() bool {
		for _, cmd := range h.ch.commands() {
			if cmd.Name() == name {
				found = cmd
			}
		}
		return found != nil
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func TestNewManagerValidates(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Options{Channel: newFakeChannel()})
	require.Error(t, err)
	_, err = NewManager(Options{Config: &config.Config{}})
	require.Error(t, err)
}

func TestManager_ConnectResyncs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.Equal(t, 1, h.ch.connects)

	h.connect(t)
	require.Equal(t, []string{wire.CommandState}, h.ch.names())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.CommandsTotal.WithLabelValues(wire.CommandState, "ok")) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_RunRejectedWhileDisconnected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	err := h.mgr.Run(context.Background(), "/a.js", "", false, "")
	require.ErrorIs(t, err, runner.ErrDisconnected)
	require.Empty(t, h.ch.commands())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RejectedTotal.WithLabelValues("disconnected")))
}

func TestManager_RunResolvesParameters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(o *Options) {
		o.RunnerSelector = staticRunner("python")
		o.ActiveFile = staticFile("/workspace/src/main.py")
	})
	require.NoError(t, storage.SaveSettings(h.cfg.SettingsPath, storage.Settings{NodeVersion: "18", Runner: "node"}))
	h.connect(t)

	require.NoError(t, h.mgr.Run(context.Background(), "/src/main.py", "--v", false, "default"))

	cmd, ok := h.lastCommand(t, wire.CommandRun).(wire.RunCommand)
	require.True(t, ok)
	require.Equal(t, "src/main.py", cmd.File)
	require.Equal(t, "--v", cmd.Args)
	require.Equal(t, "python", cmd.Runner)
	require.Equal(t, "18", cmd.Version)
	require.Equal(t, map[string]string{wire.EnvSelectedFile: "/src/main.py"}, cmd.Env)

	h.waitState(t, func(s runner.State) bool { return s.Pending == runner.PendingRun })
	require.False(t, h.mgr.State().ProcessRunning)
}

func TestManager_DebugUsesExplicitVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cfg.NodeVersion = "16"
	h.connect(t)

	require.NoError(t, h.mgr.Debug(context.Background(), "app.js", "", "20"))

	cmd, ok := h.lastCommand(t, wire.CommandRunDebugBrk).(wire.RunCommand)
	require.True(t, ok)
	require.Equal(t, "20", cmd.Version)
	require.Equal(t, config.DefaultRunner, cmd.Runner)
	require.Equal(t, "", cmd.Env[wire.EnvSelectedFile])
}

func TestManager_RunWhileRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t)
	h.ch.onMessage(map[string]any{"type": "state", "processRunning": true, "workspaceDir": "/ws"})
	h.waitState(t, func(s runner.State) bool { return s.ProcessRunning })

	err := h.mgr.Run(context.Background(), "a.js", "", false, "")
	require.ErrorIs(t, err, runner.ErrProcessRunning)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RejectedTotal.WithLabelValues("process-running")))
	require.Equal(t, "/ws/", h.mgr.State().WorkspacePathPrefix)
}

func TestManager_StopIdleIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t)

	require.NoError(t, h.mgr.Stop(context.Background()))
	require.Equal(t, []string{wire.CommandState}, h.ch.names())
}

func TestManager_StopSendsKill(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(o *Options) { o.RunnerSelector = staticRunner("java") })
	h.connect(t)
	h.ch.onMessage(map[string]any{"type": "state", "javaProcessRunning": true})
	h.waitState(t, func(s runner.State) bool { return s.ProcessRunning })

	require.NoError(t, h.mgr.Stop(context.Background()))
	cmd, ok := h.lastCommand(t, wire.CommandKill).(wire.KillCommand)
	require.True(t, ok)
	require.Equal(t, "java", cmd.Runner)

	h.waitState(t, func(s runner.State) bool { return s.Pending == runner.PendingStop })
	require.True(t, h.mgr.State().ProcessRunning)
}

func TestManager_ServerErrorIsReported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t)

	h.ch.onMessage(map[string]any{"type": "error", "code": 42, "message": "boom"})

	require.Eventually(t, func() bool {
		return len(h.console.lines()) == 1 && len(h.report.reported()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"[Server Exception 42] boom"}, h.console.lines())
	require.Equal(t, []int{42}, h.report.reported())
	require.Eventually(t, func() bool {
		return len(h.ch.names()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{wire.CommandState, wire.CommandState}, h.ch.names())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ServerErrors.WithLabelValues("server")))
}

func TestManager_NonIntegerErrorCodesAreReported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t)

	h.ch.onMessage(map[string]any{"type": "error", "code": "EACCES", "message": "permission denied"})
	h.ch.onMessage(map[string]any{"type": "error", "code": 1.5, "message": "odd"})

	require.Eventually(t, func() bool {
		return len(h.console.lines()) == 2 && len(h.ch.names()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{
		"[Server Exception EACCES] permission denied",
		"[Server Exception 1.5] odd",
	}, h.console.lines())
	require.Equal(t, []string{wire.CommandState, wire.CommandState, wire.CommandState}, h.ch.names())
	require.False(t, h.mgr.State().ProcessRunning)
	require.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ServerErrors.WithLabelValues("server")))
}

func TestManager_SubscribeSeesExit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	exits := h.mgr.Subscribe(4, runner.EventProcessExited)
	h.connect(t)
	h.ch.onMessage(map[string]any{"type": "state", "nodeProcessRunning": true})
	h.ch.onMessage(map[string]any{"type": "exit"})

	select {
	case ev := <-exits:
		require.Equal(t, runner.EventProcessExited, ev.Kind)
		require.False(t, ev.State.ProcessRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for exit event")
	}
}

func TestManager_ConsoleRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.ConsoleRun(context.Background(), []string{"run", "x.js"}, "/ws"))

	cmd, ok := h.lastCommand(t, wire.CommandIsFile).(wire.IsFileCommand)
	require.True(t, ok)
	require.Equal(t, []string{"run", "x.js"}, cmd.Argv)
	require.Equal(t, "/ws", cmd.Cwd)
	require.Equal(t, wire.ConsoleSender, cmd.Sender)
}

func TestManager_SetDefaultNodeVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t)
	require.NoError(t, h.mgr.SetDefaultNodeVersion(" 14 "))

	require.NoError(t, h.mgr.Run(context.Background(), "a.js", "", false, ""))
	cmd, ok := h.lastCommand(t, wire.CommandRun).(wire.RunCommand)
	require.True(t, ok)
	require.Equal(t, "14", cmd.Version)
}

func TestManager_SetDefaultNodeVersionCreatesHome(t *testing.T) {
	t.Parallel()

	home := filepath.Join(t.TempDir(), "home")
	h := newHarness(t, func(o *Options) {
		o.Config.Home = home
		o.Config.SettingsPath = filepath.Join(home, "settings.yaml")
	})
	require.NoError(t, h.mgr.SetDefaultNodeVersion("20"))

	s, err := storage.LoadSettings(filepath.Join(home, "settings.yaml"))
	require.NoError(t, err)
	require.Equal(t, "20", s.NodeVersion)
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Close())
	require.NoError(t, h.mgr.Close())
	require.Equal(t, 1, h.ch.closes)

	err := h.mgr.RequestState(context.Background())
	require.ErrorIs(t, err, framework.ErrStopped)
}

func TestManager_CallHonorsContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.mgr.Run(ctx, "a.js", "", false, "")
	require.Error(t, err)
}

func TestResolveVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		candidates []string
		want       string
	}{
		{name: "explicit wins", candidates: []string{"20", "16", "14"}, want: "20"},
		{name: "default means unset", candidates: []string{"default", "16", "14"}, want: "16"},
		{name: "settings", candidates: []string{"", "", "14"}, want: "14"},
		{name: "fallback", candidates: []string{"default", "", ""}, want: config.DefaultNodeVersion},
		{name: "persisted default", candidates: []string{"", "", "default"}, want: config.DefaultNodeVersion},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, resolveVersion(tc.candidates...))
		})
	}
}
