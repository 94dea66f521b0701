package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/noderunner/internal/runner"
)

const commandTimeout = 5 * time.Second

// sessionAPI is the part of session.Manager the REPL drives.
type sessionAPI interface {
	Run(ctx context.Context, path, args string, isDebug bool, versionOverride string) error
	Stop(ctx context.Context) error
	ConsoleRun(ctx context.Context, argv []string, cwd string) error
	RequestState(ctx context.Context) error
	SetDefaultNodeVersion(version string) error
	State() runner.State
}

// printer is the part of console.Console the REPL writes to.
type printer interface {
	Error(text string)
	Infof(format string, args ...any)
}

// selection tracks the runner and file most recently chosen at the prompt.
type selection struct {
	mu     sync.Mutex
	runner string
	file   string
}

func (s *selection) SelectedRunner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

func (s *selection) ActiveFilePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *selection) setRunner(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = name
}

func (s *selection) setFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = path
}

type repl struct {
	mgr sessionAPI
	out printer
	sel *selection
	cwd string
}

// loop reads commands from in until EOF or quit.
func (r *repl) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if quit := r.exec(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// exec runs one command line. It returns true when the session should end.
func (r *repl) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch cmd, rest := fields[0], fields[1:]; cmd {
	case "run", "debug":
		if len(rest) == 0 {
			r.out.Error("usage: " + cmd + " <path> [args...]")
			return false
		}
		r.sel.setFile(rest[0])
		err = r.mgr.Run(ctx, rest[0], strings.Join(rest[1:], " "), cmd == "debug", "")
	case "stop":
		err = r.mgr.Stop(ctx)
	case "state":
		err = r.mgr.RequestState(ctx)
		r.out.Infof("%s", describeState(r.mgr.State()))
	case "exec":
		if len(rest) == 0 {
			r.out.Error("usage: exec <argv...>")
			return false
		}
		err = r.mgr.ConsoleRun(ctx, rest, r.cwd)
	case "runner":
		if len(rest) != 1 {
			r.out.Error("usage: runner <name>")
			return false
		}
		r.sel.setRunner(rest[0])
	case "version":
		if len(rest) != 1 {
			r.out.Error("usage: version <v>")
			return false
		}
		err = r.mgr.SetDefaultNodeVersion(rest[0])
	case "help":
		printUsage()
	case "quit", "exit":
		return true
	default:
		r.out.Error(fmt.Sprintf("unknown command %q", cmd))
	}

	if err != nil {
		r.out.Error(err.Error())
	}
	return false
}

func describeState(s runner.State) string {
	status := "idle"
	switch {
	case s.DebugProcessRunning:
		status = "debugging"
	case s.ProcessRunning:
		status = "running"
	}
	conn := "connected"
	if !s.Connected {
		conn = "disconnected"
	}
	out := status + ", " + conn
	if !s.Confirmed() {
		out += ", pending " + string(s.Pending)
	}
	return out
}
