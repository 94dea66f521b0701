package runner

import (
	framework "github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/protocol/wire"
)

// RunRequest carries the fully resolved parameters of a run. It is built by
// the session manager and consumed once by the reducer.
type RunRequest struct {
	Path    string
	Args    string
	Debug   bool
	Runner  string
	Version string
	Env     map[string]string
}

// Run returns a command input that starts a run or debug run. reply, if
// non-nil, receives nil once the command was sent or the guard error
// (ErrProcessRunning, ErrDisconnected, ErrInvalidPath) otherwise.
func Run(req RunRequest, reply chan error) framework.Input {
	return cmdRun{
		Path:    req.Path,
		Args:    req.Args,
		Debug:   req.Debug,
		Runner:  req.Runner,
		Version: req.Version,
		Env:     req.Env,
		Reply:   reply,
	}
}

// Stop returns a command input that kills the running process on runner.
// reply receives ErrNotRunning when there is nothing to stop.
func Stop(runner string, reply chan error) framework.Input {
	return cmdStop{Runner: runner, Reply: reply}
}

// ConsoleRun returns a command input forwarding a console `run` command.
func ConsoleRun(argv []string, cwd string, reply chan error) framework.Input {
	return cmdConsoleRun{Argv: append([]string(nil), argv...), Cwd: cwd, Reply: reply}
}

// RequestState returns a command input that asks the host for fresh state.
func RequestState(reply chan error) framework.Input {
	return cmdRequestState{Reply: reply}
}

// Connected returns an event input for a channel connect.
func Connected() framework.Input {
	return evConnected{}
}

// Disconnected returns an event input for a channel disconnect.
func Disconnected(reason string) framework.Input {
	return evDisconnected{Reason: reason}
}

// Inbound returns an event input carrying one decoded host message.
func Inbound(msg wire.Inbound) framework.Input {
	return evInbound{Message: msg}
}
