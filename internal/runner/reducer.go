package runner

import (
	"fmt"

	"github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/protocol/wire"
)

// Reduce is the session reducer. It is the only writer of State.
//
// Every input that changes State also publishes EventStateChanged after the
// input's own effects.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	next, effects := reduce(state, input)
	if next != state {
		effects = append(effects, publish(EventStateChanged, nil, next))
	}
	return next, effects
}

func reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdRun:
		return reduceRun(state, in)
	case cmdStop:
		return reduceStop(state, in)
	case cmdConsoleRun:
		reply(in.Reply, nil)
		return state, []actor.Effect{effSend{Command: wire.NewIsFileCommand(in.Argv, in.Cwd)}}
	case cmdRequestState:
		reply(in.Reply, nil)
		return state, []actor.Effect{resync()}

	case evConnected:
		state.Connected = true
		return state, []actor.Effect{resync()}
	case evDisconnected:
		return reduceDisconnected(state)
	case evInbound:
		return reduceInbound(state, in.Message)
	default:
		return state, nil
	}
}

func reduceRun(state State, cmd cmdRun) (State, []actor.Effect) {
	switch {
	case state.ProcessRunning:
		reply(cmd.Reply, ErrProcessRunning)
		return state, nil
	case !state.Connected:
		reply(cmd.Reply, ErrDisconnected)
		return state, nil
	case wire.NormalizePath(cmd.Path) == "":
		reply(cmd.Reply, ErrInvalidPath)
		return state, nil
	}

	run := wire.NewRunCommand(cmd.Path, cmd.Args, cmd.Runner, cmd.Version, cmd.Debug, copyEnv(cmd.Env))
	if cmd.Debug {
		state.Pending = PendingDebug
	} else {
		state.Pending = PendingRun
	}
	reply(cmd.Reply, nil)
	return state, []actor.Effect{
		effManualAttach{},
		effSend{Command: run},
	}
}

func reduceStop(state State, cmd cmdStop) (State, []actor.Effect) {
	if !state.ProcessRunning {
		reply(cmd.Reply, ErrNotRunning)
		return state, nil
	}
	state.Pending = PendingStop
	reply(cmd.Reply, nil)
	return state, []actor.Effect{effSend{Command: wire.NewKillCommand(cmd.Runner)}}
}

// reduceDisconnected drops the debug flag: no debugger can stay attached to a
// dead channel. ProcessRunning is kept since the host process may outlive the
// connection.
func reduceDisconnected(state State) (State, []actor.Effect) {
	state.Connected = false
	state.Pending = PendingNone
	return setDebug(state, false, nil)
}

func reduceInbound(state State, msg wire.Inbound) (State, []actor.Effect) {
	if msg == nil {
		return state, nil
	}
	state.Pending = PendingNone

	var effects []actor.Effect
	switch m := msg.(type) {
	case wire.ReadyNode:
		return state, []actor.Effect{publish(EventDebugReady, m, state)}

	case wire.ReadyChrome:
		return state, []actor.Effect{
			effShowDebugger{},
			publish(EventDebugReady, m, state),
		}

	case wire.Exit:
		state.ProcessRunning = false
		state, effects = setDebug(state, false, effects)
		return state, append(effects, publish(EventProcessExited, m, state))

	case wire.ExitError:
		state.ProcessRunning = false
		state, effects = setDebug(state, false, effects)
		return state, append(effects,
			effReport{Level: ReportError, Text: exceptionText("", m.ErrorMessage)},
			publish(EventProcessFailed, m, state),
		)

	case wire.StateMessage:
		state.ProcessRunning = m.AnyProcessRunning()
		state.WorkspacePathPrefix = m.WorkspaceDir + "/"
		state, effects = setDebug(state, m.AnyDebugClient(), effects)
		return state, append(effects, publish(EventStateRefreshed, m, state))

	case wire.ErrorMessage:
		return reduceError(state, m)

	default:
		return state, nil
	}
}

// reduceError applies the error classification policy. Every branch ends
// with a state resync request.
func reduceError(state State, msg wire.ErrorMessage) (State, []actor.Effect) {
	var effects []actor.Effect

	switch ClassifyError(msg.Code) {
	case ClassAlreadyRunning:
		state.ProcessRunning = true
		state, effects = setDebug(state, false, effects)
	case ClassAlreadyDebugging:
		state.ProcessRunning = true
		state, effects = setDebug(state, true, effects)
	case ClassCommand:
		effects = append(effects, effReport{Level: ReportWarning, Text: msg.Message})
	case ClassNoise:
	case ClassServer:
		effects = append(effects,
			effReport{Level: ReportError, Text: exceptionText(msg.CodeString(), msg.Message)},
			effDiagnostic{Code: msg.Code, Message: msg.Message},
		)
	}
	return state, append(effects, resync())
}

// setDebug updates DebugProcessRunning and appends attach/detach effects on
// an edge.
func setDebug(state State, on bool, effects []actor.Effect) (State, []actor.Effect) {
	switch {
	case on && !state.DebugProcessRunning:
		effects = append(effects, effAttachDebugger{})
	case !on && state.DebugProcessRunning:
		effects = append(effects, effDetachDebugger{})
	}
	state.DebugProcessRunning = on
	return state, effects
}

func resync() actor.Effect {
	return effSend{Command: wire.NewStateCommand()}
}

func publish(kind EventKind, msg wire.Inbound, state State) actor.Effect {
	return effPublish{Event: Event{Kind: kind, Message: msg, State: state}}
}

// exceptionText formats a server failure for the console.
func exceptionText(code, message string) string {
	if code == "" {
		return fmt.Sprintf("[Server Exception] %s", message)
	}
	return fmt.Sprintf("[Server Exception %s] %s", code, message)
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
