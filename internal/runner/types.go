package runner

import (
	"github.com/bhandras/noderunner/internal/actor"
	"github.com/bhandras/noderunner/internal/protocol/wire"
)

// Pending marks the last command sent to the host as optimistically assumed.
//
// The running flags are only ever changed by host messages; Pending records
// what the controller expects the host to confirm next.
type Pending string

const (
	// PendingNone means local state reflects the last host message.
	PendingNone Pending = ""
	// PendingRun means a Run command was sent and not yet confirmed.
	PendingRun Pending = "run"
	// PendingDebug means a RunDebugBrk command was sent and not yet confirmed.
	PendingDebug Pending = "debug"
	// PendingStop means a kill command was sent and not yet confirmed.
	PendingStop Pending = "stop"
)

// State is the loop-owned session state.
//
// It is a plain value: copies handed out by the actor are read-only
// snapshots.
type State struct {
	// Connected mirrors the liveness of the message channel.
	Connected bool

	// ProcessRunning is true while a run is believed active on the host.
	ProcessRunning bool

	// DebugProcessRunning is true while a debug run is believed active. The
	// debugger is attached whenever this flag turns on and detached when it
	// turns off.
	DebugProcessRunning bool

	// WorkspacePathPrefix is stripped from remote paths in the debugger view.
	// It is only set from a state message.
	WorkspacePathPrefix string

	// Pending is the unconfirmed command, if any.
	Pending Pending
}

// Confirmed reports whether the flags reflect host truth with no command in
// flight.
func (s State) Confirmed() bool {
	return s.Pending == PendingNone
}

// EventKind names a local event raised for observers.
type EventKind string

const (
	// EventDebugReady is raised when the host's debugger endpoint is ready.
	EventDebugReady EventKind = "debug-ready"
	// EventStateRefreshed is raised after a state message was applied.
	EventStateRefreshed EventKind = "state-refreshed"
	// EventProcessExited is raised when the running process exited.
	EventProcessExited EventKind = "process-exited"
	// EventProcessFailed is raised when the running process exited with an error.
	EventProcessFailed EventKind = "process-exited-with-error"
	// EventStateChanged is raised whenever State changes.
	EventStateChanged EventKind = "state-changed"
)

// Event is a local notification delivered to observers.
type Event struct {
	Kind EventKind
	// Message is the inbound message that caused the event, if any.
	Message wire.Inbound
	// State is the session state after the transition.
	State State
}

// ReportLevel is the severity of a user-visible console line.
type ReportLevel int

const (
	// ReportWarning is a non-fatal command-level problem.
	ReportWarning ReportLevel = iota
	// ReportError is a server exception or failed run.
	ReportError
)

// Inputs

// cmdRun asks to start a run or debug run.
type cmdRun struct {
	actor.InputBase
	Path    string
	Args    string
	Debug   bool
	Runner  string
	Version string
	Env     map[string]string
	Reply   chan error
}

// cmdStop asks to kill the running process.
type cmdStop struct {
	actor.InputBase
	Runner string
	Reply  chan error
}

// cmdConsoleRun forwards a console `run` to the host.
type cmdConsoleRun struct {
	actor.InputBase
	Argv  []string
	Cwd   string
	Reply chan error
}

// cmdRequestState asks the host for a fresh state message.
type cmdRequestState struct {
	actor.InputBase
	Reply chan error
}

type evConnected struct {
	actor.InputBase
}

type evDisconnected struct {
	actor.InputBase
	Reason string
}

// evInbound carries one decoded host message.
type evInbound struct {
	actor.InputBase
	Message wire.Inbound
}

// Effects

// effSend writes one command to the message channel.
type effSend struct {
	actor.EffectBase
	Command wire.Outbound
}

// effManualAttach tells the debugger the next attach is user initiated.
type effManualAttach struct {
	actor.EffectBase
}

type effAttachDebugger struct {
	actor.EffectBase
}

type effDetachDebugger struct {
	actor.EffectBase
}

// effShowDebugger shows the debugger tab view and loads its tabs.
type effShowDebugger struct {
	actor.EffectBase
}

// effReport writes a user-visible console line.
type effReport struct {
	actor.EffectBase
	Level ReportLevel
	Text  string
}

// effDiagnostic transmits an unclassified server error out of band.
type effDiagnostic struct {
	actor.EffectBase
	Code    *int
	Message string
}

// effPublish raises a local event.
type effPublish struct {
	actor.EffectBase
	Event Event
}
