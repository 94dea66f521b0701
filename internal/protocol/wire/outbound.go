package wire

import "strings"

// Command names understood by the host.
const (
	CommandRun         = "Run"
	CommandRunDebugBrk = "RunDebugBrk"
	CommandKill        = "kill"
	CommandState       = "state"
	CommandIsFile      = "internal-isfile"
)

// EnvSelectedFile is the env key carrying the editor's active file.
const EnvSelectedFile = "C9_SELECTED_FILE"

// ConsoleSender identifies this controller as the origin of forwarded console
// commands.
const ConsoleSender = "noderunner"

// Outbound is a client -> server "message" payload.
//
// The set of implementations is closed: RunCommand, KillCommand,
// StateCommand and IsFileCommand.
type Outbound interface {
	// Name returns the command name placed in the `command` field.
	Name() string
	isOutbound()
}

// RunCommand starts a program on the host, with or without a debugger.
type RunCommand struct {
	Command string            `json:"command"`
	File    string            `json:"file"`
	Runner  string            `json:"runner"`
	Args    string            `json:"args"`
	Version string            `json:"version"`
	Env     map[string]string `json:"env"`
}

// KillCommand stops the running program.
type KillCommand struct {
	Command string `json:"command"`
	Runner  string `json:"runner"`
}

// StateCommand asks the host for a fresh state message.
type StateCommand struct {
	Command string `json:"command"`
}

// IsFileCommand forwards a console `run` so the host can check the path.
type IsFileCommand struct {
	Command string   `json:"command"`
	Argv    []string `json:"argv"`
	Cwd     string   `json:"cwd"`
	Sender  string   `json:"sender"`
}

func (c RunCommand) Name() string    { return c.Command }
func (c KillCommand) Name() string   { return c.Command }
func (c StateCommand) Name() string  { return c.Command }
func (c IsFileCommand) Name() string { return c.Command }

func (RunCommand) isOutbound()    {}
func (KillCommand) isOutbound()   {}
func (StateCommand) isOutbound()  {}
func (IsFileCommand) isOutbound() {}

// NewRunCommand builds a Run or RunDebugBrk command. file is normalized with
// NormalizePath; a nil env is sent as an empty object.
func NewRunCommand(file, args, runner, version string, debug bool, env map[string]string) RunCommand {
	name := CommandRun
	if debug {
		name = CommandRunDebugBrk
	}
	if env == nil {
		env = map[string]string{}
	}
	return RunCommand{
		Command: name,
		File:    NormalizePath(file),
		Runner:  runner,
		Args:    args,
		Version: version,
		Env:     env,
	}
}

// NewKillCommand builds a kill command for the given runner.
func NewKillCommand(runner string) KillCommand {
	return KillCommand{Command: CommandKill, Runner: runner}
}

// NewStateCommand builds a resync request.
func NewStateCommand() StateCommand {
	return StateCommand{Command: CommandState}
}

// NewIsFileCommand builds an internal-isfile console forward.
func NewIsFileCommand(argv []string, cwd string) IsFileCommand {
	return IsFileCommand{
		Command: CommandIsFile,
		Argv:    append([]string(nil), argv...),
		Cwd:     cwd,
		Sender:  ConsoleSender,
	}
}

// NormalizePath trims whitespace and strips leading slashes so the host
// resolves the path relative to the workspace.
func NormalizePath(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}

// IsDebug reports whether the command starts a debug run.
func (c RunCommand) IsDebug() bool {
	return c.Command == CommandRunDebugBrk
}
