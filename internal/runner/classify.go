package runner

// ErrorClass is how an inbound error message is handled.
type ErrorClass int

const (
	// ClassServer is any unclassified code: reported and sent out of band.
	ClassServer ErrorClass = iota
	// ClassAlreadyRunning (code 1) means the host already has a run active.
	ClassAlreadyRunning
	// ClassAlreadyDebugging (code 5) means the host already has a debug run active.
	ClassAlreadyDebugging
	// ClassCommand (code 9) is a failed command, shown as a warning.
	ClassCommand
	// ClassNoise covers authorization and transient codes ignored here.
	ClassNoise
)

const (
	codeAlreadyRunning   = 1
	codeAlreadyDebugging = 5
	codeCommandError     = 9
)

// noiseCodes are never shown to the user.
var noiseCodes = map[int]struct{}{
	6:   {},
	401: {},
	455: {},
	456: {},
}

// ClassifyError maps an error code to its handling class. A nil code is
// unclassified.
func ClassifyError(code *int) ErrorClass {
	if code == nil {
		return ClassServer
	}
	switch *code {
	case codeAlreadyRunning:
		return ClassAlreadyRunning
	case codeAlreadyDebugging:
		return ClassAlreadyDebugging
	case codeCommandError:
		return ClassCommand
	}
	if _, ok := noiseCodes[*code]; ok {
		return ClassNoise
	}
	return ClassServer
}

// String returns a stable label, used for metrics.
func (c ErrorClass) String() string {
	switch c {
	case ClassAlreadyRunning:
		return "already-running"
	case ClassAlreadyDebugging:
		return "already-debugging"
	case ClassCommand:
		return "command"
	case ClassNoise:
		return "noise"
	default:
		return "server"
	}
}

// Visible reports whether the class produces a user-visible report.
func (c ErrorClass) Visible() bool {
	return c == ClassCommand || c == ClassServer
}
