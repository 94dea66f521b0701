package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownMessageType is returned by ParseInbound for a payload whose `type`
// is not one the run controller understands.
var ErrUnknownMessageType = errors.New("unknown message type")

// Message type tags. The legacy names are still emitted by older hosts.
const (
	TypeReadyNode   = "ready-node"
	TypeReadyChrome = "ready-chrome"
	TypeExit        = "exit"
	TypeExitError   = "exit-error"
	TypeState       = "state"
	TypeError       = "error"

	legacyTypeReadyNode   = "node-debug-ready"
	legacyTypeReadyChrome = "chrome-debug-ready"
	legacyTypeExit        = "node-exit"
	legacyTypeExitError   = "node-exit-with-error"
)

// Inbound is a decoded server -> client "message" payload.
//
// The set of implementations is closed: ReadyNode, ReadyChrome, Exit,
// ExitError, StateMessage and ErrorMessage.
type Inbound interface {
	// Type returns the canonical type tag.
	Type() string
	isInbound()
}

// ReadyNode reports that the node debugger endpoint is ready.
type ReadyNode struct{}

// ReadyChrome reports that the chrome debugger endpoint is ready.
type ReadyChrome struct{}

// Exit reports that the running process exited.
type Exit struct{}

// ExitError reports that the running process failed.
type ExitError struct {
	// ErrorMessage is the failure text shown to the user.
	ErrorMessage string `json:"errorMessage"`
}

// StateMessage is an authoritative snapshot of the host's process state.
type StateMessage struct {
	ProcessRunning       bool `json:"processRunning"`
	NodeProcessRunning   bool `json:"nodeProcessRunning"`
	PythonProcessRunning bool `json:"pythonProcessRunning"`
	JavaProcessRunning   bool `json:"javaProcessRunning"`

	DebugClient     bool `json:"debugClient"`
	NodeDebugClient bool `json:"nodeDebugClient"`

	// WorkspaceDir is the absolute workspace path on the host.
	WorkspaceDir string `json:"workspaceDir"`
}

// AnyProcessRunning reports whether any runner has a live process.
func (m StateMessage) AnyProcessRunning() bool {
	return m.ProcessRunning || m.NodeProcessRunning || m.PythonProcessRunning || m.JavaProcessRunning
}

// AnyDebugClient reports whether any debug client is connected on the host.
func (m StateMessage) AnyDebugClient() bool {
	return m.DebugClient || m.NodeDebugClient
}

// ErrorMessage is a server-side error notification.
type ErrorMessage struct {
	// Code is nil when the host did not send one or sent a value that is not
	// an integer.
	Code *int `json:"-"`
	// CodeText keeps a non-integer code verbatim, e.g. "EACCES" or "1.5".
	CodeText string `json:"-"`
	Message  string `json:"message"`
}

func (ReadyNode) Type() string    { return TypeReadyNode }
func (ReadyChrome) Type() string  { return TypeReadyChrome }
func (Exit) Type() string         { return TypeExit }
func (ExitError) Type() string    { return TypeExitError }
func (StateMessage) Type() string { return TypeState }
func (ErrorMessage) Type() string { return TypeError }

func (ReadyNode) isInbound()    {}
func (ReadyChrome) isInbound()  {}
func (Exit) isInbound()         {}
func (ExitError) isInbound()    {}
func (StateMessage) isInbound() {}
func (ErrorMessage) isInbound() {}

// maxExactCode bounds codes that float64 still represents exactly.
const maxExactCode = 1 << 53

// UnmarshalJSON accepts `code` as a JSON number or a numeric string. Any
// other code is kept in CodeText so the message is still routed.
func (m *ErrorMessage) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Message = tmp.Message
	m.Code = nil
	m.CodeText = ""

	raw := strings.TrimSpace(string(tmp.Code))
	if raw == "" || raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactCode {
		m.CodeText = raw
		return nil
	}
	code := int(f)
	m.Code = &code
	return nil
}

// CodeString renders the code for display; empty when absent.
func (m ErrorMessage) CodeString() string {
	if m.Code == nil {
		return m.CodeText
	}
	return strconv.Itoa(*m.Code)
}

// envelope carries only the discriminator.
type envelope struct {
	Type string `json:"type"`
}

// ParseInbound decodes a socket.io "message" payload into a typed Inbound.
//
// The payload is usually the map[string]any produced by the socket.io
// decoder; it is normalized through JSON like ParseUpdateEnvelope does.
func ParseInbound(v any) (Inbound, error) {
	var raw []byte
	switch p := v.(type) {
	case nil:
		return nil, fmt.Errorf("empty message payload")
	case []byte:
		raw = p
	case json.RawMessage:
		raw = p
	case string:
		raw = []byte(p)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeReadyNode, legacyTypeReadyNode:
		return ReadyNode{}, nil
	case TypeReadyChrome, legacyTypeReadyChrome:
		return ReadyChrome{}, nil
	case TypeExit, legacyTypeExit:
		return Exit{}, nil
	case TypeExitError, legacyTypeExitError:
		var msg ExitError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeState:
		var msg StateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
