package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInbound_CanonicalAndLegacyTypes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		payload map[string]any
		want    Inbound
	}{
		{map[string]any{"type": "ready-node"}, ReadyNode{}},
		{map[string]any{"type": "node-debug-ready"}, ReadyNode{}},
		{map[string]any{"type": "ready-chrome"}, ReadyChrome{}},
		{map[string]any{"type": "chrome-debug-ready"}, ReadyChrome{}},
		{map[string]any{"type": "exit"}, Exit{}},
		{map[string]any{"type": "node-exit"}, Exit{}},
		{map[string]any{"type": "exit-error", "errorMessage": "crash"}, ExitError{ErrorMessage: "crash"}},
		{map[string]any{"type": "node-exit-with-error", "errorMessage": "crash"}, ExitError{ErrorMessage: "crash"}},
	}
	for _, tc := range cases {
		got, err := ParseInbound(tc.payload)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestParseInbound_State(t *testing.T) {
	t.Parallel()

	got, err := ParseInbound(map[string]any{
		"type":                 "state",
		"pythonProcessRunning": true,
		"nodeDebugClient":      true,
		"workspaceDir":         "/home/ubuntu/ws",
	})
	require.NoError(t, err)

	st, ok := got.(StateMessage)
	require.True(t, ok)
	require.True(t, st.AnyProcessRunning())
	require.True(t, st.AnyDebugClient())
	require.Equal(t, "/home/ubuntu/ws", st.WorkspaceDir)

	got, err = ParseInbound(`{"type":"state"}`)
	require.NoError(t, err)
	st = got.(StateMessage)
	require.False(t, st.AnyProcessRunning())
	require.False(t, st.AnyDebugClient())
}

func TestParseInbound_ErrorCodes(t *testing.T) {
	t.Parallel()

	got, err := ParseInbound(map[string]any{"type": "error", "code": float64(42), "message": "boom"})
	require.NoError(t, err)
	msg := got.(ErrorMessage)
	require.NotNil(t, msg.Code)
	require.Equal(t, 42, *msg.Code)
	require.Equal(t, "boom", msg.Message)
	require.Equal(t, "42", msg.CodeString())

	got, err = ParseInbound(`{"type":"error","code":"401","message":"auth"}`)
	require.NoError(t, err)
	msg = got.(ErrorMessage)
	require.NotNil(t, msg.Code)
	require.Equal(t, 401, *msg.Code)

	got, err = ParseInbound(`{"type":"error","message":"no code"}`)
	require.NoError(t, err)
	msg = got.(ErrorMessage)
	require.Nil(t, msg.Code)
	require.Equal(t, "", msg.CodeString())

	got, err = ParseInbound(`{"type":"error","code":"EACCES","message":"permission denied"}`)
	require.NoError(t, err)
	msg = got.(ErrorMessage)
	require.Nil(t, msg.Code)
	require.Equal(t, "EACCES", msg.CodeString())
}

func TestParseInbound_ErrorCodeMustBeIntegral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     any
		wantCode *int
		wantText string
	}{
		{name: "fraction", code: 1.5, wantText: "1.5"},
		{name: "fraction string", code: "5.25", wantText: "5.25"},
		{name: "huge", code: 1e20, wantText: "100000000000000000000"},
		{name: "integral float", code: 9.0, wantCode: intPtr(9)},
		{name: "bool", code: true, wantText: "true"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseInbound(map[string]any{"type": "error", "code": tc.code})
			require.NoError(t, err)
			msg := got.(ErrorMessage)
			require.Equal(t, tc.wantCode, msg.Code)
			require.Equal(t, tc.wantText, msg.CodeText)
		})
	}
}

func intPtr(v int) *int { return &v }

func TestParseInbound_Unknown(t *testing.T) {
	t.Parallel()

	_, err := ParseInbound(map[string]any{"type": "watcher-change"})
	require.True(t, errors.Is(err, ErrUnknownMessageType))

	_, err = ParseInbound(nil)
	require.Error(t, err)
}

func TestOutboundCommands_JSONShape(t *testing.T) {
	t.Parallel()

	run := NewRunCommand("  //foo/bar.js ", "--x", "node", "auto", true, nil)
	require.Equal(t, CommandRunDebugBrk, run.Name())
	require.True(t, run.IsDebug())
	require.Equal(t, "foo/bar.js", run.File)

	raw, err := json.Marshal(run)
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"RunDebugBrk","file":"foo/bar.js","runner":"node","args":"--x","version":"auto","env":{}}`, string(raw))

	raw, err = json.Marshal(NewKillCommand("python"))
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"kill","runner":"python"}`, string(raw))

	raw, err = json.Marshal(NewStateCommand())
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"state"}`, string(raw))

	raw, err = json.Marshal(NewIsFileCommand([]string{"run", "a.js"}, "/ws"))
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"internal-isfile","argv":["run","a.js"],"cwd":"/ws","sender":"noderunner"}`, string(raw))
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "foo.js", NormalizePath("/foo.js"))
	require.Equal(t, "a/b.js", NormalizePath(" ///a/b.js\t"))
	require.Equal(t, "", NormalizePath("  / "))
}
