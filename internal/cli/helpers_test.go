package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/agreement/internal/engine"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

// cliEnv runs root commands against one database. The clock and ID
// sequence are shared across invocations so IDs stay unique.
type cliEnv struct {
	t     *testing.T
	db    string
	clock *engine.ManualClock
	ids   *engine.SequenceGenerator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:     t,
		db:    filepath.Join(t.TempDir(), "agreement.db"),
		clock: engine.NewManualClock(t0),
		ids:   engine.NewSequenceGenerator(),
	}
}

// exec runs the root command with args and returns stdout.
func (e *cliEnv) exec(args ...string) (string, error) {
	return e.execContext(context.Background(), args...)
}

func (e *cliEnv) execContext(ctx context.Context, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand(&RootOptions{Clock: e.clock, IDs: e.ids})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// json runs the command with --format json and decodes the response.
func (e *cliEnv) json(args ...string) (envelope, error) {
	e.t.Helper()
	out, err := e.exec(append(args, "--format", "json")...)
	var env envelope
	require.NoError(e.t, json.Unmarshal([]byte(out), &env), "stdout: %s", out)
	return env, err
}

// aggregate runs a command that must succeed and returns the reported
// aggregate.
func (e *cliEnv) aggregate(args ...string) AggregateView {
	e.t.Helper()
	env, err := e.json(args...)
	require.NoError(e.t, err)
	require.Equal(e.t, "ok", env.Status)
	var v AggregateView
	require.NoError(e.t, json.Unmarshal(env.Data, &v))
	return v
}

// fail runs a command that must be rejected and returns the error code.
func (e *cliEnv) fail(args ...string) string {
	e.t.Helper()
	env, err := e.json(args...)
	require.Error(e.t, err)
	require.Equal(e.t, "error", env.Status)
	require.NotNil(e.t, env.Error)
	return env.Error.Code
}

// set moves the shared clock to sec seconds after t0.
func (e *cliEnv) set(sec int) {
	e.clock.Set(at(sec))
}

// writeConfig writes a CUE config file and returns its path.
func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agreement.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}
