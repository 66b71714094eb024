package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_PauseResumeTick(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "10s")

	e.set(3)
	v := e.aggregate("delay", "pause", "delay-1")
	assert.Equal(t, "PAUSED", v.Delay.State)
	assert.Equal(t, "7s", v.Delay.Remaining)

	e.set(20)
	v = e.aggregate("delay", "resume", "delay-1")
	assert.Equal(t, "SCHEDULED", v.Delay.State)
	assert.Equal(t, formatTime(at(27)), v.Delay.DueAt)

	e.set(26)
	v = e.aggregate("delay", "tick", "delay-1")
	assert.Equal(t, "SCHEDULED", v.Delay.State)
	assert.Equal(t, "SUBMITTED", v.Action.State)

	v = e.aggregate("delay", "tick", "delay-1", "--at", formatTime(at(27)))
	assert.Equal(t, "EXECUTED", v.Delay.State)
	assert.Equal(t, "CLOSED", v.Action.State)
	assert.Equal(t, formatTime(at(27)), v.Action.ClosedAt)
}

func TestDelay_FastForward(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "1h")

	e.set(5)
	v := e.aggregate("delay", "fast-forward", "delay-1")
	assert.Equal(t, "FAST_FORWARDED", v.Delay.State)
	assert.Equal(t, "0s", v.Delay.Remaining)

	v = e.aggregate("delay", "tick", "delay-1")
	assert.Equal(t, "EXECUTED", v.Delay.State)
	assert.Equal(t, "CLOSED", v.Action.State)
}

func TestDelay_Stop(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "1h")

	v := e.aggregate("delay", "stop", "delay-1")
	assert.Equal(t, "STOPPED", v.Delay.State)
	assert.Equal(t, "CLOSED", v.Action.State)

	assert.Equal(t, "INVALID_STATE", e.fail("delay", "resume", "delay-1"))
}

func TestDelay_TickIgnoredWhileChallenged(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "10s")
	e.aggregate("challenge", "action-1", "--challenger", "bob")

	v := e.aggregate("delay", "tick", "delay-1", "--at", formatTime(at(100)))
	assert.Equal(t, "PAUSED", v.Delay.State)
	assert.Equal(t, "CHALLENGED", v.Action.State)

	assert.Equal(t, "INVALID_STATE", e.fail("delay", "stop", "delay-1"))
}

func TestDelay_Schedule(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p")

	e.set(10)
	v := e.aggregate("delay", "schedule", "action-1", "90s")
	require.NotNil(t, v.Delay)
	assert.Equal(t, "delay-1", v.Delay.ID)
	assert.Equal(t, formatTime(at(100)), v.Delay.DueAt)

	assert.Equal(t, "INVALID_STATE", e.fail("delay", "schedule", "action-1", "90s"))
	assert.Equal(t, "NOT_FOUND", e.fail("delay", "schedule", "action-7", "90s"))
}

func TestDelay_BadArguments(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "10s")

	_, err := e.exec("delay", "schedule", "action-1", "soon")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = e.exec("delay", "tick", "delay-1", "--at", "tomorrow")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid --at "tomorrow"`)

	assert.Equal(t, "NOT_FOUND", e.fail("delay", "pause", "delay-9"))
}

func TestDelay_ManualOpsRejectedWhileChallenged(t *testing.T) {
	e := newCLIEnv(t)
	e.aggregate("submit", "--submitter", "alice", "--payload", "p", "--delay", "10s")
	e.set(3)
	e.aggregate("challenge", "action-1", "--challenger", "bob")

	assert.Equal(t, "INVALID_STATE", e.fail("delay", "resume", "delay-1"))
	assert.Equal(t, "INVALID_STATE", e.fail("delay", "fast-forward", "delay-1"))

	v := e.aggregate("show", "action-1")
	assert.Equal(t, "PAUSED", v.Delay.State)
	assert.Equal(t, "7s", v.Delay.Remaining)
}
