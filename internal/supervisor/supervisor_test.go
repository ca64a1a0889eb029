package supervisor

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbaudit/collector/internal/clock"
)

// TestMain lets this test binary also act as the fake collector child
// process spawned by the tests below, the same self-exec trick the
// standard library's own os/exec tests use.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		if d := os.Getenv("HELPER_SLEEP"); d != "" {
			if dur, err := time.ParseDuration(d); err == nil {
				time.Sleep(dur)
			}
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func helperCommand(sleep string) func() *exec.Cmd {
	return func() *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=TestMain")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_SLEEP="+sleep)
		return cmd
	}
}

func TestStartForksChildAndCreatesPipe(t *testing.T) {
	s := New(helperCommand("0s"))
	require.NoError(t, s.Start())

	assert.NotNil(t, s.WriteEnd())
	require.NoError(t, s.Wait(context.Background()))
}

func TestStartWithinCooldownIsNoOp(t *testing.T) {
	mc := clock.NewMockClock(time.Now())
	s := New(helperCommand("5s"), WithClock(mc))
	require.NoError(t, s.Start())

	firstCmd := s.cmd
	mc.Advance(30 * time.Second)
	require.NoError(t, s.Start())
	assert.Same(t, firstCmd, s.cmd, "a start within the cooldown must not fork a replacement")
}

func TestAllowImmediateRestartBypassesCooldown(t *testing.T) {
	mc := clock.NewMockClock(time.Now())
	s := New(helperCommand("0s"), WithClock(mc))
	require.NoError(t, s.Start())
	require.NoError(t, s.Wait(context.Background()))

	firstCmd := s.cmd
	mc.Advance(1 * time.Second)
	s.AllowImmediateRestart()
	require.NoError(t, s.Start())
	assert.NotSame(t, firstCmd, s.cmd, "allow_immediate_restart must let a new fork happen despite the cooldown")
	require.NoError(t, s.Wait(context.Background()))
}

func TestStartReusesSamePipeAcrossRestarts(t *testing.T) {
	mc := clock.NewMockClock(time.Now())
	s := New(helperCommand("0s"), WithClock(mc))
	require.NoError(t, s.Start())
	require.NoError(t, s.Wait(context.Background()))
	firstWrite := s.WriteEnd()

	s.AllowImmediateRestart()
	require.NoError(t, s.Start())
	require.NoError(t, s.Wait(context.Background()))

	assert.Same(t, firstWrite, s.WriteEnd(), "the pipe's write end must survive a respawn")
}

func TestStartDoesNotForkWhilePreviousChildStillRunning(t *testing.T) {
	mc := clock.NewMockClock(time.Now())
	s := New(helperCommand("1s"), WithClock(mc))
	require.NoError(t, s.Start())
	firstCmd := s.cmd

	mc.Advance(respawnCooldown + time.Second)
	require.NoError(t, s.Start())
	assert.Same(t, firstCmd, s.cmd, "a live child must not be replaced even after the cooldown elapses")

	require.NoError(t, s.Wait(context.Background()))
}

func TestSignalWithNoChildIsNoOp(t *testing.T) {
	s := New(helperCommand("0s"))
	assert.NoError(t, s.Signal(15))
}
