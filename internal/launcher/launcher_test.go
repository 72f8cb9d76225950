package launcher

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func recvExit(t *testing.T, p Process, within time.Duration) Exit {
	t.Helper()
	select {
	case e, ok := <-p.Done():
		require.True(t, ok, "done channel closed without an exit")
		return e
	case <-time.After(within):
		t.Fatalf("timed out waiting for process exit")
		return Exit{}
	}
}

func TestExpand(t *testing.T) {
	got := expand(DefaultArgs, 12940, 3)
	assert.Equal(t, []string{"-port", "12940", "-players", "3"}, got)
	assert.Equal(t, []string{"-port", "{port}", "-players", "{players}"}, DefaultArgs, "template must not be mutated")

	got = expand([]string{"--listen=:{port}", "x{players}x"}, 7000, 4)
	assert.Equal(t, []string{"--listen=:7000", "x4x"}, got)
}

func TestExec_CommandInheritsStandardStreams(t *testing.T) {
	e := NewExec("/opt/game/server", nil, zaptest.NewLogger(t))
	cmd := e.command(12940, 2)

	assert.Equal(t, []string{"/opt/game/server", "-port", "12940", "-players", "2"}, cmd.Args)
	assert.Same(t, os.Stdin, cmd.Stdin)
	assert.Same(t, os.Stdout, cmd.Stdout)
	assert.Same(t, os.Stderr, cmd.Stderr)
}

func TestExec_CleanExit(t *testing.T) {
	// $0 receives the port and $1 the player count
	l := NewExec(shell(t), []string{"-c", `test "$0" = 7001 && test "$1" = 2`, "{port}", "{players}"}, zaptest.NewLogger(t))

	p, err := l.Launch(context.Background(), 7001, 2)
	require.NoError(t, err)

	e := recvExit(t, p, 5*time.Second)
	assert.Equal(t, Exit{Port: 7001, Code: 0}, e)
	assert.NoError(t, p.Stop(), "stopping an exited process is a no-op")
}

func TestExec_NonZeroExitIsReportedNotReturned(t *testing.T) {
	l := NewExec(shell(t), []string{"-c", "exit 3"}, zaptest.NewLogger(t))

	p, err := l.Launch(context.Background(), 7002, 4)
	require.NoError(t, err)

	e := recvExit(t, p, 5*time.Second)
	assert.Equal(t, 7002, e.Port)
	assert.Equal(t, 3, e.Code)
	assert.NoError(t, e.Err)
}

func TestExec_MissingBinary(t *testing.T) {
	l := NewExec("/definitely/not/a/game-server", nil, zaptest.NewLogger(t))

	p, err := l.Launch(context.Background(), 7003, 2)
	require.ErrorIs(t, err, ErrLaunch)
	assert.Nil(t, p)
}

func TestExec_Stop(t *testing.T) {
	l := NewExec(shell(t), []string{"-c", "sleep 30"}, zaptest.NewLogger(t))

	p, err := l.Launch(context.Background(), 7004, 2)
	require.NoError(t, err)
	require.NoError(t, p.Stop())

	e := recvExit(t, p, 5*time.Second)
	assert.Equal(t, 7004, e.Port)
	assert.NotEqual(t, 0, e.Code)
}

func TestExec_CancelledContext(t *testing.T) {
	l := NewExec(shell(t), nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Launch(ctx, 7005, 2)
	require.ErrorIs(t, err, context.Canceled)
}
