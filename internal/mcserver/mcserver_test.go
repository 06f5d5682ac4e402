package mcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProbe(t *testing.T) {
	p, err := NewProbe("localhost", "25565/tcp", 0)
	require.NoError(t, err)
	assert.Equal(t, "localhost:25565", p.Addr())

	p, err = NewProbe("10.0.0.2", "25566", 0)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:25566", p.Addr())

	_, err = NewProbe("localhost", "19132/udp", 0)
	assert.Error(t, err)
	_, err = NewProbe("localhost", "abc/tcp", 0)
	assert.Error(t, err)
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	return l, port
}

func TestProbePing(t *testing.T) {
	l, port := listen(t)
	p, err := NewProbe("127.0.0.1", port+"/tcp", time.Second)
	require.NoError(t, err)

	assert.True(t, p.Reachable(context.Background()))
	latency, err := p.Ping(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, time.Duration(0))

	require.NoError(t, l.Close())
	assert.False(t, p.Reachable(context.Background()))
}

type fakeConsole struct {
	commands []string
}

func (f *fakeConsole) Execute(_ context.Context, cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	return "", nil
}

func TestProcessControllerDetectsExternalServer(t *testing.T) {
	l, port := listen(t)
	defer l.Close()
	p, err := NewProbe("127.0.0.1", port, time.Second)
	require.NoError(t, err)

	ctrl, err := New(Options{Mode: ModeProcess, Dir: t.TempDir(), Jar: "server.jar"}, p, &fakeConsole{})
	require.NoError(t, err)

	running, err := ctrl.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, running)
	assert.ErrorIs(t, ctrl.Start(context.Background()), ErrAlreadyRunning)
}

func TestProcessControllerStopWhenIdle(t *testing.T) {
	l, port := listen(t)
	require.NoError(t, l.Close())
	p, err := NewProbe("127.0.0.1", port, 100*time.Millisecond)
	require.NoError(t, err)

	console := &fakeConsole{}
	ctrl := NewProcessController(Options{Dir: t.TempDir()}, p, console)
	assert.ErrorIs(t, ctrl.Stop(context.Background()), ErrNotRunning)
	assert.Empty(t, console.commands)

	err = ctrl.Start(context.Background())
	assert.Error(t, err, "jar is missing")
}

func TestUnknownMode(t *testing.T) {
	_, err := New(Options{Mode: "vm"}, nil, nil)
	assert.Error(t, err)
}

func TestWaitForTimesOut(t *testing.T) {
	err := waitFor(context.Background(), 30*time.Millisecond, 5*time.Millisecond, true, func(context.Context) bool { return false })
	assert.ErrorIs(t, err, ErrStartTimeout)

	calls := 0
	err = waitFor(context.Background(), time.Second, 5*time.Millisecond, true, func(context.Context) bool {
		calls++
		return calls == 3
	})
	assert.NoError(t, err)
}
