package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/richinsley/fdbridge"
)

func TestRegisterDescriptors(t *testing.T) {
	bridge := fdbridge.New()
	require.NoError(t, registerDescriptors(bridge, map[string]string{
		"inout":   "5",
		"control": "unix:///run/control.sock",
	}))
	assert.Equal(t, map[string]string{
		"inout":   "fd://5",
		"control": "unix:///run/control.sock",
	}, bridge.DescriptorMap())

	err := registerDescriptors(bridge, map[string]string{"bad": "-2"})
	assert.ErrorIs(t, err, fdbridge.ErrInvalidArgument)
}

func TestServeChannelAnswersPing(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	hostEnd := fdbridge.NewChannel(os.NewFile(uintptr(fds[0]), "host"))
	runtimeEnd := fdbridge.NewChannel(os.NewFile(uintptr(fds[1]), "runtime"))
	defer runtimeEnd.Close()

	done := make(chan struct{})
	go func() {
		serveChannel(hostEnd, zerolog.Nop())
		close(done)
	}()

	require.NoError(t, runtimeEnd.Send(map[string]any{"hello": "world"}))
	require.NoError(t, runtimeEnd.Send("ping"))

	var reply string
	require.NoError(t, runtimeEnd.Receive(&reply))
	assert.Equal(t, "pong", reply)

	require.NoError(t, runtimeEnd.Close())
	<-done
	hostEnd.Close()
}

func TestOpenChannelRegistersDescriptor(t *testing.T) {
	bridge := fdbridge.New()
	closeChannel, err := openChannel(bridge, "inout", zerolog.Nop())
	require.NoError(t, err)
	defer closeChannel()

	fd, err := fdbridge.ParseFDLocator(bridge.DescriptorMap()["inout"])
	require.NoError(t, err)

	// talk to the host end through the registered descriptor
	dup, err := unix.Dup(fd)
	require.NoError(t, err)
	writer := fdbridge.NewChannel(os.NewFile(uintptr(dup), "runtime"))
	defer writer.Close()
	require.NoError(t, writer.Send("ping"))

	var reply string
	require.NoError(t, writer.Receive(&reply))
	assert.Equal(t, "pong", reply)
}

func TestRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "exit.js")
	require.NoError(t, os.WriteFile(script, []byte(`process.exit(process._linkedBinding("node_fd_pass").getIoMap().answer === "fd://4" ? 6 : 2)`), 0o644))
	config := filepath.Join(dir, "fdbridge.toml")
	require.NoError(t, os.WriteFile(config, []byte(`
[log]
level = "disabled"

[redirect]
enabled = false

[descriptors]
answer = "4"
`), 0o644))

	code, err := run([]string{"-config", config, "--", script})
	require.NoError(t, err)
	assert.Equal(t, 6, code)
}

func TestRunBadConfig(t *testing.T) {
	code, err := run([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
