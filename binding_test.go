package fdbridge

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/richinsley/fdbridge/jsrt"
)

func startScript(t *testing.T, b *Bridge, src string) int {
	t.Helper()
	code, err := b.Start([]string{"-e", src})
	require.NoError(t, err)
	return code
}

func TestBindingGetIoMap(t *testing.T) {
	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	require.NoError(t, b.RegisterDescriptor("inout", 7))
	require.NoError(t, b.RegisterLocator("control", "unix:///tmp/control.sock"))

	code := startScript(t, b, `
		const binding = process._linkedBinding("node_fd_pass");
		const ioMap = binding.getIoMap();
		ioMap.inout = "mutated";
		console.log(JSON.stringify(binding.getIoMap()));
	`)
	assert.Equal(t, 0, code)
	assert.JSONEq(t, `{"inout":"fd://7","control":"unix:///tmp/control.sock"}`, out.String())
}

func TestBindingGetIoMapEmpty(t *testing.T) {
	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	code := startScript(t, b, `console.log(Object.keys(process._linkedBinding("node_fd_pass").getIoMap()).length)`)
	assert.Equal(t, 0, code)
	assert.Equal(t, "0\n", out.String())
}

func TestBindingCreatePipe(t *testing.T) {
	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	code := startScript(t, b, `
		const fs = require("fs");
		process._linkedBinding("node_fd_pass").createPipe().then(({readable, writable}) => {
			console.log(typeof readable, typeof writable, readable !== writable);
			fs.writeSync(writable, "through the pipe");
			fs.closeSync(writable);
			return fs.read(readable).then(s => { console.log(s); fs.closeSync(readable); });
		});
	`)
	assert.Equal(t, 0, code)
	assert.Equal(t, "number number true\nthrough the pipe\n", out.String())
}

func TestBindingCreatePipeFailure(t *testing.T) {
	var out bytes.Buffer
	b := New(
		WithEmbeddedRuntime(jsrt.WithStdout(&out)),
		WithPipeFunc(func() (int, int, error) { return -1, -1, unix.EMFILE }),
	)
	code := startScript(t, b, `
		process._linkedBinding("node_fd_pass").createPipe().then(
			() => console.log("unexpected"),
			(e) => console.log(typeof e, e)
		);
	`)
	assert.Equal(t, 0, code)
	assert.Equal(t, "string "+unix.EMFILE.Error()+"\n", out.String())
}

func TestFramesRoundTrip(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	host := os.NewFile(uintptr(fds[0]), "host")
	defer host.Close()
	defer unix.Close(fds[1])

	ch := NewChannel(host)
	type request struct {
		Text string `msgpack:"text"`
		N    int    `msgpack:"n"`
	}
	type reply struct {
		Reply string `msgpack:"reply"`
		N     int    `msgpack:"n"`
	}
	require.NoError(t, ch.Send(request{Text: "hi", N: 1}))

	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	require.NoError(t, b.RegisterDescriptor("inout", fds[1]))
	code := startScript(t, b, `
		const frames = require("fdbridge_frames");
		const { inout } = process._linkedBinding("node_fd_pass").getIoMap();
		frames.receive(inout)
			.then(msg => frames.send(inout, {reply: msg.text + "!", n: msg.n + 1}))
			.then(() => console.log("sent"));
	`)
	require.Equal(t, 0, code)
	assert.Equal(t, "sent\n", out.String())

	var got reply
	require.NoError(t, ch.Receive(&got))
	assert.Equal(t, reply{Reply: "hi!", N: 2}, got)
}

func TestFramesReceiveEOF(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[0]))
	defer unix.Close(fds[1])

	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	src := strings.ReplaceAll(`require("fdbridge_frames").receive(FD).then(v => console.log(v === null))`, "FD", strconv.Itoa(fds[1]))
	code := startScript(t, b, src)
	assert.Equal(t, 0, code)
	assert.Equal(t, "true\n", out.String())
}

func TestFramesRejectBadDescriptor(t *testing.T) {
	var out bytes.Buffer
	b := New(WithEmbeddedRuntime(jsrt.WithStdout(&out)))
	code := startScript(t, b, `
		const frames = require("fdbridge_frames");
		for (const bad of ["tcp://1", -1, undefined]) {
			try { frames.receive(bad) } catch (e) { console.log(e instanceof TypeError) }
		}
	`)
	assert.Equal(t, 0, code)
	assert.Equal(t, "true\ntrue\ntrue\n", out.String())
}
