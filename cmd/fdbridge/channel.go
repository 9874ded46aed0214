package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/richinsley/fdbridge"
)

// openChannel creates a socketpair, registers one end for the runtime under
// name and serves frames on the other. The returned func closes both ends.
func openChannel(bridge *fdbridge.Bridge, name string, logger zerolog.Logger) (func(), error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("channel socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	if err := bridge.RegisterDescriptor(name, fds[1]); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}

	ch := fdbridge.NewChannel(os.NewFile(uintptr(fds[0]), name))
	go serveChannel(ch, logger.With().Str("channel", name).Logger())
	return func() {
		ch.Close()
		unix.Close(fds[1])
	}, nil
}

// serveChannel logs every frame from the runtime and answers "ping" with
// "pong" until the runtime closes its end.
func serveChannel(ch *fdbridge.Channel, logger zerolog.Logger) {
	for {
		var msg any
		if err := ch.Receive(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logger.Warn().Err(err).Msg("channel receive failed")
			}
			return
		}
		logger.Info().Interface("frame", msg).Msg("channel frame")
		if s, ok := msg.(string); ok && s == "ping" {
			if err := ch.Send("pong"); err != nil {
				logger.Warn().Err(err).Msg("channel send failed")
				return
			}
		}
	}
}
