// Command fdbridge hosts an embedded JavaScript runtime with descriptor
// passing and standard stream capture.
//
//	fdbridge [-config fdbridge.toml] [--] script.js [args...]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/richinsley/fdbridge"
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fdbridge: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	fs := flag.NewFlagSet("fdbridge", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, nil
		}
		return 2, err
	}

	cfg := fdbridge.DefaultConfig()
	if *configPath != "" {
		loaded, err := fdbridge.LoadConfig(*configPath)
		if err != nil {
			return 1, err
		}
		cfg = loaded
	}

	// Log through a private copy of stderr so redirected stderr records do not
	// loop back into the capture pipe.
	logFD, err := unix.Dup(2)
	if err != nil {
		return 1, fmt.Errorf("dup stderr: %w", err)
	}
	unix.CloseOnExec(logFD)
	logOut := os.NewFile(uintptr(logFD), "log")
	defer logOut.Close()
	logger := fdbridge.NewLogger(logOut, cfg.Log)

	registry := fdbridge.NewRegistry()
	opts := []fdbridge.Option{
		fdbridge.WithLogger(logger),
		fdbridge.WithRegistry(registry),
	}

	if red := newRedirector(cfg.Redirect, logger); red != nil {
		defer red.Close()
		opts = append(opts, fdbridge.WithStreamCapture(red))
	}

	switch cfg.Runtime.Mode {
	case fdbridge.RuntimeExec:
		er := fdbridge.NewExecRuntime(cfg.Runtime.Path, registry,
			fdbridge.WithExecEnv(cfg.Runtime.Env),
			fdbridge.WithExecLogger(logger.With().Str("component", "exec").Logger()),
		)
		opts = append(opts, fdbridge.WithEntryPoint(er.Main))
	default:
		for k, v := range cfg.Runtime.Env {
			os.Setenv(k, v)
		}
		opts = append(opts, fdbridge.WithEmbeddedRuntime())
	}

	bridge := fdbridge.New(opts...)
	if err := registerDescriptors(bridge, cfg.Descriptors); err != nil {
		return 1, err
	}

	if cfg.Channel.Enabled {
		closeChannel, err := openChannel(bridge, cfg.Channel.Name, logger)
		if err != nil {
			return 1, err
		}
		defer closeChannel()
	}

	runtimeArgs := append(slices.Clone(cfg.Runtime.Args), fs.Args()...)
	return bridge.Start(runtimeArgs)
}

func newRedirector(cfg fdbridge.RedirectConfig, logger zerolog.Logger) *fdbridge.Redirector {
	if !cfg.Enabled {
		return nil
	}
	var streams []fdbridge.Stream
	if cfg.Stdout {
		streams = append(streams, fdbridge.Stdout)
	}
	if cfg.Stderr {
		streams = append(streams, fdbridge.Stderr)
	}
	if len(streams) == 0 {
		return nil
	}
	return fdbridge.NewRedirector(fdbridge.LoggerSink{Logger: logger},
		fdbridge.WithStreams(streams...),
		fdbridge.WithTag(cfg.Tag),
		fdbridge.WithChunkSize(cfg.ChunkSize),
	)
}

// registerDescriptors accepts either a bare descriptor number or a locator
// for each configured name.
func registerDescriptors(bridge *fdbridge.Bridge, descriptors map[string]string) error {
	for name, value := range descriptors {
		var err error
		if fd, convErr := strconv.Atoi(value); convErr == nil {
			err = bridge.RegisterDescriptor(name, fd)
		} else {
			err = bridge.RegisterLocator(name, value)
		}
		if err != nil {
			return fmt.Errorf("descriptor %q: %w", name, err)
		}
	}
	return nil
}
