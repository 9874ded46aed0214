// Package fdbridge hosts an embedded JavaScript runtime inside a native
// process and lets the host hand it open file descriptors.
//
// The package has three parts that share one Bridge value:
//
//  1. Launcher: Start marshals the arguments into a contiguous
//     NUL-terminated argv with "node" as argv[0], installs stream capture and
//     calls the runtime entry point. A bridge starts at most once.
//
//  2. Descriptor registry: the host registers named descriptors
//     ("fd://<n>") or arbitrary locators. The runtime reads a snapshot of the
//     registry through the node_fd_pass binding.
//
//  3. Stream redirection: a Redirector swaps descriptors 1 and 2 for pipes
//     and relays every chunk written to them into a Sink, usually a zerolog
//     logger.
//
// # Embedded Runtime
//
// WithEmbeddedRuntime runs scripts in the goja-based runtime from the jsrt
// package, with the bridge's modules linked in:
//
//	bridge := fdbridge.New(fdbridge.WithEmbeddedRuntime())
//	bridge.RegisterDescriptor("inout", fd)
//	code, err := bridge.Start([]string{"app.js"})
//
// Scripts then reach the registry and fresh pipes:
//
//	const binding = process._linkedBinding("node_fd_pass");
//	const { inout } = binding.getIoMap();   // "fd://7"
//	binding.createPipe().then(({ readable, writable }) => { ... });
//
// The fdbridge_frames module exchanges length-prefixed MessagePack frames
// with a host Channel on the other end of a socketpair:
//
//	const frames = require("fdbridge_frames");
//	frames.send(inout, "ping");
//	frames.receive(inout).then(reply => console.log(reply));
//
// # External Runtime
//
// ExecRuntime is an EntryPoint that runs an external binary instead. Every
// fd:// entry is duplicated into the child as descriptor 3 and up, and the
// rewritten map is passed in the FDBRIDGE_IO_MAP environment variable:
//
//	er := fdbridge.NewExecRuntime("/usr/bin/node", registry)
//	bridge := fdbridge.New(fdbridge.WithRegistry(registry), fdbridge.WithEntryPoint(er.Main))
//
// # Stream Capture
//
// Stream capture is installed by Start before the runtime runs:
//
//	red := fdbridge.NewRedirector(fdbridge.LoggerSink{Logger: logger})
//	bridge := fdbridge.New(fdbridge.WithStreamCapture(red), ...)
//
// Once stderr is captured, the host logger must write to a duplicate of the
// original stderr. Otherwise its records come back through the pipe.
//
// # Configuration
//
// The fdbridge command reads a TOML file (see LoadConfig) and honours the
// FDBRIDGE_LOG_* environment variables for logging.
package fdbridge
