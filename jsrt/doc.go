/*
Package jsrt is a small Node-flavoured JavaScript runtime built on goja and
the goja_nodejs event loop, require registry and console.

A Runtime exposes Main(argc, argv) with the same calling convention as the
native Node entry point, so a launcher can treat it as an embedded runtime:

	rt := jsrt.New(jsrt.WithExtension("node_fd_pass", initBinding))
	code := rt.Main(int32(len(argv)), argv)

Scripts see a CommonJS-style module scope, console, process (argv, env,
exit, exitCode, _linkedBinding), timers and a minimal "fs" builtin that
works on raw descriptor numbers. Native modules registered with
WithExtension are reachable through process._linkedBinding and require.

Every VM access happens on the goroutine that called Main, which drives the
event loop. Blocking work goes through Runtime.Async, which settles a
promise back on that goroutine through RunOnLoop.
*/
package jsrt
