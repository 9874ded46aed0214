package fdbridge

// ExitAlreadyStarted is the code Start returns when the runtime was already
// started once in this bridge.
const ExitAlreadyStarted = 1

// Started reports whether Start has ever been called on this bridge.
func (b *Bridge) Started() bool {
	return b.started.Load()
}

// Running reports whether the runtime entry point is currently executing.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Start launches the embedded runtime with args and blocks until its entry
// point returns, handing back the runtime's exit code unchanged.
//
// A bridge starts at most once. Every later call, including one made after
// the runtime has exited, logs an error and returns ExitAlreadyStarted with
// ErrAlreadyStarted without doing any work.
//
// Stream capture is installed before the runtime runs. A capture failure is
// logged and startup continues without it.
func (b *Bridge) Start(args []string) (int, error) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Error().Msg("embedded runtime already started")
		return ExitAlreadyStarted, ErrAlreadyStarted
	}

	if b.entry == nil {
		b.logger.Error().Msg("no entry point configured")
		return 1, ErrNoEntryPoint
	}

	if b.capture != nil {
		if err := b.capture.Run(); err != nil {
			b.logger.Warn().Err(err).Msg("stream redirection incomplete")
		}
	}

	buf, err := MarshalArguments(ProgramName, args)
	if err != nil {
		b.logger.Error().Err(err).Int("args", len(args)).Msg("cannot marshal runtime arguments")
		return 1, err
	}

	b.logger.Info().Int32("argc", buf.Argc()).Msg("starting embedded runtime")
	code := b.run(buf)
	b.logger.Info().Int("exit", code).Msg("embedded runtime finished")
	return code, nil
}

func (b *Bridge) run(buf *ArgumentBuffer) int {
	b.running.Store(true)
	defer b.running.Store(false)
	return b.entry(buf.Argc(), buf.Argv())
}
