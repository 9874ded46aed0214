package jsrt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const evalName = "[eval]"

type launchArgs struct {
	argv0    string
	execArgv []string
	eval     string
	hasEval  bool
	script   string
	args     []string
}

// parseArgs splits argv the way Node does: options up to the first
// non-option (or "--") belong to the runtime, the rest to the script.
func parseArgs(argv []string) (*launchArgs, error) {
	la := &launchArgs{argv0: programName(argv), execArgv: []string{}}

	i := 1
options:
	for i < len(argv) {
		arg := argv[i]
		switch {
		case arg == "--":
			i++
			break options
		case arg == "-e" || arg == "--eval":
			if i+1 >= len(argv) {
				return nil, errors.New(arg + " requires an argument")
			}
			la.eval, la.hasEval = argv[i+1], true
			la.execArgv = append(la.execArgv, arg, argv[i+1])
			i += 2
		case strings.HasPrefix(arg, "--eval="):
			la.eval, la.hasEval = strings.TrimPrefix(arg, "--eval="), true
			la.execArgv = append(la.execArgv, arg)
			i++
		case len(arg) > 1 && arg[0] == '-':
			la.execArgv = append(la.execArgv, arg)
			i++
		default:
			break options
		}
	}

	rest := argv[min(i, len(argv)):]
	if la.hasEval {
		la.args = rest
		return la, nil
	}
	if len(rest) == 0 {
		return nil, errors.New("no script specified")
	}
	la.script, la.args = rest[0], rest[1:]
	return la, nil
}

// processArgv is process.argv: the program, the absolute script path unless
// evaluating, then the script arguments.
func (la *launchArgs) processArgv() []string {
	out := []string{la.argv0}
	if !la.hasEval {
		out = append(out, la.scriptPath())
	}
	return append(out, la.args...)
}

func (la *launchArgs) scriptPath() string {
	if abs, err := filepath.Abs(la.script); err == nil {
		return abs
	}
	return la.script
}

func (la *launchArgs) source() (src, name string, err error) {
	if la.hasEval {
		return la.eval, evalName, nil
	}
	data, err := os.ReadFile(la.script)
	if err != nil {
		return "", "", err
	}
	return string(data), la.scriptPath(), nil
}

func programName(argv []string) string {
	if len(argv) == 0 || argv[0] == "" {
		return "node"
	}
	return argv[0]
}
