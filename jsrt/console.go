package jsrt

import "io"

// printer routes console output to the runtime's writers.
type printer struct {
	out io.Writer
	err io.Writer
}

func (p printer) Log(s string)   { io.WriteString(p.out, s+"\n") }
func (p printer) Warn(s string)  { io.WriteString(p.err, s+"\n") }
func (p printer) Error(s string) { io.WriteString(p.err, s+"\n") }
