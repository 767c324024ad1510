package driver

import (
	"fmt"
	"io"

	"tickstep/internal/machine"
	"tickstep/internal/static"
	"tickstep/internal/trace"
)

// RunBatch drives the stepper to a fixed point with no terminal UI at
// all, printing one line per tick, mirroring the reference
// implementation's unconditional tick-until-fixed-point loop for
// piped/CI use. It stops and reports the error if a tick returns
// absent, rather than panicking the way the reference's .expect() does.
func RunBatch(w io.Writer, st *static.Static, recorder *trace.Recorder) error {
	s := machine.InitState(st)
	for !machine.IsFixedPoint(s, st) {
		next, err := machine.Tick(s, st)
		if err != nil {
			return err
		}
		s = next
		fmt.Fprintf(w, "%d: %d store slots, stack depth %d\n", s.Lineno, len(s.Store), len(s.Stack))
		if recorder != nil {
			if err := recorder.Record(s.Lineno, len(s.Store), len(s.Stack)); err != nil {
				return err
			}
		}
	}
	return nil
}
