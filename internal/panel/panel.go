// ============================================================================
// TheSquid Telemetry Panel
// ============================================================================
//
// Package: internal/panel
// File: panel.go
// Purpose: Fixed-layout terminal panel showing the dispatcher's state
//
// Layout, top to bottom:
//   - one counter line: running / pending / workers-available
//   - the scrolling history ring (sequence-stamped event lines)
//   - a tasks header plus up to 32 task lines, running tasks first
//
// Strictly an operator aid. With the panel disabled the squad holds a nil
// *Panel and skips the refresh call entirely.
//
// ============================================================================

// Package panel renders the squad telemetry display
package panel

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// MaxTaskLines caps the task listing
const MaxTaskLines = 32

// Status is one snapshot of the dispatcher state
type Status struct {
	Running   int      // Tasks in flight
	Pending   int      // Tasks waiting
	Available int      // Idle workers
	History   []string // Sequence-stamped history lines, oldest first
	Tasks     []string // Task labels, running first then pending
}

// Panel is a fixed-layout terminal display
type Panel struct {
	out    io.Writer
	header *color.Color
	event  *color.Color
}

// New creates a panel writing to stdout
func New() *Panel {
	return &Panel{
		out:    os.Stdout,
		header: color.New(color.FgCyan, color.Bold),
		event:  color.New(color.FgYellow),
	}
}

// Refresh redraws the panel with the given snapshot
func (p *Panel) Refresh(st Status) {
	// Home + clear-to-end keeps the panel in place without flicker
	fmt.Fprint(p.out, "\033[H\033[J")

	p.header.Fprintf(p.out, "run:%d queue:%d avail:%d\n", st.Running, st.Pending, st.Available)

	for _, line := range st.History {
		p.event.Fprintln(p.out, line)
	}

	p.header.Fprintln(p.out, "--- tasks ---")
	n := len(st.Tasks)
	if n > MaxTaskLines {
		n = MaxTaskLines
	}
	for _, line := range st.Tasks[:n] {
		fmt.Fprintln(p.out, line)
	}
}
