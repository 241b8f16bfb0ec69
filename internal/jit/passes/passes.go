// Package passes implements the IR optimization passes. All passes
// mutate the unit in place; none allocate new blocks or change the
// block graph.
package passes

import (
	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Passes owns the reusable state of every pass so per-block
// compilation does not reallocate it.
type Passes struct {
	lse LSE
	ra  RA
}

// New returns pass state sized for the backend's register and emitter
// tables.
func New(registers []backend.RegisterDef, emitters []backend.EmitterDef) *Passes {
	p := &Passes{}
	p.ra.init(registers, emitters)
	return p
}

// Run runs the passes over the unit in the canonical order.
func (p *Passes) Run(unit *ir.IR) {
	p.lse.Run(unit)
	Cprop(unit)
	Esimp(unit)
	Dce(unit)
	p.ra.Run(unit)
}
