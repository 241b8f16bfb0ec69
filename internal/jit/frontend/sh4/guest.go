// Package sh4 is the frontend for the superscalar guest CPU: block
// analysis and translation of its 16-bit instruction stream to IR,
// with an interpreter fallback per opcode.
package sh4

import "github.com/kamui-emu/kamui/internal/jit/guest"

// Guest extends the generic adapter with the hooks only this guest
// has.
type Guest struct {
	*guest.Guest

	// SRUpdated runs after emitted code or a fallback replaces the
	// status register; the old value is passed so bank switches can be
	// derived.
	SRUpdated func(old uint32)

	// FPSCRUpdated runs after the FPU status register is replaced.
	FPSCRUpdated func(old uint32)

	// Sleep suspends the guest until the next interrupt.
	Sleep func()

	// LoadTLB services an explicit TLB load.
	LoadTLB func()

	// Prefetch services the pref instruction's store-queue flush for
	// addresses in the store-queue window.
	Prefetch func(addr uint32)

	// Native entry points for the hooks above, for call ops emitted
	// inline.
	SRUpdatedEntry    uintptr
	FPSCRUpdatedEntry uintptr
}

// explodeSR unpacks the sr value into the context's split fields. The
// t, s, m and q bits are kept in their own words so emitted code can
// test them without masking.
func (g *Guest) explodeSR(v uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxSR, v)
	c.setU32(CtxSRT, v&TMask)
	c.setU32(CtxSRS, (v&SMask)>>SBit)
	c.setU32(CtxSRM, (v&MMask)>>MBit)
	q := (v & QMask) >> QBit
	m := (v & MMask) >> MBit
	var qm uint32
	if q == m {
		qm = 1 << 31
	}
	c.setU32(CtxSRQM, qm)
}

// implodeSR packs the split fields back into a full sr value.
func (g *Guest) implodeSR() uint32 {
	c := ctx(g.Ctx)
	sr := c.u32(CtxSR) &^ (MMask | QMask | SMask | TMask)
	sr |= c.u32(CtxSRT)
	sr |= c.u32(CtxSRS) << SBit
	sr |= c.u32(CtxSRM) << MBit
	if c.u32(CtxSRQM)>>31 == c.u32(CtxSRM) {
		sr |= 1 << QBit
	}
	return sr
}

// storeSR replaces sr, notifying the guest so it can swap register
// banks and reevaluate interrupts.
func (g *Guest) storeSR(v uint32) {
	old := g.implodeSR()
	g.explodeSR(v & SRMask)
	if g.SRUpdated != nil {
		g.SRUpdated(old)
	}
}

// storeFPSCR replaces fpscr, notifying the guest so it can swap FPU
// banks.
func (g *Guest) storeFPSCR(v uint32) {
	c := ctx(g.Ctx)
	old := c.u32(CtxFPSCR)
	c.setU32(CtxFPSCR, v&FPSCRMask)
	if g.FPSCRUpdated != nil {
		g.FPSCRUpdated(old)
	}
}
