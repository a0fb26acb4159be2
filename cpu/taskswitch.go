// This file is part of x86core.
//
// x86core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x86core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with x86core.  If not, see <https://www.gnu.org/licenses/>.

package cpu

import (
	"github.com/jetsetilly/x86core/curated"
	"github.com/jetsetilly/x86core/faults"
	"github.com/jetsetilly/x86core/segment"
)

// TSS busy state lives in the descriptor's Type field, not as a separate
// CPU-owned bit, so marking a TSS busy/non-busy is always a memory
// write-back (spec.md invariant (d)); markTSSBusy rewrites the GDT
// descriptor's access byte to the busy or available TSS type.
const (
	NotBusyTSS = "cpu: TSS selector %#04x descriptor is not a valid, non-busy TSS"
)

// tss32 holds the 80386 TSS layout this core reads/writes; a 16-bit (286)
// TSS is handled by reading/writing only its narrower fields, selected by
// wide==false in saveStateToTSS/loadStateFromTSS below.
type tss32Offsets struct {
	backLink, esp0, ss0, esp1, ss1, esp2, ss2, cr3 uint32
	eip, eflags                                     uint32
	eax, ecx, edx, ebx, esp, ebp, esi, edi          uint32
	es, cs, ss, ds, fs, gs, ldt                      uint32
}

var tss32 = tss32Offsets{
	backLink: 0x00, esp0: 0x04, ss0: 0x08, esp1: 0x0C, ss1: 0x10,
	esp2: 0x14, ss2: 0x18, cr3: 0x1C, eip: 0x20, eflags: 0x24,
	eax: 0x28, ecx: 0x2C, edx: 0x30, ebx: 0x34, esp: 0x38, ebp: 0x3C,
	esi: 0x40, edi: 0x44, es: 0x48, cs: 0x4C, ss: 0x50, ds: 0x54,
	fs: 0x58, gs: 0x5C, ldt: 0x60,
}

// tss16 mirrors the same fields at their 80286 16-bit-TSS offsets.
var tss16 = tss32Offsets{
	backLink: 0x00, esp0: 0x02, ss0: 0x04, esp1: 0x06, ss1: 0x08,
	esp2: 0x0A, ss2: 0x0C, eip: 0x0E, eflags: 0x10,
	eax: 0x12, ecx: 0x14, edx: 0x16, ebx: 0x18, esp: 0x1A, ebp: 0x1C,
	esi: 0x1E, edi: 0x20, es: 0x22, cs: 0x24, ss: 0x26, ds: 0x28,
	fs: 0x2A, gs: 0x2C, ldt: 0x2A,
}

func (c *CPU) tssLayout() (off tss32Offsets, wide bool) {
	if c.Model.Is32Bit() {
		return tss32, true
	}
	return tss16, false
}

func (c *CPU) tssFieldWidth(wide bool) uint32 {
	if wide {
		return 4
	}
	return 2
}

func (c *CPU) readTSSField(base uint32, off uint32, wide bool) (uint32, error) {
	if wide {
		return c.Mem.ReadDword(base + off)
	}
	v, err := c.Mem.ReadWord(base + off)
	return uint32(v), err
}

func (c *CPU) writeTSSField(base uint32, off uint32, v uint32, wide bool) error {
	if wide {
		return c.Mem.WriteDword(base+off, v)
	}
	return c.Mem.WriteWord(base+off, uint16(v))
}

// tssStackFor reads the CPL-indexed SS:SP pair from the current TSS,
// used for inter-privilege stack switches on far calls/interrupts.
func (c *CPU) tssStackFor(cpl uint8) (sp uint32, ss uint16, err error) {
	off, wide := c.tssLayout()
	var spOff, ssOff uint32
	switch cpl {
	case 0:
		spOff, ssOff = off.esp0, off.ss0
	case 1:
		spOff, ssOff = off.esp1, off.ss1
	default:
		spOff, ssOff = off.esp2, off.ss2
	}
	spv, err := c.readTSSField(c.TR.Base, spOff, wide)
	if err != nil {
		return 0, 0, err
	}
	ssv, err := c.readTSSField(c.TR.Base, ssOff, wide)
	if err != nil {
		return 0, 0, err
	}
	return spv, uint16(ssv), nil
}

// saveStateToTSS writes the running CPU's state into the current TSS,
// step 2 of spec.md section 4.7's algorithm.
func (c *CPU) saveStateToTSS() error {
	off, wide := c.tssLayout()
	base := c.TR.Base

	fields := []struct {
		offset uint32
		value  uint32
	}{
		{off.eip, c.IP},
		{off.eflags, c.Flags.PS(c.Model)},
		{off.eax, c.Regs.AX.DWord()}, {off.ecx, c.Regs.CX.DWord()},
		{off.edx, c.Regs.DX.DWord()}, {off.ebx, c.Regs.BX.DWord()},
		{off.esp, c.currentSP()}, {off.ebp, c.Regs.BP.DWord()},
		{off.esi, c.Regs.SI.DWord()}, {off.edi, c.Regs.DI.DWord()},
		{off.es, uint32(c.ES.Selector)}, {off.cs, uint32(c.CS.Selector)},
		{off.ss, uint32(c.SS.Selector)}, {off.ds, uint32(c.DS.Selector)},
		{off.ldt, uint32(c.LDTSel)},
	}
	if wide {
		fields = append(fields,
			struct{ offset, value uint32 }{off.fs, uint32(c.FS.Selector)},
			struct{ offset, value uint32 }{off.gs, uint32(c.GS.Selector)},
			struct{ offset, value uint32 }{off.cr3, c.CR3},
		)
	}
	for _, f := range fields {
		if err := c.writeTSSField(base, f.offset, f.value, wide); err != nil {
			return err
		}
	}
	return nil
}

// loadStateFromTSS is the inverse of saveStateToTSS, step 5 of spec.md
// section 4.7's algorithm (segment selector reloads happen separately in
// switchTask, since each may itself fault and must be attributed to the
// new task).
func (c *CPU) loadStateFromTSS(base uint32) (selectors struct{ es, cs, ss, ds, fs, gs, ldt uint16 }, err error) {
	off, wide := c.tssLayout()

	c.IP, err = c.readTSSField(base, off.eip, wide)
	if err != nil {
		return selectors, err
	}
	ps, err := c.readTSSField(base, off.eflags, wide)
	if err != nil {
		return selectors, err
	}
	c.Flags.SetPS(ps)

	regs := []struct {
		offset uint32
		reg    *GPRegister
	}{
		{off.eax, c.Regs.AX}, {off.ecx, c.Regs.CX}, {off.edx, c.Regs.DX},
		{off.ebx, c.Regs.BX}, {off.ebp, c.Regs.BP}, {off.esi, c.Regs.SI},
		{off.edi, c.Regs.DI},
	}
	for _, r := range regs {
		v, err := c.readTSSField(base, r.offset, wide)
		if err != nil {
			return selectors, err
		}
		if wide {
			r.reg.SetDWord(v)
		} else {
			r.reg.SetWord(uint16(v))
		}
	}
	sp, err := c.readTSSField(base, off.esp, wide)
	if err != nil {
		return selectors, err
	}
	c.setSP(sp)

	sels := []struct {
		offset uint32
		dst    *uint16
	}{
		{off.es, &selectors.es}, {off.cs, &selectors.cs}, {off.ss, &selectors.ss},
		{off.ds, &selectors.ds}, {off.ldt, &selectors.ldt},
	}
	if wide {
		sels = append(sels,
			struct {
				offset uint32
				dst    *uint16
			}{off.fs, &selectors.fs},
			struct {
				offset uint32
				dst    *uint16
			}{off.gs, &selectors.gs},
		)
		c.CR3, err = c.readTSSField(base, off.cr3, wide)
		if err != nil {
			return selectors, err
		}
	}
	for _, s := range sels {
		v, err := c.readTSSField(base, s.offset, wide)
		if err != nil {
			return selectors, err
		}
		*s.dst = uint16(v)
	}
	return selectors, nil
}

// switchTask implements spec.md section 4.7's full algorithm. viaCallOrInterrupt
// selects whether the new task's NT bit is set and its back-link written
// (CALL/interrupt-gate switches) or not (JMP/IRET switches).
func (c *CPU) switchTask(newTSSSel segment.Selector, viaCallOrInterrupt bool) error {
	newDesc, err := c.Loader.Fetch(newTSSSel)
	if err != nil {
		return err
	}
	if !isAvailableTSS(newDesc) {
		return curated.Errorf(NotBusyTSS, uint16(newTSSSel))
	}
	if !newDesc.Present {
		return c.fault(faults.InvalidTSS, false, uint16(newTSSSel))
	}

	oldTSSSel := c.TRSel

	if err := c.saveStateToTSS(); err != nil {
		return err
	}
	if err := c.markTSSBusy(oldTSSSel, false); err != nil {
		return err
	}

	if err := c.markTSSBusy(newTSSSel, true); err != nil {
		return err
	}
	c.TRSel = newTSSSel
	c.TR = segment.Table{Base: newDesc.Base, Limit: uint16(newDesc.Limit)}

	sels, err := c.loadStateFromTSS(newDesc.Base)
	if err != nil {
		return err
	}

	ldt, err := c.Loader.LoadLDT(segment.Selector(sels.ldt))
	if err != nil {
		return err
	}
	c.LDTSel = segment.Selector(sels.ldt)
	c.LDT = ldt

	if viaCallOrInterrupt {
		c.Flags.SetNT(true)
		off, wide := c.tssLayout()
		if err := c.writeTSSField(newDesc.Base, off.backLink, uint32(oldTSSSel), wide); err != nil {
			return err
		}
	} else {
		c.Flags.SetNT(false)
	}

	for _, pair := range []struct {
		shadow *segment.Shadow
		sel    uint16
	}{
		{&c.ES, sels.es}, {&c.DS, sels.ds}, {&c.FS, sels.fs}, {&c.GS, sels.gs},
	} {
		sh, err := c.Loader.LoadData(segment.Selector(pair.sel), c.CPL, false)
		if err != nil {
			return err
		}
		*pair.shadow = sh
	}

	newCS, err := c.Loader.LoadCode(segment.Selector(sels.cs), 0, true)
	if err != nil {
		return err
	}
	c.CS = newCS
	c.CPL = newCS.DPL

	newSS, err := c.Loader.LoadData(segment.Selector(sels.ss), c.CPL, true)
	if err != nil {
		return err
	}
	c.SS = newSS

	c.Escalation.Clear()
	return nil
}

func isAvailableTSS(d segment.Descriptor) bool {
	switch d.SystemType() {
	case segment.TypeTSS16Available, segment.TypeTSS32Available:
		return true
	default:
		return false
	}
}

func (c *CPU) markTSSBusy(sel segment.Selector, busy bool) error {
	d, err := c.GDT.Fetch(c.Mem, sel)
	if err != nil {
		return err
	}
	newType := d.Type
	switch {
	case busy && (d.SystemType() == segment.TypeTSS16Available):
		newType = uint8(segment.TypeTSS16Busy)
	case busy && (d.SystemType() == segment.TypeTSS32Available):
		newType = uint8(segment.TypeTSS32Busy)
	case !busy && (d.SystemType() == segment.TypeTSS16Busy):
		newType = uint8(segment.TypeTSS16Available)
	case !busy && (d.SystemType() == segment.TypeTSS32Busy):
		newType = uint8(segment.TypeTSS32Available)
	}

	offset := uint32(sel.Index())*8 + 5
	access, err := c.Mem.ReadByte(c.GDT.Base + offset)
	if err != nil {
		return err
	}
	access = (access &^ 0x0F) | (newType & 0x0F)
	return c.Mem.WriteByte(c.GDT.Base+offset, access)
}

// switchTaskViaGate dispatches a task switch whose target is a task
// gate's referenced TSS selector (interrupt-through-task-gate, or a
// far call/jmp to a task gate).
func (c *CPU) switchTaskViaGate(gate segment.Descriptor, viaInterrupt bool) error {
	tssSel := segment.Selector(gateOffsetSelector(gate))
	return c.switchTask(tssSel, viaInterrupt)
}

// switchTaskViaIret implements IRET's NT-set path: switch back to the
// task named by the current TSS's back-link.
func (c *CPU) switchTaskViaIret() error {
	off, wide := c.tssLayout()
	backLink, err := c.readTSSField(c.TR.Base, off.backLink, wide)
	if err != nil {
		return err
	}
	return c.switchTask(segment.Selector(uint16(backLink)), false)
}
