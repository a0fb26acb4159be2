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
	"testing"

	"github.com/jetsetilly/x86core/curated"
	"github.com/jetsetilly/x86core/segment"
)

// writeGDTDescriptor writes one 8-byte descriptor at gdtBase+index*8, in the
// same raw layout segment.DecodeDescriptor expects.
func writeGDTDescriptor(t *testing.T, c *CPU, gdtBase uint32, index uint16, limit uint32, base uint32, access uint8) {
	t.Helper()
	off := gdtBase + uint32(index)*8
	raw := [8]byte{
		byte(limit), byte(limit >> 8),
		byte(base), byte(base >> 8), byte(base >> 16),
		access,
		byte(limit >> 16 & 0x0F),
		byte(base >> 24),
	}
	for i, b := range raw {
		if err := c.Mem.WriteByte(off+uint32(i), b); err != nil {
			t.Fatalf("WriteByte: %v", err)
		}
	}
}

func codeAccess(dpl uint8) uint8 { return 0x80 | (dpl << 5) | 0x18 } // present, S, executable+readable
func dataAccess(dpl uint8) uint8 { return 0x80 | (dpl << 5) | 0x12 } // present, S, writable
func tssAccess(dpl uint8, busy bool) uint8 {
	t := uint8(segment.TypeTSS16Available)
	if busy {
		t = uint8(segment.TypeTSS16Busy)
	}
	return 0x80 | (dpl << 5) | t
}

func newProtectedCPU(t *testing.T) *CPU {
	t.Helper()
	c := newStackCPU(t, I80286, false)
	c.SetProtMode(true)
	c.GDT = segment.Table{Base: 0, Limit: 0xFFFF}
	c.Loader.GDT = c.GDT
	return c
}

func TestTssLayoutSelectsWidthByModel(t *testing.T) {
	c16 := newStackCPU(t, I80286, false)
	if off, wide := c16.tssLayout(); wide || off.ldt != tss16.ldt {
		t.Errorf("I80286 tssLayout: wide=%v, want narrow (16-bit) layout", wide)
	}

	c32 := newStackCPU(t, I80386, true)
	if off, wide := c32.tssLayout(); !wide || off.cr3 != tss32.cr3 {
		t.Errorf("I80386 tssLayout: wide=%v, want wide (32-bit) layout", wide)
	}
}

// TestSaveLoadStateToFromTSSRoundTrip16 round-trips a 16-bit TSS: state
// saved from one CPU is loaded back and matches.
func TestSaveLoadStateToFromTSSRoundTrip16(t *testing.T) {
	c := newStackCPU(t, I80286, false)
	const tssBase = 0x4000
	c.TR = segment.Table{Base: tssBase, Limit: 0x2F}

	c.IP = 0x1234
	c.Flags.SetCF(true)
	c.Regs.AX.SetWord(0x1111)
	c.Regs.CX.SetWord(0x2222)
	c.Regs.DX.SetWord(0x3333)
	c.Regs.BX.SetWord(0x4444)
	c.Regs.BP.SetWord(0x5555)
	c.Regs.SI.SetWord(0x6666)
	c.Regs.DI.SetWord(0x7777)
	c.setSP(0x8888)
	c.ES = segment.RealMode(0x100)
	c.CS = segment.RealMode(0x200)
	c.SS = segment.RealMode(0x300)
	c.DS = segment.RealMode(0x400)
	c.LDTSel = segment.Selector(0x08)

	if err := c.saveStateToTSS(); err != nil {
		t.Fatalf("saveStateToTSS: %v", err)
	}

	other := newStackCPU(t, I80286, false)
	other.Mem = c.Mem
	sels, err := other.loadStateFromTSS(tssBase)
	if err != nil {
		t.Fatalf("loadStateFromTSS: %v", err)
	}

	if other.IP != 0x1234 {
		t.Errorf("IP = %#x, want 0x1234", other.IP)
	}
	if !other.Flags.CF() {
		t.Errorf("CF not restored")
	}
	if other.Regs.AX.Word() != 0x1111 || other.Regs.CX.Word() != 0x2222 ||
		other.Regs.DX.Word() != 0x3333 || other.Regs.BX.Word() != 0x4444 {
		t.Errorf("general registers not restored correctly")
	}
	if other.Regs.BP.Word() != 0x5555 || other.Regs.SI.Word() != 0x6666 || other.Regs.DI.Word() != 0x7777 {
		t.Errorf("BP/SI/DI not restored correctly")
	}
	if other.currentSP() != 0x8888 {
		t.Errorf("SP = %#x, want 0x8888", other.currentSP())
	}
	if sels.es != 0x100 || sels.cs != 0x200 || sels.ss != 0x300 || sels.ds != 0x400 || sels.ldt != 0x08 {
		t.Errorf("selectors = %+v, want es/cs/ss/ds/ldt = 100/200/300/400/08", sels)
	}
}

// TestSaveLoadStateToFromTSSRoundTrip32 checks the 32-bit TSS layout, which
// additionally carries FS, GS and CR3.
func TestSaveLoadStateToFromTSSRoundTrip32(t *testing.T) {
	c := newStackCPU(t, I80386, true)
	const tssBase = 0x5000
	c.TR = segment.Table{Base: tssBase, Limit: 0x67}

	c.FS = segment.RealMode(0x500)
	c.GS = segment.RealMode(0x600)
	c.CR3 = 0xDEADBEEF

	if err := c.saveStateToTSS(); err != nil {
		t.Fatalf("saveStateToTSS: %v", err)
	}

	other := newStackCPU(t, I80386, true)
	other.Mem = c.Mem
	sels, err := other.loadStateFromTSS(tssBase)
	if err != nil {
		t.Fatalf("loadStateFromTSS: %v", err)
	}
	if sels.fs != 0x500 || sels.gs != 0x600 {
		t.Errorf("FS/GS = %#04x/%#04x, want 500/600", sels.fs, sels.gs)
	}
	if other.CR3 != 0xDEADBEEF {
		t.Errorf("CR3 = %#x, want 0xdeadbeef", other.CR3)
	}
}

func TestTssStackForSelectsCPLIndexedFields(t *testing.T) {
	c := newStackCPU(t, I80286, false)
	const tssBase = 0x6000
	c.TR = segment.Table{Base: tssBase, Limit: 0x2F}

	off, wide := c.tssLayout()
	c.writeTSSField(tssBase, off.esp0, 0x1000, wide)
	c.writeTSSField(tssBase, off.ss0, 0x0A, wide)
	c.writeTSSField(tssBase, off.esp1, 0x2000, wide)
	c.writeTSSField(tssBase, off.ss1, 0x1A, wide)
	c.writeTSSField(tssBase, off.esp2, 0x3000, wide)
	c.writeTSSField(tssBase, off.ss2, 0x2A, wide)

	sp, ss, err := c.tssStackFor(0)
	if err != nil || sp != 0x1000 || ss != 0x0A {
		t.Errorf("tssStackFor(0) = %#x/%#04x, %v, want 1000/000a", sp, ss, err)
	}
	sp, ss, err = c.tssStackFor(1)
	if err != nil || sp != 0x2000 || ss != 0x1A {
		t.Errorf("tssStackFor(1) = %#x/%#04x, %v, want 2000/001a", sp, ss, err)
	}
	sp, ss, err = c.tssStackFor(2)
	if err != nil || sp != 0x3000 || ss != 0x2A {
		t.Errorf("tssStackFor(2) = %#x/%#04x, %v, want 3000/002a", sp, ss, err)
	}
}

func TestIsAvailableTSS(t *testing.T) {
	avail := segment.Descriptor{Type: uint8(segment.TypeTSS16Available)}
	busy := segment.Descriptor{Type: uint8(segment.TypeTSS16Busy)}
	code := segment.Descriptor{Type: 0xA, CodeOrData: true}

	if !isAvailableTSS(avail) {
		t.Errorf("TypeTSS16Available reported unavailable")
	}
	if isAvailableTSS(busy) {
		t.Errorf("TypeTSS16Busy reported available")
	}
	if isAvailableTSS(code) {
		t.Errorf("code descriptor reported as an available TSS")
	}
}

func TestMarkTSSBusyTogglesType(t *testing.T) {
	c := newProtectedCPU(t)
	const sel = segment.Selector(0x08) // GDT index 1
	writeGDTDescriptor(t, c, 0, 1, 0x2F, 0x4000, tssAccess(0, false))

	if err := c.markTSSBusy(sel, true); err != nil {
		t.Fatalf("markTSSBusy(true): %v", err)
	}
	d, err := c.GDT.Fetch(c.Mem, sel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.SystemType() != segment.TypeTSS16Busy {
		t.Errorf("type after markTSSBusy(true) = %#x, want TypeTSS16Busy", d.Type)
	}

	if err := c.markTSSBusy(sel, false); err != nil {
		t.Fatalf("markTSSBusy(false): %v", err)
	}
	d, err = c.GDT.Fetch(c.Mem, sel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.SystemType() != segment.TypeTSS16Available {
		t.Errorf("type after markTSSBusy(false) = %#x, want TypeTSS16Available", d.Type)
	}
}

// TestSwitchTaskJmpUpdatesStateAndSegments drives the full switchTask
// algorithm through a JMP-style switch (viaCallOrInterrupt=false), the way
// a far JMP to a TSS selector or task gate uses it.
func TestSwitchTaskJmpUpdatesStateAndSegments(t *testing.T) {
	c := newProtectedCPU(t)

	const (
		oldTSSSel = segment.Selector(0x08) // GDT index 1
		newTSSSel = segment.Selector(0x10) // GDT index 2
		codeSel   = segment.Selector(0x18) // GDT index 3
		stackSel  = segment.Selector(0x20) // GDT index 4

		oldTSSBase = 0x1000
		newTSSBase = 0x1100
	)

	writeGDTDescriptor(t, c, 0, 1, 0x2F, oldTSSBase, tssAccess(0, true))
	writeGDTDescriptor(t, c, 0, 2, 0x2F, newTSSBase, tssAccess(0, false))
	writeGDTDescriptor(t, c, 0, 3, 0xFFFF, 0x2000, codeAccess(0))
	writeGDTDescriptor(t, c, 0, 4, 0xFFFF, 0x3000, dataAccess(0))

	c.TRSel = oldTSSSel
	c.TR = segment.Table{Base: oldTSSBase, Limit: 0x2F}
	c.IP = 0x0999
	c.Regs.AX.SetWord(0xAAAA)

	off, wide := c.tssLayout()
	c.writeTSSField(newTSSBase, off.eip, 0x0050, wide)
	c.writeTSSField(newTSSBase, off.esp, 0x0080, wide)
	c.writeTSSField(newTSSBase, off.eax, 0xBBBB, wide)
	c.writeTSSField(newTSSBase, off.cs, uint32(codeSel), wide)
	c.writeTSSField(newTSSBase, off.ss, uint32(stackSel), wide)

	if err := c.switchTask(newTSSSel, false); err != nil {
		t.Fatalf("switchTask: %v", err)
	}

	if c.TRSel != newTSSSel || c.TR.Base != newTSSBase {
		t.Errorf("TR = %#04x/%#x, want %#04x/%#x", uint16(c.TRSel), c.TR.Base, uint16(newTSSSel), uint32(newTSSBase))
	}
	if c.IP != 0x50 {
		t.Errorf("IP = %#x, want 0x50", c.IP)
	}
	if c.Regs.AX.Word() != 0xBBBB {
		t.Errorf("AX = %#04x, want 0xbbbb", c.Regs.AX.Word())
	}
	if c.CS.Selector != codeSel || c.CS.Base != 0x2000 {
		t.Errorf("CS = %#04x/%#x, want %#04x/0x2000", uint16(c.CS.Selector), c.CS.Base, uint16(codeSel))
	}
	if c.SS.Selector != stackSel || c.SS.Base != 0x3000 {
		t.Errorf("SS = %#04x/%#x, want %#04x/0x3000", uint16(c.SS.Selector), c.SS.Base, uint16(stackSel))
	}
	if c.CPL != 0 {
		t.Errorf("CPL = %d, want 0", c.CPL)
	}
	if c.Flags.NT() {
		t.Errorf("NT set after a JMP-style switch, want clear")
	}

	oldDesc, err := c.GDT.Fetch(c.Mem, oldTSSSel)
	if err != nil {
		t.Fatalf("Fetch old TSS descriptor: %v", err)
	}
	if oldDesc.SystemType() != segment.TypeTSS16Available {
		t.Errorf("old TSS type = %#x, want TypeTSS16Available (freed)", oldDesc.Type)
	}
	newDesc, err := c.GDT.Fetch(c.Mem, newTSSSel)
	if err != nil {
		t.Fatalf("Fetch new TSS descriptor: %v", err)
	}
	if newDesc.SystemType() != segment.TypeTSS16Busy {
		t.Errorf("new TSS type = %#x, want TypeTSS16Busy (claimed)", newDesc.Type)
	}

	savedIP, err := c.readTSSField(oldTSSBase, off.eip, wide)
	if err != nil {
		t.Fatalf("readTSSField: %v", err)
	}
	if savedIP != 0x0999 {
		t.Errorf("old TSS saved EIP = %#x, want 0x999", savedIP)
	}
}

// TestSwitchTaskViaCallSetsNTAndBackLink checks the CALL/interrupt-gate
// path additionally sets NT and writes the outgoing task's selector into
// the new TSS's back-link field.
func TestSwitchTaskViaCallSetsNTAndBackLink(t *testing.T) {
	c := newProtectedCPU(t)

	const (
		oldTSSSel = segment.Selector(0x08)
		newTSSSel = segment.Selector(0x10)
		codeSel   = segment.Selector(0x18)
		stackSel  = segment.Selector(0x20)

		oldTSSBase = 0x1000
		newTSSBase = 0x1100
	)

	writeGDTDescriptor(t, c, 0, 1, 0x2F, oldTSSBase, tssAccess(0, true))
	writeGDTDescriptor(t, c, 0, 2, 0x2F, newTSSBase, tssAccess(0, false))
	writeGDTDescriptor(t, c, 0, 3, 0xFFFF, 0x2000, codeAccess(0))
	writeGDTDescriptor(t, c, 0, 4, 0xFFFF, 0x3000, dataAccess(0))

	c.TRSel = oldTSSSel
	c.TR = segment.Table{Base: oldTSSBase, Limit: 0x2F}

	off, wide := c.tssLayout()
	c.writeTSSField(newTSSBase, off.cs, uint32(codeSel), wide)
	c.writeTSSField(newTSSBase, off.ss, uint32(stackSel), wide)

	if err := c.switchTask(newTSSSel, true); err != nil {
		t.Fatalf("switchTask: %v", err)
	}

	if !c.Flags.NT() {
		t.Errorf("NT clear after a CALL-style switch, want set")
	}
	backLink, err := c.readTSSField(newTSSBase, off.backLink, wide)
	if err != nil {
		t.Fatalf("readTSSField: %v", err)
	}
	if uint16(backLink) != uint16(oldTSSSel) {
		t.Errorf("back-link = %#04x, want %#04x", uint16(backLink), uint16(oldTSSSel))
	}
}

// TestSwitchTaskRejectsBusyTSS checks that targeting an already-busy TSS
// (rather than an available one) is rejected before any state is touched.
func TestSwitchTaskRejectsBusyTSS(t *testing.T) {
	c := newProtectedCPU(t)
	const newTSSSel = segment.Selector(0x10)
	writeGDTDescriptor(t, c, 0, 2, 0x2F, 0x1100, tssAccess(0, true))

	err := c.switchTask(newTSSSel, false)
	if err == nil {
		t.Fatalf("switchTask on a busy TSS selector succeeded, want an error")
	}
	if !curated.Is(err, NotBusyTSS) {
		t.Errorf("error = %v, want NotBusyTSS", err)
	}
}

// TestSwitchTaskViaIretFollowsBackLink checks the IRET/NT-set path pulls
// the target TSS selector from the current task's own back-link field
// rather than from an instruction operand.
func TestSwitchTaskViaIretFollowsBackLink(t *testing.T) {
	c := newProtectedCPU(t)

	const (
		currentTSSSel = segment.Selector(0x08)
		targetTSSSel  = segment.Selector(0x10)
		codeSel       = segment.Selector(0x18)
		stackSel      = segment.Selector(0x20)

		currentTSSBase = 0x1000
		targetTSSBase  = 0x1100
	)

	writeGDTDescriptor(t, c, 0, 1, 0x2F, currentTSSBase, tssAccess(0, true))
	writeGDTDescriptor(t, c, 0, 2, 0x2F, targetTSSBase, tssAccess(0, false))
	writeGDTDescriptor(t, c, 0, 3, 0xFFFF, 0x2000, codeAccess(0))
	writeGDTDescriptor(t, c, 0, 4, 0xFFFF, 0x3000, dataAccess(0))

	c.TRSel = currentTSSSel
	c.TR = segment.Table{Base: currentTSSBase, Limit: 0x2F}

	off, wide := c.tssLayout()
	if err := c.writeTSSField(currentTSSBase, off.backLink, uint32(targetTSSSel), wide); err != nil {
		t.Fatalf("writeTSSField: %v", err)
	}
	c.writeTSSField(targetTSSBase, off.cs, uint32(codeSel), wide)
	c.writeTSSField(targetTSSBase, off.ss, uint32(stackSel), wide)
	c.writeTSSField(targetTSSBase, off.eip, 0x0042, wide)

	if err := c.switchTaskViaIret(); err != nil {
		t.Fatalf("switchTaskViaIret: %v", err)
	}
	if c.TRSel != targetTSSSel {
		t.Errorf("TRSel = %#04x, want %#04x (the back-linked task)", uint16(c.TRSel), uint16(targetTSSSel))
	}
	if c.IP != 0x42 {
		t.Errorf("IP = %#x, want 0x42", c.IP)
	}
	if c.Flags.NT() {
		t.Errorf("NT set after an IRET-style switch, want clear")
	}
}
