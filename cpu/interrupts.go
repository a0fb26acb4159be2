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
	"github.com/jetsetilly/x86core/bus"
	"github.com/jetsetilly/x86core/faults"
	"github.com/jetsetilly/x86core/logger"
	"github.com/jetsetilly/x86core/segment"
)

// intPending is a single bit in intFlags an external device sets to
// request an interrupt; the dispatcher only samples it between
// instructions (spec.md section 5).
const intPending uint32 = 1 << 0

// RequestInterrupt is how an external device enqueues a hardware
// interrupt; the dispatcher polls this at the next instruction boundary
// when IF is set and NOINTR is clear.
func (c *CPU) RequestInterrupt() { c.intFlags |= intPending }

func (c *CPU) checkInterrupts() error {
	if c.prefix.noIntr {
		return nil
	}
	if c.intFlags&intPending == 0 {
		return nil
	}
	if !c.Flags.IF() {
		return nil
	}
	c.intFlags &^= intPending
	return c.deliverInterrupt(0, false)
}

// fault raises an architectural exception. restart, when true, rewinds
// IP to opLIP so the instruction is retried once the handler returns
// (spec.md section 4.6's "restartable fault"); hardware/software INT and
// the trap-class exceptions (DEBUG, INTO, INT3) pass restart=false since
// they report the *following* instruction.
func (c *CPU) fault(v faults.Vector, restart bool, errCode uint16) error {
	delivered, level := c.Escalation.Raise(v)
	switch level {
	case faults.LevelShutdown:
		logger.Logf(logger.Allow, "cpu", "triple fault: CPU shut down")
		return errShutdown
	case faults.LevelDouble:
		errCode = 0
	}

	if restart {
		c.IP = c.opLIP
	}

	var ec *uint16
	if delivered.HasErrorCode() {
		ec = &errCode
	}
	return c.deliverThroughIDT(uint8(delivered), ec)
}

var errShutdown = errShutdownType{}

type errShutdownType struct{}

func (errShutdownType) Error() string { return "cpu: triple fault, CPU shut down" }

// deliverInterrupt is the common path for INT n, INTO, INT3 and hardware
// interrupts. isSoftware distinguishes a guest-issued INT n (which must
// pass a DPL >= CPL check in protected mode) from a hardware-raised one,
// per spec.md section 4.4.
func (c *CPU) deliverInterrupt(vector uint8, isSoftware bool) error {
	if isSoftware && c.Loader.Protected {
		if err := c.checkGateDPL(vector); err != nil {
			return err
		}
	}
	return c.deliverThroughIDT(vector, nil)
}

func (c *CPU) checkGateDPL(vector uint8) error {
	sel := segment.Selector(uint16(vector) * 8)
	d, err := c.IDT.Fetch(c.Mem, sel)
	if err != nil {
		return err
	}
	if d.DPL < c.CPL {
		return c.fault(faults.GeneralProtection, false, uint16(vector)*8)
	}
	return nil
}

// deliverThroughIDT pushes PS/CS/IP (and an error code, if present) and
// transfers control to the handler named by the IDT entry for vector.
// Real mode reads a raw (offset, segment) pair at IDT base + vector*4;
// protected mode fetches and classifies a gate descriptor.
func (c *CPU) deliverThroughIDT(vector uint8, errCode *uint16) error {
	if !c.Loader.Protected {
		return c.deliverRealMode(vector)
	}
	return c.deliverProtectedMode(vector, errCode)
}

func (c *CPU) deliverRealMode(vector uint8) error {
	addr := c.IDT.Base + uint32(vector)*4
	offset, err := c.Mem.ReadWord(addr)
	if err != nil {
		return err
	}
	seg, err := c.Mem.ReadWord(addr + 2)
	if err != nil {
		return err
	}

	if err := c.pushInterruptFrame(bus.Word, false, c.SS, c.currentSP()); err != nil {
		return err
	}

	c.Flags.SetIF(false)
	c.Flags.SetTF(false)
	c.CS = segment.RealMode(seg)
	c.IP = uint32(offset)
	return nil
}

func (c *CPU) deliverProtectedMode(vector uint8, errCode *uint16) error {
	sel := segment.Selector(uint16(vector) * 8)
	d, err := c.IDT.Fetch(c.Mem, sel)
	if err != nil {
		return err
	}
	if !d.Present {
		return c.fault(faults.SegmentNotPresent, false, uint16(vector)*8)
	}

	switch d.SystemType() {
	case segment.TypeTaskGate:
		return c.switchTaskViaGate(d, true)
	case segment.TypeInterruptGate16, segment.TypeInterruptGate32:
		return c.deliverViaGate(d, errCode, true)
	case segment.TypeTrapGate16, segment.TypeTrapGate32:
		return c.deliverViaGate(d, errCode, false)
	default:
		return c.fault(faults.GeneralProtection, false, uint16(vector)*8)
	}
}

// deliverViaGate transfers control through an interrupt or trap gate.
// clearIF distinguishes the two: an interrupt gate clears IF, a trap
// gate doesn't (spec.md section 4.4).
func (c *CPU) deliverViaGate(gate segment.Descriptor, errCode *uint16, clearIF bool) error {
	targetSel := segment.Selector(gateOffsetSelector(gate))
	targetOff := gateOffset(gate)

	newCS, err := c.Loader.LoadCode(targetSel, c.CPL, true)
	if err != nil {
		return err
	}

	interPrivilege := newCS.DPL < c.CPL
	wide := gate.SystemType() == segment.TypeInterruptGate32 || gate.SystemType() == segment.TypeTrapGate32
	w := bus.Word
	if wide {
		w = bus.Dword
	}

	oldSS, oldSP := c.SS, c.currentSP()
	if interPrivilege {
		if err := c.switchStackForCPL(newCS.DPL, w); err != nil {
			return err
		}
	}
	if err := c.pushInterruptFrame(w, interPrivilege, oldSS, oldSP); err != nil {
		return err
	}
	if errCode != nil {
		if err := c.push(uint32(*errCode), w); err != nil {
			return err
		}
	}

	if clearIF {
		c.Flags.SetIF(false)
	}
	c.Flags.SetTF(false)
	c.CS = newCS
	c.CPL = newCS.DPL
	c.IP = targetOff
	return nil
}

// gateOffsetSelector/gateOffset interpret a call/interrupt/trap gate's
// packed (selector, offset) fields: selector at bits 0-15 of the first
// dword, offset split across the low word of the first dword's high half
// and the whole second dword (mirrors descriptor.go's generic 8-byte
// decode, reused here for the gate-specific field meaning).
func gateOffsetSelector(d segment.Descriptor) uint16 {
	return uint16(d.Base & 0xFFFF)
}

func gateOffset(d segment.Descriptor) uint32 {
	return (d.Base & 0xFFFF0000) | (d.Limit & 0xFFFF)
}

// pushInterruptFrame pushes the return frame for an interrupt/exception:
// PS, CS, IP, widened to w. On an inter-privilege transfer the caller's
// SS:SP are pushed first (spec.md section 4.4's sequence); oldSS/oldSP must
// be captured by the caller before any stack switch, since by the time
// this runs c.SS/SP may already name the new stack.
func (c *CPU) pushInterruptFrame(w bus.Width, pushedStack bool, oldSS segment.Shadow, oldSP uint32) error {
	if pushedStack {
		if err := c.push(uint32(oldSS.Selector), w); err != nil {
			return err
		}
		if err := c.push(oldSP, w); err != nil {
			return err
		}
	}
	if err := c.push(c.Flags.PS(c.Model), w); err != nil {
		return err
	}
	if err := c.push(uint32(c.CS.Selector), w); err != nil {
		return err
	}
	if err := c.push(c.IP, w); err != nil {
		return err
	}
	return nil
}

// switchStackForCPL loads SS:SP for the target privilege level from the
// current TSS, per spec.md section 4.4's inter-privilege far-transfer
// sequence.
func (c *CPU) switchStackForCPL(cpl uint8, w bus.Width) error {
	sp, ss, err := c.tssStackFor(cpl)
	if err != nil {
		return err
	}
	newSS, err := c.Loader.LoadData(segment.Selector(ss), cpl, true)
	if err != nil {
		return err
	}
	c.SS = newSS
	c.setSP(sp)
	return nil
}

// Iret implements IRET/IRETD: pop IP, CS, PS; pop SS:SP too on a return
// to a lower privilege level; or, if NT is set in protected mode,
// perform a task switch back to the task named by the current TSS's
// back-link (spec.md section 4.4).
func (c *CPU) Iret(w bus.Width) error {
	if c.Loader.Protected && c.Flags.NT() {
		return c.switchTaskViaIret()
	}

	ip, err := c.pop(w)
	if err != nil {
		return err
	}
	cs, err := c.pop(w)
	if err != nil {
		return err
	}
	ps, err := c.pop(w)
	if err != nil {
		return err
	}

	targetSel := segment.Selector(uint16(cs))
	newCPL := c.CPL
	if c.Loader.Protected {
		newCPL = targetSel.RPL()
	}

	newCS, err := c.Loader.LoadCode(targetSel, c.CPL, false)
	if err != nil {
		return err
	}

	returningOutward := c.Loader.Protected && newCPL > c.CPL

	c.CS = newCS
	c.IP = ip
	c.Flags.SetPS(ps)
	c.CPL = newCPL

	if returningOutward {
		sp, err := c.pop(w)
		if err != nil {
			return err
		}
		ss, err := c.pop(w)
		if err != nil {
			return err
		}
		newSS, err := c.Loader.LoadData(segment.Selector(uint16(ss)), newCPL, true)
		if err != nil {
			return err
		}
		c.SS = newSS
		c.setSP(sp)
		c.nullOutranked(newCPL)
	}

	c.Escalation.Clear()
	return nil
}

// nullOutranked forcibly nulls DS/ES/FS/GS whose DPL is now less than the
// new CPL and which are not conforming code segments, per spec.md section
// 4.2's far-return rule.
func (c *CPU) nullOutranked(newCPL uint8) {
	for _, s := range []*segment.Shadow{&c.DS, &c.ES, &c.FS, &c.GS} {
		if s.Code && s.Conforming {
			continue
		}
		if s.DPL < newCPL {
			*s = segment.Shadow{}
		}
	}
}
