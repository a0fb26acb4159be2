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
	"github.com/jetsetilly/x86core/segment"
)

// execJcc implements the sixteen Jcc-short opcodes (0x70-0x7F): cond is
// the low nibble of the opcode, in the architectural condition-code
// order.
func (c *CPU) execJcc(cond uint8, budget *Budget) error {
	rel, err := c.fetchByte()
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))
	if c.condition(cond) {
		c.IP = (c.IP + uint32(int32(int8(rel)))) & 0xFFFFFFFF
	}
	return nil
}

// condition evaluates one of the sixteen Jcc/SETcc/CMOVcc predicates
// against the current flag state.
func (c *CPU) condition(cond uint8) bool {
	switch cond & 0xF {
	case 0x0:
		return c.Flags.OF()
	case 0x1:
		return !c.Flags.OF()
	case 0x2:
		return c.Flags.CF()
	case 0x3:
		return !c.Flags.CF()
	case 0x4:
		return c.Flags.ZF()
	case 0x5:
		return !c.Flags.ZF()
	case 0x6:
		return c.Flags.CF() || c.Flags.ZF()
	case 0x7:
		return !c.Flags.CF() && !c.Flags.ZF()
	case 0x8:
		return c.Flags.SF()
	case 0x9:
		return !c.Flags.SF()
	case 0xA:
		return c.Flags.PF()
	case 0xB:
		return !c.Flags.PF()
	case 0xC:
		return c.Flags.SF() != c.Flags.OF()
	case 0xD:
		return c.Flags.SF() == c.Flags.OF()
	case 0xE:
		return c.Flags.ZF() || c.Flags.SF() != c.Flags.OF()
	default:
		return !c.Flags.ZF() && c.Flags.SF() == c.Flags.OF()
	}
}

// execLoop implements LOOP: decrement CX (or ECX under a 32-bit address
// override), branch on rel8 while it's non-zero.
func (c *CPU) execLoop(budget *Budget) error {
	rel, err := c.fetchByte()
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))
	cx := c.loopCounter() - 1
	c.setLoopCounter(cx)
	if cx != 0 {
		c.IP = (c.IP + uint32(int32(int8(rel)))) & 0xFFFFFFFF
	}
	return nil
}

// execJcxz implements JCXZ/JECXZ: branch on rel8 when the counter
// register is zero, without touching it.
func (c *CPU) execJcxz(budget *Budget) error {
	rel, err := c.fetchByte()
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))
	if c.loopCounter() == 0 {
		c.IP = (c.IP + uint32(int32(int8(rel)))) & 0xFFFFFFFF
	}
	return nil
}

func (c *CPU) loopCounter() uint32 {
	if c.prefix.addrSize32 {
		return c.Regs.CX.DWord()
	}
	return uint32(c.Regs.CX.Word())
}

func (c *CPU) setLoopCounter(v uint32) {
	if c.prefix.addrSize32 {
		c.Regs.CX.SetDWord(v)
	} else {
		c.Regs.CX.SetWord(uint16(v))
	}
}

// execCallNear implements CALL rel16/rel32: push the return IP, then
// branch relative to the *following* instruction.
func (c *CPU) execCallNear(budget *Budget) error {
	w := c.width()
	rel, err := c.fetchImmediate(w)
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))
	ret := c.IP
	if err := c.push(ret, w); err != nil {
		return err
	}
	c.IP = (ret + signExtendRel(rel, w)) & 0xFFFFFFFF
	return nil
}

func signExtendRel(v uint32, w bus.Width) uint32 {
	if w == bus.Word {
		return uint32(int32(int16(v)))
	}
	return v
}

// execJmpNear implements JMP rel8 (short) and JMP rel16/rel32 (near).
func (c *CPU) execJmpNear(short bool, budget *Budget) error {
	budget.Charge(c.Model.cost(cycleControlTransfer))
	if short {
		rel, err := c.fetchByte()
		if err != nil {
			return err
		}
		c.IP = (c.IP + uint32(int32(int8(rel)))) & 0xFFFFFFFF
		return nil
	}
	w := c.width()
	rel, err := c.fetchImmediate(w)
	if err != nil {
		return err
	}
	c.IP = (c.IP + signExtendRel(rel, w)) & 0xFFFFFFFF
	return nil
}

// execRetNear implements RET (0xC3) and RET imm16 (0xC2): pop IP, then
// discard imm16 extra bytes of arguments from the stack.
func (c *CPU) execRetNear(op uint8, budget *Budget) error {
	w := c.width()
	var n uint16
	if op == 0xC2 {
		var err error
		n, err = c.fetchWord()
		if err != nil {
			return err
		}
	}
	ip, err := c.pop(w)
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))
	c.IP = ip
	if op == 0xC2 {
		c.setSP(c.currentSP() + uint32(n))
	}
	return nil
}

// execCallFar implements CALL ptr16:16/ptr16:32 (0x9A): a direct far
// call to either a code segment (conforming or same-privilege) or,
// through the same selector's descriptor, a call gate. spec.md section
// 4.4's rule -- validate the destination before any observable state
// change -- means the selector is decoded and privilege-checked before
// IP or CS is touched.
func (c *CPU) execCallFar(budget *Budget) error {
	w := c.width()
	offset, err := c.fetchImmediate(w)
	if err != nil {
		return err
	}
	selRaw, err := c.fetchWord()
	if err != nil {
		return err
	}
	sel := segment.Selector(selRaw)
	budget.Charge(c.Model.cost(cycleControlTransfer))

	if !c.Loader.Protected {
		return c.callFarDirect(sel, offset, w)
	}

	d, err := c.Loader.Fetch(sel)
	if err != nil {
		return err
	}
	switch d.SystemType() {
	case segment.TypeCallGate16, segment.TypeCallGate32:
		return c.callFarViaGate(d, w)
	case segment.TypeTaskGate:
		return c.switchTaskViaGate(d, true)
	default:
		return c.callFarDirect(sel, offset, w)
	}
}

func (c *CPU) callFarDirect(sel segment.Selector, offset uint32, w bus.Width) error {
	newCS, err := c.Loader.LoadCode(sel, c.CPL, false)
	if err != nil {
		return err
	}
	if err := c.push(uint32(c.CS.Selector), w); err != nil {
		return err
	}
	if err := c.push(c.IP, w); err != nil {
		return err
	}
	c.CS = newCS
	c.IP = offset
	if !newCS.Conforming {
		c.CPL = newCS.DPL
	}
	return nil
}

// callFarViaGate implements an inter-privilege CALL through a call gate:
// switch stacks per the target CPL, push the caller's SS:SP, then CS:IP,
// and transfer to the gate's target. Parameter-word copying (the count
// encoded in the gate's low 5 bits) is not implemented; gates with a
// non-zero parameter count are followed as if it were zero.
func (c *CPU) callFarViaGate(gate segment.Descriptor, w bus.Width) error {
	targetSel := segment.Selector(gateOffsetSelector(gate))
	targetOff := gateOffset(gate)

	newCS, err := c.Loader.LoadCode(targetSel, c.CPL, true)
	if err != nil {
		return err
	}

	interPrivilege := newCS.DPL < c.CPL
	oldSS, oldSP := c.SS, c.currentSP()
	oldCS, oldIP := c.CS.Selector, c.IP

	if interPrivilege {
		if err := c.switchStackForCPL(newCS.DPL, w); err != nil {
			return err
		}
		if err := c.push(uint32(oldSS.Selector), w); err != nil {
			return err
		}
		if err := c.push(oldSP, w); err != nil {
			return err
		}
	}
	if err := c.push(uint32(oldCS), w); err != nil {
		return err
	}
	if err := c.push(oldIP, w); err != nil {
		return err
	}

	c.CS = newCS
	c.CPL = newCS.DPL
	c.IP = targetOff
	return nil
}

// execJmpFar implements JMP ptr16:16/ptr16:32 (0xEA): the same
// destination validation as execCallFar, but no return frame is pushed
// and a jump to a lower-DPL non-conforming segment through a call gate
// leaves CPL unchanged only when the gate demands it stay put (a jump
// through a call gate cannot raise privilege).
func (c *CPU) execJmpFar(budget *Budget) error {
	w := c.width()
	offset, err := c.fetchImmediate(w)
	if err != nil {
		return err
	}
	selRaw, err := c.fetchWord()
	if err != nil {
		return err
	}
	sel := segment.Selector(selRaw)
	budget.Charge(c.Model.cost(cycleControlTransfer))

	if !c.Loader.Protected {
		newCS, err := c.Loader.LoadCode(sel, c.CPL, false)
		if err != nil {
			return err
		}
		c.CS = newCS
		c.IP = offset
		return nil
	}

	d, err := c.Loader.Fetch(sel)
	if err != nil {
		return err
	}
	switch d.SystemType() {
	case segment.TypeCallGate16, segment.TypeCallGate32:
		targetSel := segment.Selector(gateOffsetSelector(d))
		targetOff := gateOffset(d)
		newCS, err := c.Loader.LoadCode(targetSel, c.CPL, true)
		if err != nil {
			return err
		}
		if newCS.DPL > c.CPL {
			return c.fault(faults.GeneralProtection, false, uint16(sel))
		}
		c.CS = newCS
		c.IP = targetOff
		return nil
	case segment.TypeTaskGate:
		return c.switchTaskViaGate(d, false)
	default:
		newCS, err := c.Loader.LoadCode(sel, c.CPL, false)
		if err != nil {
			return err
		}
		c.CS = newCS
		c.IP = offset
		if !newCS.Conforming {
			c.CPL = newCS.DPL
		}
		return nil
	}
}

// execRetFar implements RETF (0xCB) and RETF imm16 (0xCA): pop IP, CS,
// and -- when returning to an outer (numerically greater) privilege
// level -- SS:SP, mirroring Iret's outward-return handling minus the PS
// pop.
func (c *CPU) execRetFar(op uint8, budget *Budget) error {
	w := c.width()
	var n uint16
	if op == 0xCA {
		var err error
		n, err = c.fetchWord()
		if err != nil {
			return err
		}
	}
	ip, err := c.pop(w)
	if err != nil {
		return err
	}
	cs, err := c.pop(w)
	if err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleControlTransfer))

	targetSel := segment.Selector(uint16(cs))
	newCPL := c.CPL
	if c.Loader.Protected {
		newCPL = targetSel.RPL()
		if newCPL < c.CPL {
			return c.fault(faults.GeneralProtection, false, uint16(cs))
		}
	}

	newCS, err := c.Loader.LoadCode(targetSel, c.CPL, false)
	if err != nil {
		return err
	}

	returningOutward := c.Loader.Protected && newCPL > c.CPL
	c.CS = newCS
	c.IP = ip
	c.CPL = newCPL

	if op == 0xCA {
		c.setSP(c.currentSP() + uint32(n))
	}

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

	return nil
}
