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

import "github.com/jetsetilly/x86core/bus"

// execStringOp implements MOVS/CMPS/STOS/LODS/SCAS, with or without a
// REP/REPZ/REPNZ prefix. spec.md section 4.5 requires that a
// REP-prefixed string instruction be interruptible between elements: an
// interrupt taken mid-repetition must resume the *same* instruction
// (opLIP still points at the REP-prefixed opcode, decremented CX and
// stepped SI/DI already committed) rather than restart it from scratch.
// This core gets that for free by charging one element per call to
// execStringOp and returning to the dispatcher loop, which re-checks
// interrupts, between elements -- the repeat is driven by re-fetching
// the same opcode rather than an inner loop.
func (c *CPU) execStringOp(op uint8, budget *Budget) error {
	w := c.stringWidth(op)
	rep := c.prefix.repz || c.prefix.repnz

	if rep && c.loopCounter() == 0 {
		budget.Charge(c.Model.cost(cycleMisc))
		return nil
	}

	if err := c.stringElement(op, w); err != nil {
		return err
	}
	budget.Charge(c.Model.cost(cycleStringElement))

	if !rep {
		return nil
	}

	c.setLoopCounter(c.loopCounter() - 1)

	stop := c.loopCounter() == 0
	if op == 0xA6 || op == 0xA7 || op == 0xAE || op == 0xAF {
		// CMPS/SCAS: REPZ stops on ZF==0, REPNZ stops on ZF==1.
		if c.prefix.repz && !c.Flags.ZF() {
			stop = true
		}
		if c.prefix.repnz && c.Flags.ZF() {
			stop = true
		}
	}

	if !stop {
		// rewind IP to the first prefix byte of this instruction so the
		// dispatcher's next step() re-decodes the REP/segment prefixes and
		// re-enters this same opcode for the next element.
		c.IP = c.opLIP
	}
	return nil
}

func (c *CPU) stringWidth(op uint8) bus.Width {
	if op&1 == 0 {
		return bus.Byte
	}
	return c.width()
}

// stringElement performs exactly one iteration of the given string
// opcode, stepping SI/DI/CX-independent index registers by the operand
// width in the direction DF selects.
func (c *CPU) stringElement(op uint8, w bus.Width) error {
	switch op {
	case 0xA4, 0xA5: // MOVS
		v, err := c.readBusWidth(c.dataSegment().Linear(uint32(c.Regs.SI.Word())), w)
		if err != nil {
			return err
		}
		if err := c.writeBusWidth(c.ES.Linear(uint32(c.Regs.DI.Word())), v, w); err != nil {
			return err
		}
		c.stepIndex(c.Regs.SI, w)
		c.stepIndex(c.Regs.DI, w)
	case 0xA6, 0xA7: // CMPS
		a, err := c.readBusWidth(c.dataSegment().Linear(uint32(c.Regs.SI.Word())), w)
		if err != nil {
			return err
		}
		b, err := c.readBusWidth(c.ES.Linear(uint32(c.Regs.DI.Word())), w)
		if err != nil {
			return err
		}
		c.ALU.Cmp(a, b, w)
		c.stepIndex(c.Regs.SI, w)
		c.stepIndex(c.Regs.DI, w)
	case 0xAA, 0xAB: // STOS
		v := c.readRegisterView(c.Regs.AX, false, w)
		if err := c.writeBusWidth(c.ES.Linear(uint32(c.Regs.DI.Word())), v, w); err != nil {
			return err
		}
		c.stepIndex(c.Regs.DI, w)
	case 0xAC, 0xAD: // LODS
		v, err := c.readBusWidth(c.dataSegment().Linear(uint32(c.Regs.SI.Word())), w)
		if err != nil {
			return err
		}
		c.writeRegisterView(c.Regs.AX, false, v, w)
		c.stepIndex(c.Regs.SI, w)
	case 0xAE, 0xAF: // SCAS
		acc := c.readRegisterView(c.Regs.AX, false, w)
		v, err := c.readBusWidth(c.ES.Linear(uint32(c.Regs.DI.Word())), w)
		if err != nil {
			return err
		}
		c.ALU.Cmp(acc, v, w)
		c.stepIndex(c.Regs.DI, w)
	}
	return nil
}

// stepIndex advances an index register (SI or DI) by the operand width
// in bytes, backwards when DF is set.
func (c *CPU) stepIndex(reg *GPRegister, w bus.Width) {
	step := uint16(w.Bytes())
	if c.Flags.DF() {
		reg.SetWord(reg.Word() - step)
	} else {
		reg.SetWord(reg.Word() + step)
	}
}
