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
	"github.com/jetsetilly/x86core/segment"
)

// operand is a resolved ModR/M rm field: either a register view or a
// linear memory address. isMemory plays the role of comparing regEA
// against the ADDR_INVALID sentinel of spec.md section 3 invariant (e) --
// a bool flag rather than a reserved uint32 value, since no valid Go
// value is otherwise distinguishable from every real address.
type operand struct {
	isMemory bool
	linear   uint32
	reg      *GPRegister
	high     bool // true when reg names an AH-style high-byte view
}

// modrm is the decoded (mod, reg, rm) triple plus whatever displacement
// followed it. reg is always a register-index (3 bits); rm resolves to
// either a register operand or effective address depending on mod.
type modrm struct {
	mod, reg, rm uint8
	rm16         operand
}

// decodeModRM fetches the ModR/M byte (and any displacement) and resolves
// the rm field into an operand. Only 16-bit addressing forms are modelled
// (the eight classical BX/BP+SI/DI combinations); 32-bit SIB-byte
// addressing (80386 in 32-bit address-size mode) is not implemented in
// this pass -- see DESIGN.md.
func (c *CPU) decodeModRM(w bus.Width) (modrm, error) {
	b, err := c.fetchByte()
	if err != nil {
		return modrm{}, err
	}
	m := modrm{mod: b >> 6, reg: (b >> 3) & 0x7, rm: b & 0x7}

	if m.mod == 3 {
		reg, high := c.registerView(m.rm, w)
		m.rm16 = operand{reg: reg, high: high}
		return m, nil
	}

	var disp int32
	var base uint32
	seg := c.dataSegment()

	switch m.rm {
	case 0:
		base = c.Regs.BX.Word16Sum(c.Regs.SI)
	case 1:
		base = c.Regs.BX.Word16Sum(c.Regs.DI)
	case 2:
		base = c.Regs.BP.Word16Sum(c.Regs.SI)
		seg = c.stackSegmentIfDefault()
	case 3:
		base = c.Regs.BP.Word16Sum(c.Regs.DI)
		seg = c.stackSegmentIfDefault()
	case 4:
		base = uint32(c.Regs.SI.Word())
	case 5:
		base = uint32(c.Regs.DI.Word())
	case 6:
		if m.mod == 0 {
			d, err := c.fetchWord()
			if err != nil {
				return modrm{}, err
			}
			base = uint32(d)
		} else {
			base = uint32(c.Regs.BP.Word())
			seg = c.stackSegmentIfDefault()
		}
	case 7:
		base = uint32(c.Regs.BX.Word())
	}

	switch m.mod {
	case 1:
		d, err := c.fetchByte()
		if err != nil {
			return modrm{}, err
		}
		disp = int32(int8(d))
	case 2:
		d, err := c.fetchWord()
		if err != nil {
			return modrm{}, err
		}
		disp = int32(int16(d))
	}

	offset := uint32(uint16(int32(uint16(base)) + disp))
	m.rm16 = operand{isMemory: true, linear: seg.Linear(offset)}
	return m, nil
}

// stackSegmentIfDefault returns SS unless a segment-override prefix is in
// effect, implementing the architectural rule that BP-relative addressing
// defaults to SS rather than DS.
func (c *CPU) stackSegmentIfDefault() segment.Shadow {
	if c.prefix.segOverride != nil {
		return *c.prefix.segOverride
	}
	return c.SS
}

// Word16Sum adds two registers' 16-bit views together, wrapping at 16
// bits -- the BX+SI-style effective-address component sum.
func (r *GPRegister) Word16Sum(other *GPRegister) uint32 {
	return uint32(r.Word() + other.Word())
}

func (c *CPU) registerView(index uint8, w bus.Width) (*GPRegister, bool) {
	if w == bus.Byte {
		reg, high := c.Regs.ByteRegister(int(index))
		return reg, high
	}
	return c.Regs.ByIndex(int(index)), false
}

// read loads the operand's current value at width w.
func (c *CPU) readOperand(op operand, w bus.Width) (uint32, error) {
	if op.isMemory {
		return c.readBusWidth(op.linear, w)
	}
	return c.readRegisterView(op.reg, op.high, w), nil
}

// write stores v into the operand at width w.
func (c *CPU) writeOperand(op operand, v uint32, w bus.Width) error {
	if op.isMemory {
		return c.writeBusWidth(op.linear, v, w)
	}
	c.writeRegisterView(op.reg, op.high, v, w)
	return nil
}

func (c *CPU) readRegisterView(reg *GPRegister, high bool, w bus.Width) uint32 {
	switch {
	case w == bus.Byte && high:
		return uint32(reg.High8())
	case w == bus.Byte:
		return uint32(reg.Low8())
	case w == bus.Word:
		return uint32(reg.Word())
	default:
		return reg.DWord()
	}
}

func (c *CPU) writeRegisterView(reg *GPRegister, high bool, v uint32, w bus.Width) {
	switch {
	case w == bus.Byte && high:
		reg.SetHigh8(uint8(v))
	case w == bus.Byte:
		reg.SetLow8(uint8(v))
	case w == bus.Word:
		reg.SetWord(uint16(v))
	default:
		reg.SetDWord(v)
	}
}
