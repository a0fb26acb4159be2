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

// push writes a value of the given width to [SS:SP-size], then commits the
// decrement. The write is attempted before SP is adjusted so a faulting
// write to a guard page leaves SP (and the rest of the instruction)
// unmodified, per spec.md section 7's "helpers that mutate non-EA state
// must either be restartable or structured to fault before any commit".
func (c *CPU) push(v uint32, w bus.Width) error {
	size := w.Bytes()
	sp := c.nextSP(size)
	addr := c.SS.Linear(sp)
	if err := c.writeBusWidth(addr, v, w); err != nil {
		return err
	}
	c.setSP(sp)
	return nil
}

// nextSP computes the stack pointer after a push of `size` bytes without
// committing it, honouring the 16-vs-32-bit stack size the Big bit on SS
// selects.
func (c *CPU) nextSP(size uint32) uint32 {
	if c.SS.Big {
		return (c.Regs.SP.DWord() - size)
	}
	return uint32(uint16(c.Regs.SP.Word() - uint16(size)))
}

func (c *CPU) setSP(v uint32) {
	if c.SS.Big {
		c.Regs.SP.SetDWord(v)
	} else {
		c.Regs.SP.SetWord(uint16(v))
	}
}

func (c *CPU) currentSP() uint32 {
	if c.SS.Big {
		return c.Regs.SP.DWord()
	}
	return uint32(c.Regs.SP.Word())
}

// pop reads a value of the given width from [SS:SP], then commits the
// increment.
func (c *CPU) pop(w bus.Width) (uint32, error) {
	size := w.Bytes()
	sp := c.currentSP()
	addr := c.SS.Linear(sp)
	v, err := c.readBusWidth(addr, w)
	if err != nil {
		return 0, err
	}
	if c.SS.Big {
		c.setSP(sp + size)
	} else {
		c.setSP(uint32(uint16(uint16(sp) + uint16(size))))
	}
	return v, nil
}

// pushSPQuirk implements the "PUSH SP" historical wart (spec.md section
// 4.1, edge case ii): 8086/8088/80186/80188 push the already-decremented
// value; the 80286 and later push the value SP had before the decrement.
func (c *CPU) pushSPQuirk(w bus.Width) error {
	var v uint32
	if c.Model.HasProtectedMode() {
		v = c.currentSP()
		return c.push(v, w)
	}
	size := w.Bytes()
	v = c.nextSP(size)
	return c.push(v, w)
}

// Pusha/Popa implement PUSHA/POPA (80186+): the eight GPRs in AX/CX/DX/
// BX/original-SP/BP/SI/DI order, and its inverse, which discards the
// popped SP value per spec.md section 8's round-trip note.
func (c *CPU) Pusha(w bus.Width) error {
	sp := c.currentSP()
	order := []*GPRegister{c.Regs.AX, c.Regs.CX, c.Regs.DX, c.Regs.BX}
	for _, r := range order {
		if err := c.pushRegister(r, w); err != nil {
			return err
		}
	}
	if err := c.push(sp, w); err != nil {
		return err
	}
	for _, r := range []*GPRegister{c.Regs.BP, c.Regs.SI, c.Regs.DI} {
		if err := c.pushRegister(r, w); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU) pushRegister(r *GPRegister, w bus.Width) error {
	if w == bus.Dword {
		return c.push(r.DWord(), w)
	}
	return c.push(uint32(r.Word()), w)
}

func (c *CPU) Popa(w bus.Width) error {
	regs := []*GPRegister{c.Regs.DI, c.Regs.SI, c.Regs.BP}
	for _, r := range regs {
		v, err := c.pop(w)
		if err != nil {
			return err
		}
		c.storeRegister(r, v, w)
	}
	// discard the saved SP
	if _, err := c.pop(w); err != nil {
		return err
	}
	for _, r := range []*GPRegister{c.Regs.BX, c.Regs.DX, c.Regs.CX, c.Regs.AX} {
		v, err := c.pop(w)
		if err != nil {
			return err
		}
		c.storeRegister(r, v, w)
	}
	return nil
}

func (c *CPU) storeRegister(r *GPRegister, v uint32, w bus.Width) {
	if w == bus.Dword {
		r.SetDWord(v)
	} else {
		r.SetWord(uint16(v))
	}
}
