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

import "github.com/jetsetilly/x86core/machine"

// Model names the processor variant being emulated. Behaviour that differs
// between variants (address width, reset vector, PS always-set/always-clear
// masks, whether 0x66/0x67 size-override prefixes exist) is kept as a
// small per-model table rather than scattered conditionals, the way the
// teacher keeps per-chip behaviour (PAL/NTSC, bank-switching variant) in
// small lookup tables rather than branching throughout the core.
type Model int

// The processor variants this core can emulate, per spec.md section 1.
const (
	I8086 Model = iota
	I8088
	I80186
	I80188
	I80286
	I80386
)

// ModelFromDescription maps the machine description's CPU model string
// onto the Model this package understands.
func ModelFromDescription(m machine.CPUModel) Model {
	switch m {
	case machine.Model8086:
		return I8086
	case machine.Model8088:
		return I8088
	case machine.Model80186:
		return I80186
	case machine.Model80188:
		return I80188
	case machine.Model80386:
		return I80386
	default:
		return I80286
	}
}

func (m Model) String() string {
	switch m {
	case I8086:
		return "8086"
	case I8088:
		return "8088"
	case I80186:
		return "80186"
	case I80188:
		return "80188"
	case I80286:
		return "80286"
	case I80386:
		return "80386"
	default:
		return "unknown"
	}
}

// Is32Bit reports whether the model has 32-bit general-purpose registers,
// a 32-bit address bus and the paging machinery of spec.md section 4.2.
func (m Model) Is32Bit() bool {
	return m == I80386
}

// HasProtectedMode reports whether the model implements descriptor-table
// based segmentation (spec.md section 4.2) at all. 8086-family chips only
// ever run in what this core calls real mode.
func (m Model) HasProtectedMode() bool {
	return m == I80286 || m == I80386
}

// HasSizeOverridePrefixes reports whether 0x66/0x67 operand/address size
// prefixes are decoded (spec.md section 4.1).
func (m Model) HasSizeOverridePrefixes() bool {
	return m == I80386
}

// AddressMask returns the linear-address mask for the model: 20-bit wrap
// on 8086/8088, 24-bit on 80186 through 80286, 32-bit on 80386.
func (m Model) AddressMask() uint32 {
	switch m {
	case I8086, I8088:
		return 0xFFFFF
	case I80186, I80188, I80286:
		return 0xFFFFFF
	default:
		return 0xFFFFFFFF
	}
}

// ResetCS and ResetIP give the architectural reset vector per spec.md
// section 6: CS=0xF000,IP=0xFFF0 on >=80286, CS=0xFFFF,IP=0x0000 on 8086
// family.
func (m Model) ResetCS() uint16 {
	if m.HasProtectedMode() {
		return 0xF000
	}
	return 0xFFFF
}

func (m Model) ResetIP() uint16 {
	if m.HasProtectedMode() {
		return 0xFFF0
	}
	return 0x0000
}

// psSet is the set of EFLAGS/PSW bits that read back as 1 regardless of
// what was last written to them (spec.md section 3: "BIT1 is always set;
// other reserved bits obey the model-specific always-set/always-clear
// masks").
func (m Model) psSet() uint32 {
	switch {
	case m.HasProtectedMode():
		return 0x0002
	default:
		// 8086-family: the whole upper nibble of the low 16 bits,
		// including IOPL and NT, reads back forced to 1.
		return 0xF002
	}
}

// psDirect is the set of EFLAGS/PSW bits the model actually implements;
// PS reads are masked to this before psSet is OR'd in.
func (m Model) psDirect() uint32 {
	switch m {
	case I80386:
		return 0x0003FFFF
	case I80286:
		return 0x00007FFF
	default:
		return 0x00000FFF
	}
}
