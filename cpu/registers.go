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

import "fmt"

// GPRegister is one of the eight 32-bit general-purpose registers, exposed
// through the byte-low/byte-high/word/dword views spec.md section 3
// describes. Grounded on the teacher's registers.Register (hardware/cpu/
// registers/register.go), which widens an 8-bit value into a 16-bit
// address context via a single Value/Address pair of accessors; this type
// generalises the same idea across four views of one backing uint32
// instead of fixing the width at 8 bits.
type GPRegister struct {
	label     string
	value     uint32
	hasHighLow bool // false for SP/BP/SI/DI: no AH-style high byte view
}

// NewGPRegister creates a named, zeroed general-purpose register.
// hasHighLow should be true only for the four registers with an AH/BH/CH/DH
// view (AX/BX/CX/DX).
func NewGPRegister(label string, hasHighLow bool) *GPRegister {
	return &GPRegister{label: label, hasHighLow: hasHighLow}
}

func (r GPRegister) Label() string { return r.label }

func (r GPRegister) String() string {
	return fmt.Sprintf("%s=%#08x", r.label, r.value)
}

// DWord returns the full 32-bit value (EAX, EBX, ...).
func (r *GPRegister) DWord() uint32 { return r.value }

// SetDWord loads the full 32-bit value.
func (r *GPRegister) SetDWord(v uint32) { r.value = v }

// Word returns the low 16 bits (AX, BX, ...).
func (r *GPRegister) Word() uint16 { return uint16(r.value) }

// SetWord loads the low 16 bits, leaving the upper 16 bits of the backing
// register untouched — the architectural behaviour of a 16-bit write on a
// processor whose registers are really 32 bits wide (80386+; harmless on
// earlier models where the upper half is simply never read).
func (r *GPRegister) SetWord(v uint16) {
	r.value = (r.value &^ 0xFFFF) | uint32(v)
}

// Low8 returns the low byte (AL, BL, ...).
func (r *GPRegister) Low8() uint8 { return uint8(r.value) }

// SetLow8 loads the low byte, leaving the rest of the register untouched.
func (r *GPRegister) SetLow8(v uint8) {
	r.value = (r.value &^ 0xFF) | uint32(v)
}

// High8 returns the high byte of the low word (AH, BH, CH, DH). Only valid
// when hasHighLow is true; callers that decode a ModR/M reg field into a
// register selector are responsible for only routing AH/BH/CH/DH-capable
// encodings here (REX-prefixed access, which would disambiguate SPL from
// AH, does not exist before the 80486 and is out of this core's scope).
func (r *GPRegister) High8() uint8 { return uint8(r.value >> 8) }

// SetHigh8 loads the high byte of the low word.
func (r *GPRegister) SetHigh8(v uint8) {
	r.value = (r.value &^ 0xFF00) | (uint32(v) << 8)
}

// HasHighLow reports whether this register has an AH-style high byte view.
func (r *GPRegister) HasHighLow() bool { return r.hasHighLow }

// GPRegisterFile holds the eight general-purpose registers in their
// canonical decode order (matches the ModR/M reg/rm encoding spec.md
// section 4.1 describes: 0=AX/EAX ... 7=DI/EDI).
type GPRegisterFile struct {
	AX, CX, DX, BX, SP, BP, SI, DI *GPRegister
}

// NewGPRegisterFile builds a fresh, zeroed register file.
func NewGPRegisterFile() *GPRegisterFile {
	return &GPRegisterFile{
		AX: NewGPRegister("AX", true),
		CX: NewGPRegister("CX", true),
		DX: NewGPRegister("DX", true),
		BX: NewGPRegister("BX", true),
		SP: NewGPRegister("SP", false),
		BP: NewGPRegister("BP", false),
		SI: NewGPRegister("SI", false),
		DI: NewGPRegister("DI", false),
	}
}

// ByIndex returns the register named by a 3-bit ModR/M reg/rm field, in
// the canonical AX/CX/DX/BX/SP/BP/SI/DI order.
func (f *GPRegisterFile) ByIndex(i int) *GPRegister {
	switch i & 0x7 {
	case 0:
		return f.AX
	case 1:
		return f.CX
	case 2:
		return f.DX
	case 3:
		return f.BX
	case 4:
		return f.SP
	case 5:
		return f.BP
	case 6:
		return f.SI
	default:
		return f.DI
	}
}

// ByteRegister returns the register and view selector for a 3-bit ModR/M
// field when decoded as an 8-bit operand: 0-3 are AL/CL/DL/BL (low bytes),
// 4-7 are AH/CH/DH/BH (high bytes of AX/CX/DX/BX).
func (f *GPRegisterFile) ByteRegister(i int) (reg *GPRegister, high bool) {
	i &= 0x7
	if i < 4 {
		return f.ByIndex(i), false
	}
	return f.ByIndex(i - 4), true
}
