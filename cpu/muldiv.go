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
	"github.com/jetsetilly/x86core/curated"
)

// DivideByZero is raised by Div/Idiv on a zero divisor or a quotient that
// overflows the destination register; the caller turns this into a #DE
// exception (spec.md section 7).
const DivideByZero = "cpu: divide error"

// MulDiv implements MUL/IMUL/DIV/IDIV by widening operands into Go's
// native 64-bit integers rather than emulating partial products bit by
// bit, per spec.md section 9's guidance that integer widening is both
// simpler and exactly as correct as a bit-serial multiplier for a core
// that isn't modelling cycle-by-cycle microarchitecture.
type MulDiv struct {
	Flags *FlagEngine
}

// Mul computes the unsigned product dst*src. The returned high/low split
// already accounts for width: for Byte the product lands in low 16 bits
// (AX), for Word in DX:AX, for Dword in EDX:EAX.
func (m *MulDiv) Mul(dst, src uint32, w bus.Width) (lo, hi uint32) {
	mask := w.Mask()
	product := uint64(dst&mask) * uint64(src&mask)
	lo = uint32(product) & mask
	hi = uint32(product>>bitWidth(w)) & mask

	overflow := hi != 0
	m.Flags.SetCF(overflow)
	m.Flags.SetOF(overflow)
	return lo, hi
}

// Imul computes the signed product dst*src.
func (m *MulDiv) Imul(dst, src uint32, w bus.Width) (lo, hi uint32) {
	mask := w.Mask()
	d := int64(signExtend(dst&mask, w))
	s := int64(signExtend(src&mask, w))
	product := d * s

	lo = uint32(product) & mask
	hi = uint32(product>>bitWidth(w)) & mask

	// overflow iff the high half is not simply the sign-extension of lo
	signLo := signExtend(lo, w) < 0
	var wantHi uint32
	if signLo {
		wantHi = mask
	}
	overflow := hi != wantHi
	m.Flags.SetCF(overflow)
	m.Flags.SetOF(overflow)
	return lo, hi
}

// Div computes the unsigned quotient/remainder of a double-width dividend
// (hi:lo) by src. Returns DivideByZero if src is zero or the quotient
// doesn't fit in width bits.
func (m *MulDiv) Div(hi, lo uint32, src uint32, w bus.Width) (quotient, remainder uint32, err error) {
	mask := w.Mask()
	if src&mask == 0 {
		return 0, 0, curated.Errorf(DivideByZero)
	}
	dividend := (uint64(hi&mask) << bitWidth(w)) | uint64(lo&mask)
	q := dividend / uint64(src&mask)
	r := dividend % uint64(src&mask)
	if q > uint64(mask) {
		return 0, 0, curated.Errorf(DivideByZero)
	}
	return uint32(q), uint32(r), nil
}

// Idiv computes the signed quotient/remainder of a double-width dividend
// (hi:lo, as a two's complement value twice the operand width) by src.
func (m *MulDiv) Idiv(hi, lo uint32, src uint32, w bus.Width) (quotient, remainder uint32, err error) {
	mask := w.Mask()
	if src&mask == 0 {
		return 0, 0, curated.Errorf(DivideByZero)
	}
	bw := bitWidth(w)
	dividend := int64(signExtend(hi&mask, w))<<bw | int64(lo&mask)
	divisor := int64(signExtend(src&mask, w))

	q := dividend / divisor
	r := dividend % divisor

	max := int64(mask >> 1)
	min := -max - 1
	if q > max || q < min {
		return 0, 0, curated.Errorf(DivideByZero)
	}
	return uint32(q) & mask, uint32(r) & mask, nil
}
