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

// Shift implements SHL/SHR/SAR/ROL/ROR/RCL/RCR. Unlike the ALU helpers,
// shift/rotate results are not expressible through the D/S/A result-cache
// formulas (their OF definition only holds for a count of exactly one, and
// rotate doesn't touch ZF/SF/PF/AF at all), so this type sets each flag
// directly rather than routing through FlagEngine.commit, matching the
// real chip's own microcode: a shift by zero leaves every flag untouched.
type Shift struct {
	Flags *FlagEngine
}

func bitWidth(w bus.Width) uint32 {
	switch w {
	case bus.Byte:
		return 8
	case bus.Word:
		return 16
	default:
		return 32
	}
}

// Shl computes dst<<count, masked to width. OF is defined only for
// count==1: XOR of the result's sign bit and the bit shifted into CF.
func (s *Shift) Shl(dst uint32, count uint, w bus.Width) uint32 {
	if count == 0 {
		return dst & w.Mask()
	}
	m := w.Mask()
	bw := bitWidth(w)
	d := dst & m
	var cf bool
	if count <= uint(bw) {
		cf = (d>>(bw-uint32(count)))&1 != 0
	}
	result := (d << count) & m
	s.Flags.SetCF(cf)
	if count == 1 {
		s.Flags.SetOF((result&w.SignBit() != 0) != cf)
	}
	s.setLogicalFlags(result, w)
	return result
}

// Shr computes dst>>count (logical), masked to width.
func (s *Shift) Shr(dst uint32, count uint, w bus.Width) uint32 {
	if count == 0 {
		return dst & w.Mask()
	}
	m := w.Mask()
	d := dst & m
	var cf bool
	if count >= 1 {
		cf = (d>>(count-1))&1 != 0
	}
	result := d >> count
	s.Flags.SetCF(cf)
	if count == 1 {
		s.Flags.SetOF(d&w.SignBit() != 0)
	}
	s.setLogicalFlags(result, w)
	return result
}

// Sar computes dst>>count (arithmetic: sign-extending), masked to width.
func (s *Shift) Sar(dst uint32, count uint, w bus.Width) uint32 {
	if count == 0 {
		return dst & w.Mask()
	}
	m := w.Mask()
	d := dst & m
	bw := bitWidth(w)
	signed := signExtend(d, w)
	var cf bool
	cf = (d>>(count-1))&1 != 0

	result := uint32(signed>>int32(count)) & m
	if count >= uint(bw) {
		// a full-width or deeper arithmetic shift leaves every bit equal
		// to the original sign bit
		if signed < 0 {
			result = m
		} else {
			result = 0
		}
	}
	s.Flags.SetCF(cf)
	if count == 1 {
		s.Flags.SetOF(false)
	}
	s.setLogicalFlags(result, w)
	return result
}

func signExtend(v uint32, w bus.Width) int32 {
	switch w {
	case bus.Byte:
		return int32(int8(v))
	case bus.Word:
		return int32(int16(v))
	default:
		return int32(v)
	}
}

// setLogicalFlags updates SF/ZF/PF after a shift; AF becomes undefined on
// real hardware and this core leaves it untouched, matching the ALU
// logical-op helpers.
func (s *Shift) setLogicalFlags(result uint32, w bus.Width) {
	s.Flags.commit(result, result, result, w, cachedPF|cachedZF|cachedSF, false)
}

// Rol rotates dst left by count bits. CF is left equal to the bit rotated
// into bit 0; OF is defined only for count==1.
func (s *Shift) Rol(dst uint32, count uint, w bus.Width) uint32 {
	bw := bitWidth(w)
	m := w.Mask()
	d := dst & m
	n := uint32(count) % bw
	if n == 0 {
		if count > 0 {
			s.Flags.SetCF(d&1 != 0)
		}
		return d
	}
	result := ((d << n) | (d >> (bw - n))) & m
	cf := result&1 != 0
	s.Flags.SetCF(cf)
	if count == 1 {
		s.Flags.SetOF((result&w.SignBit() != 0) != cf)
	}
	return result
}

// Ror rotates dst right by count bits.
func (s *Shift) Ror(dst uint32, count uint, w bus.Width) uint32 {
	bw := bitWidth(w)
	m := w.Mask()
	d := dst & m
	n := uint32(count) % bw
	if n == 0 {
		if count > 0 {
			s.Flags.SetCF(d&w.SignBit() != 0)
		}
		return d
	}
	result := ((d >> n) | (d << (bw - n))) & m
	cf := result&w.SignBit() != 0
	s.Flags.SetCF(cf)
	if count == 1 {
		top := (result & w.SignBit()) != 0
		second := (result<<1)&w.SignBit() != 0
		s.Flags.SetOF(top != second)
	}
	return result
}

// Rcl rotates dst left through CF by count bits.
func (s *Shift) Rcl(dst uint32, count uint, w bus.Width) uint32 {
	bw := bitWidth(w) + 1
	m := w.Mask()
	d := dst & m
	cf := uint32(0)
	if s.Flags.CF() {
		cf = 1
	}
	extended := d | (cf << bitWidth(w))
	n := uint32(count) % bw
	var result uint32
	if n == 0 {
		result = extended
	} else {
		result = ((extended << n) | (extended >> (bw - n))) & ((1 << bw) - 1)
	}
	newCF := (result>>bitWidth(w))&1 != 0
	s.Flags.SetCF(newCF)
	if count == 1 {
		s.Flags.SetOF((result&w.SignBit() != 0) != newCF)
	}
	return result & m
}

// Rcr rotates dst right through CF by count bits.
func (s *Shift) Rcr(dst uint32, count uint, w bus.Width) uint32 {
	bw := bitWidth(w) + 1
	m := w.Mask()
	d := dst & m
	cf := uint32(0)
	if s.Flags.CF() {
		cf = 1
	}
	extended := d | (cf << bitWidth(w))
	n := uint32(count) % bw
	var result uint32
	if n == 0 {
		result = extended
	} else {
		result = ((extended >> n) | (extended << (bw - n))) & ((1 << bw) - 1)
	}
	newCF := (result>>bitWidth(w))&1 != 0
	if count == 1 {
		top := result&w.SignBit() != 0
		s.Flags.SetOF(top != newCF)
	}
	s.Flags.SetCF(newCF)
	return result & m
}
