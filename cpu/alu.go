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

// ALU is the width-parametric arithmetic/logic core spec.md section 3
// describes: every ADD/ADC/SUB/SBB/CMP/INC/DEC/NEG/AND/OR/XOR/TEST helper
// funnels through here so there is exactly one place that knows how to
// mask a result to 8/16/32 bits and commit it to the flag cache.
type ALU struct {
	Flags *FlagEngine
}

func (a *ALU) mask(w bus.Width) uint32 { return w.Mask() }

// Add computes dst+src (+carryIn for ADC) at the given width, commits the
// flag cache and returns the masked result.
func (a *ALU) Add(dst, src uint32, w bus.Width, carryIn bool) uint32 {
	m := a.mask(w)
	d, s := dst&m, src&m
	c := uint32(0)
	if carryIn {
		c = 1
	}
	result := (d + s + c) & m
	a.Flags.commit(d, s, result, w, cachedAll, false)
	return result
}

// Sub computes dst-src (-borrowIn for SBB/CMP) at the given width, commits
// the flag cache and returns the masked result.
func (a *ALU) Sub(dst, src uint32, w bus.Width, borrowIn bool) uint32 {
	m := a.mask(w)
	d, s := dst&m, src&m
	b := uint32(0)
	if borrowIn {
		b = 1
	}
	result := (d - s - b) & m
	a.Flags.commit(d, s, result, w, cachedAll, true)
	return result
}

// Cmp performs Sub but discards the arithmetic result, returning only the
// flags it would have produced; callers that need the result value for
// the destination (SUB) call Sub directly.
func (a *ALU) Cmp(dst, src uint32, w bus.Width) { a.Sub(dst, src, w, false) }

// Inc and Dec compute dst+1/dst-1 at the given width. Per spec.md section
// 3, INC/DEC leave CF untouched: the pre-existing CF is flushed into
// stored state before the commit so it survives the cache swap, and the
// new cache explicitly excludes CF.
func (a *ALU) Inc(dst uint32, w bus.Width) uint32 {
	m := a.mask(w)
	cf := a.Flags.CF()
	result := (dst + 1) & m
	a.Flags.commit(dst&m, 1, result, w, cachedAll&^cachedCF, false)
	a.Flags.SetCF(cf)
	return result
}

func (a *ALU) Dec(dst uint32, w bus.Width) uint32 {
	m := a.mask(w)
	cf := a.Flags.CF()
	result := (dst - 1) & m
	a.Flags.commit(dst&m, 1, result, w, cachedAll&^cachedCF, true)
	a.Flags.SetCF(cf)
	return result
}

// Neg computes 0-dst. CF is cleared rather than left cached only when the
// operand was zero; the commit's own CF formula already reduces to that
// case with src==dst==0's two's complement identity, so no special case
// is needed here.
func (a *ALU) Neg(dst uint32, w bus.Width) uint32 {
	return a.Sub(0, dst, w, false)
}

// And, Or, Xor compute the bitwise result, clear CF and OF (logical ops
// never set them) and commit the remaining four flags from the result.
func (a *ALU) And(dst, src uint32, w bus.Width) uint32 { return a.logic(dst&src, w) }
func (a *ALU) Or(dst, src uint32, w bus.Width) uint32  { return a.logic(dst|src, w) }
func (a *ALU) Xor(dst, src uint32, w bus.Width) uint32 { return a.logic(dst^src, w) }

// Test performs And but discards the result value.
func (a *ALU) Test(dst, src uint32, w bus.Width) { a.logic(dst&src, w) }

func (a *ALU) logic(result uint32, w bus.Width) uint32 {
	m := a.mask(w)
	result &= m
	// AF is undefined after a logical op on real silicon; this core
	// leaves it unmodified, matching the 8086/286/386 behaviour of not
	// touching AF for AND/OR/XOR/TEST.
	a.Flags.commit(result, result, result, w, cachedPF|cachedZF|cachedSF, false)
	a.Flags.SetCF(false)
	a.Flags.SetOF(false)
	return result
}
