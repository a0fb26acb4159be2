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
	"math/bits"

	"github.com/jetsetilly/x86core/bus"
)

// EFLAGS/PSW bit positions. Named PS (processor status) throughout, per
// spec.md section 3, rather than the Intel "EFLAGS" name, to stay neutral
// across the 8086-to-80386 range this core spans.
const (
	psCF   uint32 = 1 << 0
	psPF   uint32 = 1 << 2
	psAF   uint32 = 1 << 4
	psZF   uint32 = 1 << 6
	psSF   uint32 = 1 << 7
	psTF   uint32 = 1 << 8
	psIF   uint32 = 1 << 9
	psDF   uint32 = 1 << 10
	psOF   uint32 = 1 << 11
	psIOPL uint32 = 3 << 12
	psNT   uint32 = 1 << 14
	psRF   uint32 = 1 << 16
	psVM   uint32 = 1 << 17
)

// resultType packs a width marker (the operand width's sign bit, from
// bus.Width.SignBit — 0x80/0x8000/0x80000000) in its high bits together
// with a low 6-bit mask of which of {CF,PF,AF,ZF,SF,OF} the cached result
// words currently represent. The two never collide: the narrowest width
// marker is bit 7, the cache mask only ever uses bits 0-5.
const (
	cachedCF  uint32 = 1 << 0
	cachedPF  uint32 = 1 << 1
	cachedAF  uint32 = 1 << 2
	cachedZF  uint32 = 1 << 3
	cachedSF  uint32 = 1 << 4
	cachedOF  uint32 = 1 << 5
	cachedAll uint32 = cachedCF | cachedPF | cachedAF | cachedZF | cachedSF | cachedOF
	cacheMask uint32 = 0x3F
)

// FlagEngine is the lazy flag cache of spec.md section 3: CF, PF, AF, ZF,
// SF and OF are not computed by every ALU helper. Instead the helper
// records the destination, source and result operands plus a width/cache
// marker, and the six status flags are derived from those on demand. TF,
// IF, DF, IOPL, NT, RF and VM are stored directly since they are never
// derived from an ALU result.
type FlagEngine struct {
	resultDst, resultSrc, resultArith uint32
	resultType                        uint32
	subtract                          bool

	// stored holds the materialised value of any of {CF,PF,AF,ZF,SF,OF}
	// that is not currently represented by the cache above, in PS bit
	// positions. commit() flushes a flag here before the cache that used
	// to represent it is overwritten.
	stored uint32

	// direct holds every bit of PS that the lazy cache never models:
	// TF, IF, DF, IOPL, NT, RF, VM.
	direct uint32
}

// commit records the operands of an ALU/logic helper and marks which of
// the six status flags that helper leaves decodable from them. Any flag
// that was cached under the previous resultType but is not part of
// `cached` here is materialised into `stored` first, per the invariant in
// spec.md section 3 ("any PS read must first materialise any cached flag
// absent from the new cache type").
func (f *FlagEngine) commit(dst, src, arith uint32, w bus.Width, cached uint32, subtract bool) {
	lost := (f.resultType & cacheMask) &^ cached
	if lost != 0 {
		f.flush(lost)
	}

	f.resultDst = dst
	f.resultSrc = src
	f.resultArith = arith
	f.resultType = w.SignBit() | cached
	f.subtract = subtract

	// the flags that the new cache covers are no longer backed by `stored`
	f.stored &^= cachedToPS(cached)
}

// flush materialises the given subset of cached flag bits (a combination
// of cachedCF..cachedOF) into `stored`, without otherwise disturbing the
// cache. Used by commit before a cache replacement would otherwise lose
// information.
func (f *FlagEngine) flush(which uint32) {
	var v uint32
	if which&cachedCF != 0 && f.computeCF() {
		v |= psCF
	}
	if which&cachedPF != 0 && f.computePF() {
		v |= psPF
	}
	if which&cachedAF != 0 && f.computeAF() {
		v |= psAF
	}
	if which&cachedZF != 0 && f.computeZF() {
		v |= psZF
	}
	if which&cachedSF != 0 && f.computeSF() {
		v |= psSF
	}
	if which&cachedOF != 0 && f.computeOF() {
		v |= psOF
	}

	// clear, then set, the PS bits for the flags being flushed
	f.stored &^= cachedToPS(which)
	f.stored |= v
}

func cachedToPS(which uint32) uint32 {
	var v uint32
	if which&cachedCF != 0 {
		v |= psCF
	}
	if which&cachedPF != 0 {
		v |= psPF
	}
	if which&cachedAF != 0 {
		v |= psAF
	}
	if which&cachedZF != 0 {
		v |= psZF
	}
	if which&cachedSF != 0 {
		v |= psSF
	}
	if which&cachedOF != 0 {
		v |= psOF
	}
	return v
}

// arithOperands returns the (d, s, a) triple the CF/AF/OF formulas take.
// A subtraction d-s=a is evaluated as the addition a+s=d, whose carry out
// is the subtraction's borrow and whose overflow is the subtraction's
// overflow.
func (f *FlagEngine) arithOperands() (d, s, a uint32) {
	if f.subtract {
		return f.resultArith, f.resultSrc, f.resultDst
	}
	return f.resultDst, f.resultSrc, f.resultArith
}

func (f *FlagEngine) typeMask() uint32 {
	return f.resultType &^ cacheMask
}

func (f *FlagEngine) computeCF() bool {
	d, s, a := f.arithOperands()
	t := f.typeMask()
	return (d^((d^s)&(s^a)))&t != 0
}

func (f *FlagEngine) computePF() bool {
	return bits.OnesCount8(uint8(f.resultArith))%2 == 0
}

func (f *FlagEngine) computeAF() bool {
	d, s, a := f.arithOperands()
	return (a^(d^s))&0x10 != 0
}

func (f *FlagEngine) computeZF() bool {
	t := f.typeMask()
	return f.resultArith&((t-1)|t) == 0
}

func (f *FlagEngine) computeSF() bool {
	return f.resultArith&f.typeMask() != 0
}

func (f *FlagEngine) computeOF() bool {
	d, s, a := f.arithOperands()
	t := f.typeMask()
	return ((d^a)&(s^a))&t != 0
}

// CF, PF, AF, ZF, SF, OF read the individual status flags, computing them
// from the cache when the cache currently represents them and falling
// back to the materialised value otherwise.
func (f *FlagEngine) CF() bool { return f.flag(cachedCF, psCF) }
func (f *FlagEngine) PF() bool { return f.flag(cachedPF, psPF) }
func (f *FlagEngine) AF() bool { return f.flag(cachedAF, psAF) }
func (f *FlagEngine) ZF() bool { return f.flag(cachedZF, psZF) }
func (f *FlagEngine) SF() bool { return f.flag(cachedSF, psSF) }
func (f *FlagEngine) OF() bool { return f.flag(cachedOF, psOF) }

func (f *FlagEngine) flag(cbit, psbit uint32) bool {
	if f.resultType&cbit != 0 {
		switch cbit {
		case cachedCF:
			return f.computeCF()
		case cachedPF:
			return f.computePF()
		case cachedAF:
			return f.computeAF()
		case cachedZF:
			return f.computeZF()
		case cachedSF:
			return f.computeSF()
		case cachedOF:
			return f.computeOF()
		}
	}
	return f.stored&psbit != 0
}

// SetCF sets CF explicitly (TEST/AND/OR/XOR force CF=0; shift/rotate
// helpers set CF to the bit rotated/shifted out) and removes it from
// whatever the cache currently represents.
func (f *FlagEngine) SetCF(v bool) { f.setDirectFlag(cachedCF, psCF, v) }
func (f *FlagEngine) SetOF(v bool) { f.setDirectFlag(cachedOF, psOF, v) }
func (f *FlagEngine) SetAF(v bool) { f.setDirectFlag(cachedAF, psAF, v) }

func (f *FlagEngine) setDirectFlag(cbit, psbit uint32, v bool) {
	f.resultType &^= cbit
	f.stored &^= psbit
	if v {
		f.stored |= psbit
	}
}

// --- directly-stored (non-ALU) flags ---

func (f *FlagEngine) TF() bool   { return f.direct&psTF != 0 }
func (f *FlagEngine) IF() bool   { return f.direct&psIF != 0 }
func (f *FlagEngine) DF() bool   { return f.direct&psDF != 0 }
func (f *FlagEngine) NT() bool   { return f.direct&psNT != 0 }
func (f *FlagEngine) RF() bool   { return f.direct&psRF != 0 }
func (f *FlagEngine) VM() bool   { return f.direct&psVM != 0 }
func (f *FlagEngine) IOPL() uint { return uint((f.direct & psIOPL) >> 12) }

func (f *FlagEngine) setDirectBit(bit uint32, v bool) {
	f.direct &^= bit
	if v {
		f.direct |= bit
	}
}

func (f *FlagEngine) SetTF(v bool) { f.setDirectBit(psTF, v) }
func (f *FlagEngine) SetIF(v bool) { f.setDirectBit(psIF, v) }
func (f *FlagEngine) SetDF(v bool) { f.setDirectBit(psDF, v) }
func (f *FlagEngine) SetNT(v bool) { f.setDirectBit(psNT, v) }
func (f *FlagEngine) SetRF(v bool) { f.setDirectBit(psRF, v) }
func (f *FlagEngine) SetVM(v bool) { f.setDirectBit(psVM, v) }
func (f *FlagEngine) SetIOPL(v uint) {
	f.direct = (f.direct &^ psIOPL) | ((uint32(v) << 12) & psIOPL)
}

// PS materialises the full processor status word, masked and OR'd per
// spec.md section 3 invariant (a): "PS as externally read is always equal
// to the materialisation of cached flags plus directly-stored bits, masked
// by the CPU model's PS_DIRECT and OR'd with PS_SET."
func (f *FlagEngine) PS(m Model) uint32 {
	var v uint32
	if f.CF() {
		v |= psCF
	}
	if f.PF() {
		v |= psPF
	}
	if f.AF() {
		v |= psAF
	}
	if f.ZF() {
		v |= psZF
	}
	if f.SF() {
		v |= psSF
	}
	if f.OF() {
		v |= psOF
	}
	v |= f.direct

	return (v & m.psDirect()) | m.psSet()
}

// SetPS loads the full processor status word (POPF, IRET, task switch
// restore). All six status flags become directly-stored; the lazy cache
// is cleared.
func (f *FlagEngine) SetPS(v uint32) {
	f.resultType = 0
	f.stored = v & (psCF | psPF | psAF | psZF | psSF | psOF)
	f.direct = v &^ (psCF | psPF | psAF | psZF | psSF | psOF)
}
