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
	"github.com/jetsetilly/x86core/segment"
	"github.com/jetsetilly/x86core/snapshot"
)

// opFlags bit positions for the packed OpFlags/OpPrefixes fields a
// Record carries. Only the bits that can legitimately survive to the
// next instruction boundary (LOCK/REPZ/REPNZ, the two size-override
// prefixes) round-trip meaningfully; the pure per-instruction dispatcher
// signals (NOINTR/NOWRITE/NOREAD) are captured too, for exactness, even
// though a snapshot is never taken mid-instruction in this core's own
// use of StepCPU.
const (
	flagLock uint32 = 1 << iota
	flagRepz
	flagRepnz
	flagNoIntr
	flagNoWrite
	flagNoRead
)

const (
	prefixDataSize32 uint32 = 1 << iota
	prefixAddrSize32
)

// Snapshot captures this CPU's complete architectural state into a flat,
// machine-independent Record (spec.md section 6). A segment-override
// prefix in flight (opFlags.segOverride) is not part of the record: step()
// clears all prefix state at the start of every instruction, so an
// override never outlives the instruction it prefixed.
func (c *CPU) Snapshot() snapshot.Record {
	return snapshot.Record{
		Model: int(c.Model),
		Flags: snapshot.FlagRecord{
			ResultDst:   c.Flags.resultDst,
			ResultSrc:   c.Flags.resultSrc,
			ResultArith: c.Flags.resultArith,
			ResultType:  c.Flags.resultType,
			Subtract:    c.Flags.subtract,
			Stored:      c.Flags.stored,
			Direct:      c.Flags.direct,
		},

		AX: c.Regs.AX.DWord(), CX: c.Regs.CX.DWord(),
		DX: c.Regs.DX.DWord(), BX: c.Regs.BX.DWord(),
		SP: c.Regs.SP.DWord(), BP: c.Regs.BP.DWord(),
		SI: c.Regs.SI.DWord(), DI: c.Regs.DI.DWord(),
		IP: c.IP,

		CS: segmentToRecord(c.CS), DS: segmentToRecord(c.DS),
		ES: segmentToRecord(c.ES), SS: segmentToRecord(c.SS),
		FS: segmentToRecord(c.FS), GS: segmentToRecord(c.GS),
		CPL: c.CPL,

		CR0: c.CR0, CR2: c.CR2, CR3: c.CR3,

		GDT: tableToRecord(c.GDT), IDT: tableToRecord(c.IDT),
		LDTSel: uint16(c.LDTSel), LDT: tableToRecord(c.LDT),
		TRSel: uint16(c.TRSel), TR: tableToRecord(c.TR),

		IntFlags:   c.intFlags,
		OpFlags:    packOpFlags(c.prefix),
		OpPrefixes: packOpPrefixes(c.prefix),
		NFault:     int32(c.pendingFault),

		Cycles: c.cycles,
	}
}

// Restore replaces this CPU's entire architectural state with the given
// Record, the inverse of Snapshot. The Loader's Protected flag is left
// untouched: whether the restored state is real or protected mode is
// implied by the caller (typically set immediately before or after via
// SetProtMode), not carried in the record itself, since a Loader isn't
// owned by the record.
func (c *CPU) Restore(r snapshot.Record) {
	c.Model = Model(r.Model)

	c.Flags.resultDst = r.Flags.ResultDst
	c.Flags.resultSrc = r.Flags.ResultSrc
	c.Flags.resultArith = r.Flags.ResultArith
	c.Flags.resultType = r.Flags.ResultType
	c.Flags.subtract = r.Flags.Subtract
	c.Flags.stored = r.Flags.Stored
	c.Flags.direct = r.Flags.Direct

	c.Regs.AX.SetDWord(r.AX)
	c.Regs.CX.SetDWord(r.CX)
	c.Regs.DX.SetDWord(r.DX)
	c.Regs.BX.SetDWord(r.BX)
	c.Regs.SP.SetDWord(r.SP)
	c.Regs.BP.SetDWord(r.BP)
	c.Regs.SI.SetDWord(r.SI)
	c.Regs.DI.SetDWord(r.DI)
	c.IP = r.IP

	c.CS = segmentFromRecord(r.CS)
	c.DS = segmentFromRecord(r.DS)
	c.ES = segmentFromRecord(r.ES)
	c.SS = segmentFromRecord(r.SS)
	c.FS = segmentFromRecord(r.FS)
	c.GS = segmentFromRecord(r.GS)
	c.CPL = r.CPL

	c.CR0, c.CR2, c.CR3 = r.CR0, r.CR2, r.CR3

	c.GDT = tableFromRecord(r.GDT)
	c.IDT = tableFromRecord(r.IDT)
	c.LDTSel = segment.Selector(r.LDTSel)
	c.LDT = tableFromRecord(r.LDT)
	c.TRSel = segment.Selector(r.TRSel)
	c.TR = tableFromRecord(r.TR)

	c.intFlags = r.IntFlags
	c.prefix = unpackOpFlags(r.OpFlags, r.OpPrefixes)
	c.pendingFault = int(r.NFault)

	c.cycles = r.Cycles
}

func segmentToRecord(s segment.Shadow) snapshot.SegmentRecord {
	return snapshot.SegmentRecord{
		Selector:   uint16(s.Selector),
		Base:       s.Base,
		Limit:      s.Limit,
		DPL:        s.DPL,
		Writable:   s.Writable,
		Readable:   s.Readable,
		Conforming: s.Conforming,
		Code:       s.Code,
		Big:        s.Big,
	}
}

func segmentFromRecord(r snapshot.SegmentRecord) segment.Shadow {
	return segment.Shadow{
		Selector:   segment.Selector(r.Selector),
		Base:       r.Base,
		Limit:      r.Limit,
		DPL:        r.DPL,
		Writable:   r.Writable,
		Readable:   r.Readable,
		Conforming: r.Conforming,
		Code:       r.Code,
		Big:        r.Big,
	}
}

func tableToRecord(t segment.Table) snapshot.TableRecord {
	return snapshot.TableRecord{Base: t.Base, Limit: t.Limit}
}

func tableFromRecord(r snapshot.TableRecord) segment.Table {
	return segment.Table{Base: r.Base, Limit: r.Limit}
}

func packOpFlags(p opFlags) uint32 {
	var v uint32
	if p.lock {
		v |= flagLock
	}
	if p.repz {
		v |= flagRepz
	}
	if p.repnz {
		v |= flagRepnz
	}
	if p.noIntr {
		v |= flagNoIntr
	}
	if p.noWrite {
		v |= flagNoWrite
	}
	if p.noRead {
		v |= flagNoRead
	}
	return v
}

func packOpPrefixes(p opFlags) uint32 {
	var v uint32
	if p.dataSize32 {
		v |= prefixDataSize32
	}
	if p.addrSize32 {
		v |= prefixAddrSize32
	}
	return v
}

func unpackOpFlags(flags, prefixes uint32) opFlags {
	return opFlags{
		lock:       flags&flagLock != 0,
		repz:       flags&flagRepz != 0,
		repnz:      flags&flagRepnz != 0,
		noIntr:     flags&flagNoIntr != 0,
		noWrite:    flags&flagNoWrite != 0,
		noRead:     flags&flagNoRead != 0,
		dataSize32: prefixes&prefixDataSize32 != 0,
		addrSize32: prefixes&prefixAddrSize32 != 0,
	}
}
