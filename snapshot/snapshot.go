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

// Package snapshot defines the flat, persistable record of a CPU's
// architectural state (spec.md section 6, "persisted state layout"). It
// holds only plain data: no bus.Memory, no segment.Loader, nothing that
// depends on the machine the core is plugged into, so a Record can be
// written to a file, sent over the wire for differential regression
// testing, or handed to the rewind machinery without the recipient
// needing to link the cpu package at all. Converting a live *cpu.CPU to
// and from a Record is the cpu package's job (cpu/snapshot.go), since
// only it can reach the state's unexported fields.
package snapshot

// SegmentRecord is one segment register's visible selector plus the
// hidden base/limit/access-rights state the segmentation unit caches
// alongside it (spec.md section 4.2).
type SegmentRecord struct {
	Selector   uint16
	Base       uint32
	Limit      uint32
	DPL        uint8
	Writable   bool
	Readable   bool
	Conforming bool
	Code       bool
	Big        bool
}

// TableRecord is a descriptor table's base/limit pair (GDT, IDT, and the
// resolved LDT/TSS tables).
type TableRecord struct {
	Base  uint32
	Limit uint16
}

// FlagRecord is the lazy flag engine's cache state verbatim: the three
// result operands, the width/cache-mask marker, the subtract flag, and
// the materialised stored/direct bits (spec.md section 3). Capturing
// these rather than just the externally-visible PS word means a restored
// CPU reproduces the exact same lazy-vs-materialised split the original
// had, not just the same flag values.
type FlagRecord struct {
	ResultDst, ResultSrc, ResultArith, ResultType uint32
	Subtract                                      bool
	Stored, Direct                                uint32
}

// Record is the complete flat snapshot spec.md section 6 describes:
// model, PS/flag cache, all GP registers, six segment registers with
// their hidden state, control/debug registers, the three descriptor
// tables plus LDT/TR, and the small pieces of in-flight dispatcher state
// (intFlags, opFlags, opPrefixes, nFault) that must survive a snapshot
// taken mid-burst.
type Record struct {
	Model int

	Flags FlagRecord

	AX, CX, DX, BX, SP, BP, SI, DI uint32
	IP                             uint32

	CS, DS, ES, SS, FS, GS SegmentRecord
	CPL                    uint8

	CR0, CR2, CR3 uint32

	GDT, IDT TableRecord
	LDTSel   uint16
	LDT      TableRecord
	TRSel    uint16
	TR       TableRecord

	IntFlags   uint32
	OpFlags    uint32
	OpPrefixes uint32
	NFault     int32

	Cycles uint64
}
