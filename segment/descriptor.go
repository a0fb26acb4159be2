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

package segment

import "github.com/jetsetilly/x86core/curated"

// Selector error messages. Each names the offending selector so a fault
// handler can build an Intel-style error code (spec.md section 7) without
// re-parsing the original operand.
const (
	NullSelector     = "segment: null selector (%#04x)"
	LimitExceeded    = "segment: selector %#04x exceeds descriptor table limit"
	NotPresent       = "segment: descriptor for selector %#04x is not present"
	PrivilegeViolation = "segment: selector %#04x privilege check failed"
	WrongType        = "segment: selector %#04x has the wrong descriptor type for this load"
)

// Descriptor is a decoded 8-byte GDT/LDT/IDT entry (80286+; 8086-family
// real mode never consults one directly, but the same shape is reused to
// synthesise the pseudo-descriptor a real-mode segment load installs, so
// the rest of the core always deals with one struct regardless of mode).
type Descriptor struct {
	Base    uint32
	Limit   uint32 // already scaled by G (granularity) if applicable
	Type    uint8  // low 4 bits of the access byte
	CodeOrData bool // S bit: true = code/data segment, false = system descriptor (gate, TSS, LDT)
	DPL     uint8
	Present bool
	Big     bool // B/D bit: 32-bit default operand/stack size (80386)
	Granular bool // G bit: limit is in 4K pages, not bytes (80386)
}

// Selector is a 16-bit segment selector split into its three fields.
type Selector uint16

func (s Selector) Index() uint16 { return uint16(s) >> 3 }
func (s Selector) TI() bool      { return s&0x4 != 0 } // 1 = LDT, 0 = GDT
func (s Selector) RPL() uint8    { return uint8(s) & 0x3 }
func (s Selector) IsNull() bool  { return s&0xFFFC == 0 }

// DecodeDescriptor unpacks the 8 raw bytes of a GDT/LDT entry, low word
// first, per the Intel 80286/80386 descriptor layout.
func DecodeDescriptor(raw [8]byte) Descriptor {
	limitLow := uint32(raw[0]) | uint32(raw[1])<<8
	baseLow := uint32(raw[2]) | uint32(raw[3])<<8 | uint32(raw[4])<<16
	access := raw[5]
	limitHighAndFlags := raw[6]
	baseHigh := raw[7]

	limit := limitLow | (uint32(limitHighAndFlags&0x0F) << 16)
	base := baseLow | (uint32(baseHigh) << 24)

	d := Descriptor{
		Base:       base,
		Limit:      limit,
		Type:       access & 0x0F,
		CodeOrData: access&0x10 != 0,
		DPL:        (access >> 5) & 0x3,
		Present:    access&0x80 != 0,
		Big:        limitHighAndFlags&0x40 != 0,
		Granular:   limitHighAndFlags&0x80 != 0,
	}
	if d.Granular {
		d.Limit = (d.Limit << 12) | 0xFFF
	}
	return d
}

// IsCode reports whether the descriptor's type marks it as a code segment
// (as opposed to data, stack, or a system descriptor).
func (d Descriptor) IsCode() bool { return d.CodeOrData && d.Type&0x8 != 0 }

// IsConforming reports whether a code segment is conforming: callable
// from a lower-privilege caller without a privilege-level change.
func (d Descriptor) IsConforming() bool { return d.IsCode() && d.Type&0x4 != 0 }

// IsWritable reports whether a data segment may be written.
func (d Descriptor) IsWritable() bool { return d.CodeOrData && !d.IsCode() && d.Type&0x2 != 0 }

// IsReadable reports whether a code segment may be read as data.
func (d Descriptor) IsReadable() bool { return d.IsCode() && d.Type&0x2 != 0 }

// SystemType enumerates the system-descriptor (CodeOrData == false) subtypes
// this core recognises: LDT, task/call/interrupt/trap gates and TSS.
type SystemType uint8

const (
	TypeInvalid        SystemType = 0x0
	TypeTSS16Available  SystemType = 0x1
	TypeLDT            SystemType = 0x2
	TypeTSS16Busy       SystemType = 0x3
	TypeCallGate16     SystemType = 0x4
	TypeTaskGate       SystemType = 0x5
	TypeInterruptGate16 SystemType = 0x6
	TypeTrapGate16     SystemType = 0x7
	TypeTSS32Available  SystemType = 0x9
	TypeTSS32Busy       SystemType = 0xB
	TypeCallGate32     SystemType = 0xC
	TypeInterruptGate32 SystemType = 0xE
	TypeTrapGate32     SystemType = 0xF
)

// SystemType classifies a non-code/data descriptor's Type field. Only
// meaningful when d.CodeOrData is false.
func (d Descriptor) SystemType() SystemType { return SystemType(d.Type) }

// ErrNullSelector and friends let fault construction test the specific
// failure a Loader reported without string matching.
func errSelector(pattern string, sel Selector) error {
	return curated.Errorf(pattern, uint16(sel))
}
