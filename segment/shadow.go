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

// Shadow is the cached state every segment register carries regardless of
// mode, per spec.md section 4.2: the visible selector, plus the base,
// limit and access rights the segmentation unit consults on every memory
// reference without re-walking a descriptor table. In real mode this is
// synthesised directly from the selector (Base = selector<<4, Limit =
// 0xFFFF, access rights wide open); in protected mode it is loaded from a
// fetched Descriptor and stays unchanged until the next load, even if the
// descriptor table entry is later edited in memory — matching real
// hardware's behaviour of caching the descriptor, not re-reading it.
type Shadow struct {
	Selector Selector
	Base     uint32
	Limit    uint32
	DPL      uint8
	Writable bool
	Readable bool
	Conforming bool
	Code     bool
	Big      bool
}

// RealMode builds the shadow state a plain "mov seg, r16" installs when
// the CPU has no protected-mode descriptor table to consult.
func RealMode(sel uint16) Shadow {
	return Shadow{
		Selector: Selector(sel),
		Base:     uint32(sel) << 4,
		Limit:    0xFFFF,
		Writable: true,
		Readable: true,
	}
}

// FromDescriptor builds the shadow state a protected-mode segment load
// installs after privilege checks have already passed.
func FromDescriptor(sel Selector, d Descriptor) Shadow {
	return Shadow{
		Selector:   sel,
		Base:       d.Base,
		Limit:      d.Limit,
		DPL:        d.DPL,
		Writable:   d.IsWritable(),
		Readable:   d.IsCode() && d.IsReadable() || !d.IsCode(),
		Conforming: d.IsConforming(),
		Code:       d.IsCode(),
		Big:        d.Big,
	}
}

// Contains reports whether offset..offset+size-1 falls within the
// segment's limit. Expand-down data segments are not modelled since
// spec.md section 4.2 places them out of scope for this core's first
// pass; every segment here is treated as expand-up.
func (s Shadow) Contains(offset uint32, size uint32) bool {
	if size == 0 {
		return true
	}
	return uint64(offset)+uint64(size)-1 <= uint64(s.Limit)
}

// Linear turns a segment-relative offset into a linear address.
func (s Shadow) Linear(offset uint32) uint32 {
	return s.Base + offset
}
