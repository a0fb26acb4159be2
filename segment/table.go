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

import "github.com/jetsetilly/x86core/bus"

// Table is the base/limit pair of a GDTR, LDTR or IDTR. Limit is the
// highest valid byte offset, matching the register's own encoding.
type Table struct {
	Base  uint32
	Limit uint16
}

// Fetch reads the 8-byte descriptor at the given selector's index,
// returning a LimitExceeded error if the index falls outside the table.
func (t Table) Fetch(mem bus.Memory, sel Selector) (Descriptor, error) {
	offset := uint32(sel.Index()) * 8
	if offset+7 > uint32(t.Limit) {
		return Descriptor{}, errSelector(LimitExceeded, sel)
	}

	var raw [8]byte
	for i := range raw {
		b, err := mem.ReadByte(t.Base + offset + uint32(i))
		if err != nil {
			return Descriptor{}, err
		}
		raw[i] = b
	}
	return DecodeDescriptor(raw), nil
}
