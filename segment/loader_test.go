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

package segment_test

import (
	"testing"

	"github.com/jetsetilly/x86core/bus/hostmem"
	"github.com/jetsetilly/x86core/segment"
)

func writeDescriptor(t *testing.T, mem *hostmem.Memory, base uint32, limit uint32, access uint8, flags uint8, descBase uint32) {
	t.Helper()
	raw := [8]byte{
		byte(limit), byte(limit >> 8),
		byte(descBase), byte(descBase >> 8), byte(descBase >> 16),
		access,
		byte(limit>>16) | flags,
		byte(descBase >> 24),
	}
	for i, b := range raw {
		if err := mem.WriteByte(base+uint32(i), b); err != nil {
			t.Fatalf("WriteByte: %v", err)
		}
	}
}

func TestRealModeLoadSynthesisesShadow(t *testing.T) {
	mem, err := hostmem.New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mem.Close()

	l := segment.NewLoader(mem)
	sh, err := l.LoadData(segment.Selector(0x1234), 0, false)
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if sh.Base != 0x12340 {
		t.Errorf("got base %#x, want 0x12340", sh.Base)
	}
	if sh.Limit != 0xFFFF {
		t.Errorf("got limit %#x, want 0xffff", sh.Limit)
	}
}

func TestProtectedModeDataLoad(t *testing.T) {
	mem, err := hostmem.New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mem.Close()

	// descriptor 1: present, DPL 0, writable data segment based at 0x2000
	writeDescriptor(t, mem, 8, 0x0FFF, 0x92, 0x00, 0x2000)

	l := segment.NewLoader(mem)
	l.Protected = true
	l.GDT = segment.Table{Base: 0, Limit: 0xFFFF}

	sh, err := l.LoadData(segment.Selector(0x08), 0, false)
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if sh.Base != 0x2000 {
		t.Errorf("got base %#x, want 0x2000", sh.Base)
	}
	if !sh.Writable {
		t.Errorf("expected segment to be writable")
	}
}

func TestProtectedModePrivilegeViolation(t *testing.T) {
	mem, err := hostmem.New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mem.Close()

	// DPL 0 data segment, accessed at CPL 3: should fail.
	writeDescriptor(t, mem, 8, 0x0FFF, 0x92, 0x00, 0x2000)

	l := segment.NewLoader(mem)
	l.Protected = true
	l.GDT = segment.Table{Base: 0, Limit: 0xFFFF}

	if _, err := l.LoadData(segment.Selector(0x08|3), 3, false); err == nil {
		t.Errorf("expected privilege violation")
	}
}

func TestNullSelectorRejectedForSS(t *testing.T) {
	mem, err := hostmem.New(1 << 12)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mem.Close()

	l := segment.NewLoader(mem)
	l.Protected = true

	if _, err := l.LoadData(segment.Selector(0), 0, true); err == nil {
		t.Errorf("expected null selector to be rejected for SS")
	}
}
