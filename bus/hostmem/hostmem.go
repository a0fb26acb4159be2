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

//go:build !windows

// Package hostmem is a harness-only implementation of bus.Memory, backed by
// a real anonymous memory mapping rather than a plain byte slice. It exists
// for the functional_test package and for fault-injection tests that want
// to back the address space with something that can be made genuinely
// unreadable (via mprotect) to exercise the core's host-level "bus contract
// violation" path (spec.md section 7, category b) without inventing a
// fake bus. Production embedders supply their own bus.Memory.
package hostmem

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/jetsetilly/x86core/curated"
)

// Memory is a flat linear address space backed by an mmap'd region.
type Memory struct {
	region []byte
}

// New allocates size bytes of anonymous memory to serve as the address
// space. size should match the model's address width (1<<20, 1<<24 or
// 1<<32 - the last is impractical to actually back 1:1 and callers should
// instead map only the subset of the 80386's space a test needs).
func New(size int) (*Memory, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, curated.Errorf("hostmem: mmap failed: %v", err)
	}
	return &Memory{region: region}, nil
}

// Close releases the backing mapping.
func (m *Memory) Close() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	return err
}

// Protect changes the access permissions over [addr, addr+length), letting
// a test simulate a bus that faults on an address range.
func (m *Memory) Protect(addr, length uint32, writable bool) error {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mprotect(m.region[addr:addr+length], prot)
}

func (m *Memory) bounds(addr uint32, n uint32) error {
	if int(addr)+int(n) > len(m.region) {
		return curated.Errorf("hostmem: address out of range (%#x)", addr)
	}
	return nil
}

func (m *Memory) ReadByte(addr uint32) (uint8, error) {
	if err := m.bounds(addr, 1); err != nil {
		return 0, err
	}
	return m.region[addr], nil
}

func (m *Memory) ReadByteDirect(addr uint32) (uint8, error) {
	return m.ReadByte(addr)
}

func (m *Memory) ReadWord(addr uint32) (uint16, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.region[addr:]), nil
}

func (m *Memory) ReadDword(addr uint32) (uint32, error) {
	if err := m.bounds(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.region[addr:]), nil
}

func (m *Memory) WriteByte(addr uint32, data uint8) error {
	if err := m.bounds(addr, 1); err != nil {
		return err
	}
	m.region[addr] = data
	return nil
}

func (m *Memory) WriteWord(addr uint32, data uint16) error {
	if err := m.bounds(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.region[addr:], data)
	return nil
}

func (m *Memory) WriteDword(addr uint32, data uint32) error {
	if err := m.bounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.region[addr:], data)
	return nil
}
