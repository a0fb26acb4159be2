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
	"testing"

	"github.com/jetsetilly/x86core/bus"
	"github.com/jetsetilly/x86core/bus/hostmem"
	"github.com/jetsetilly/x86core/segment"
)

type noopPorts struct{}

func (noopPorts) ReadPort(port uint16, w bus.Width) (uint32, error)     { return 0, nil }
func (noopPorts) WritePort(port uint16, w bus.Width, data uint32) error { return nil }

func newStackCPU(t *testing.T, model Model, big bool) *CPU {
	t.Helper()
	mem, err := hostmem.New(1 << 16)
	if err != nil {
		t.Fatalf("hostmem.New: %v", err)
	}
	t.Cleanup(func() { _ = mem.Close() })
	c := NewCPU(model, mem, noopPorts{}, nil)
	c.SS = segment.RealMode(0)
	c.SS.Big = big
	if big {
		c.Regs.SP.SetDWord(0xFFF0)
	} else {
		c.Regs.SP.SetWord(0xFFF0)
	}
	return c
}

func TestPushPopWordRoundTrip(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	startSP := c.currentSP()

	if err := c.push(0xBEEF, bus.Word); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := c.currentSP(); got != startSP-2 {
		t.Errorf("SP after push = %#x, want %#x", got, startSP-2)
	}

	v, err := c.pop(bus.Word)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if v != 0xBEEF {
		t.Errorf("popped %#x, want 0xbeef", v)
	}
	if got := c.currentSP(); got != startSP {
		t.Errorf("SP after pop = %#x, want %#x", got, startSP)
	}
}

func TestPushPopDwordRoundTrip(t *testing.T) {
	c := newStackCPU(t, I80386, true)
	startSP := c.currentSP()

	if err := c.push(0xDEADBEEF, bus.Dword); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := c.currentSP(); got != startSP-4 {
		t.Errorf("SP after push = %#x, want %#x", got, startSP-4)
	}

	v, err := c.pop(bus.Dword)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("popped %#x, want 0xdeadbeef", v)
	}
	if got := c.currentSP(); got != startSP {
		t.Errorf("SP after pop = %#x, want %#x", got, startSP)
	}
}

// TestPushWordSPWrapsAt16Bits pushes on a non-Big stack near the bottom of
// the 16-bit SP range and checks the decrement wraps within the word rather
// than bleeding into the upper 16 bits of the backing register.
func TestPushWordSPWrapsAt16Bits(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.Regs.SP.SetWord(0x0000)

	if err := c.push(0x1234, bus.Word); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := c.Regs.SP.Word(); got != 0xFFFE {
		t.Errorf("SP = %#04x, want 0xfffe", got)
	}
}

func TestPushSPQuirkPre80286PushesPostDecrement(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.Regs.SP.SetWord(0x0100)

	if err := c.pushSPQuirk(bus.Word); err != nil {
		t.Fatalf("pushSPQuirk: %v", err)
	}

	v, err := c.pop(bus.Word)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if v != 0x00FE {
		t.Errorf("pushed SP value = %#04x, want 0x00fe (post-decrement)", v)
	}
}

func TestPushSPQuirkProtectedModePushesPreDecrement(t *testing.T) {
	c := newStackCPU(t, I80286, false)
	c.Regs.SP.SetWord(0x0100)

	if err := c.pushSPQuirk(bus.Word); err != nil {
		t.Fatalf("pushSPQuirk: %v", err)
	}

	v, err := c.pop(bus.Word)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if v != 0x0100 {
		t.Errorf("pushed SP value = %#04x, want 0x0100 (pre-decrement)", v)
	}
}

// TestPushaPopaRoundTrip checks that Popa restores every GPR Pusha saved,
// and that it discards the SP slot rather than restoring the stale value.
func TestPushaPopaRoundTrip(t *testing.T) {
	c := newStackCPU(t, I80186, false)
	c.Regs.AX.SetWord(0x1111)
	c.Regs.CX.SetWord(0x2222)
	c.Regs.DX.SetWord(0x3333)
	c.Regs.BX.SetWord(0x4444)
	c.Regs.BP.SetWord(0x5555)
	c.Regs.SI.SetWord(0x6666)
	c.Regs.DI.SetWord(0x7777)

	if err := c.Pusha(bus.Word); err != nil {
		t.Fatalf("Pusha: %v", err)
	}

	c.Regs.AX.SetWord(0)
	c.Regs.CX.SetWord(0)
	c.Regs.DX.SetWord(0)
	c.Regs.BX.SetWord(0)
	c.Regs.BP.SetWord(0)
	c.Regs.SI.SetWord(0)
	c.Regs.DI.SetWord(0)
	c.Regs.SP.SetWord(c.Regs.SP.Word() - 0x10) // Popa must not depend on SP being untouched otherwise

	if err := c.Popa(bus.Word); err != nil {
		t.Fatalf("Popa: %v", err)
	}

	cases := []struct {
		name string
		got  uint16
		want uint16
	}{
		{"AX", c.Regs.AX.Word(), 0x1111},
		{"CX", c.Regs.CX.Word(), 0x2222},
		{"DX", c.Regs.DX.Word(), 0x3333},
		{"BX", c.Regs.BX.Word(), 0x4444},
		{"BP", c.Regs.BP.Word(), 0x5555},
		{"SI", c.Regs.SI.Word(), 0x6666},
		{"DI", c.Regs.DI.Word(), 0x7777},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %#04x, want %#04x", tc.name, tc.got, tc.want)
		}
	}
}

// TestPushaOrderOnStack checks the exact push order PUSHA uses by popping
// the raw values back off one at a time, rather than going through Popa.
func TestPushaOrderOnStack(t *testing.T) {
	c := newStackCPU(t, I80186, false)
	c.Regs.AX.SetWord(1)
	c.Regs.CX.SetWord(2)
	c.Regs.DX.SetWord(3)
	c.Regs.BX.SetWord(4)
	savedSP := c.Regs.SP.Word()
	c.Regs.BP.SetWord(5)
	c.Regs.SI.SetWord(6)
	c.Regs.DI.SetWord(7)

	if err := c.Pusha(bus.Word); err != nil {
		t.Fatalf("Pusha: %v", err)
	}

	want := []uint32{7, 6, 5, uint32(savedSP), 4, 3, 2, 1}
	for i, w := range want {
		v, err := c.pop(bus.Word)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if v != w {
			t.Errorf("pop %d = %#04x, want %#04x", i, v, w)
		}
	}
}

func TestNextSPHonoursStackWidth(t *testing.T) {
	c16 := newStackCPU(t, I8086, false)
	c16.Regs.SP.SetWord(0x0010)
	if got := c16.nextSP(2); got != 0x000E {
		t.Errorf("16-bit nextSP = %#x, want 0xe", got)
	}

	c32 := newStackCPU(t, I80386, true)
	c32.Regs.SP.SetDWord(0x00010000)
	if got := c32.nextSP(4); got != 0x0000FFFC {
		t.Errorf("32-bit nextSP = %#x, want 0xfffc", got)
	}
}
