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
	"github.com/jetsetilly/x86core/segment"
)

// TestDecodeModRMRegisterForm checks mod=3, which resolves rm directly to a
// register view rather than a memory operand.
func TestDecodeModRMRegisterForm(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.CS = segment.RealMode(0)
	c.IP = 0x100
	c.Mem.WriteByte(0x100, 0xC3) // mod=11, reg=000, rm=011 (BX)

	m, err := c.decodeModRM(bus.Word)
	if err != nil {
		t.Fatalf("decodeModRM: %v", err)
	}
	if m.rm16.isMemory {
		t.Fatalf("mod=3 resolved to a memory operand")
	}
	if m.rm16.reg != c.Regs.BX {
		t.Errorf("rm register = %s, want BX", m.rm16.reg.Label())
	}
	if m.reg != 0 {
		t.Errorf("reg field = %d, want 0", m.reg)
	}
}

// TestDecodeModRMDirectAddress checks mod=0, rm=6, the direct-address
// special case that reads a following word rather than BX/BP+SI/DI.
func TestDecodeModRMDirectAddress(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.CS = segment.RealMode(0)
	c.DS = segment.RealMode(0x1000)
	c.IP = 0x100
	c.Mem.WriteByte(0x100, 0x06) // mod=00, reg=000, rm=110
	c.Mem.WriteWord(0x101, 0x0050)

	m, err := c.decodeModRM(bus.Word)
	if err != nil {
		t.Fatalf("decodeModRM: %v", err)
	}
	if !m.rm16.isMemory {
		t.Fatalf("mod=0,rm=6 did not resolve to memory")
	}
	if want := c.DS.Linear(0x0050); m.rm16.linear != want {
		t.Errorf("linear = %#x, want %#x", m.rm16.linear, want)
	}
}

// TestDecodeModRMBPDefaultsToStackSegment checks that BP-relative
// effective addresses default to SS, not DS, absent a segment override.
func TestDecodeModRMBPDefaultsToStackSegment(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.CS = segment.RealMode(0)
	c.DS = segment.RealMode(0x1000)
	c.SS = segment.RealMode(0x2000)
	c.Regs.BP.SetWord(0x0010)
	c.IP = 0x100
	c.Mem.WriteByte(0x100, 0x46) // mod=01, reg=000, rm=110 (BP+disp8)
	c.Mem.WriteByte(0x101, 0x05) // disp8 = +5

	m, err := c.decodeModRM(bus.Word)
	if err != nil {
		t.Fatalf("decodeModRM: %v", err)
	}
	if want := c.SS.Linear(0x0015); m.rm16.linear != want {
		t.Errorf("linear = %#x, want %#x (SS-relative)", m.rm16.linear, want)
	}
}

// TestDecodeModRMSegmentOverrideAppliesToBP checks that a segment-override
// prefix beats the BP-defaults-to-SS rule.
func TestDecodeModRMSegmentOverrideAppliesToBP(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.CS = segment.RealMode(0)
	c.ES = segment.RealMode(0x3000)
	c.SS = segment.RealMode(0x2000)
	c.Regs.BP.SetWord(0x0010)
	seg := c.ES
	c.prefix.segOverride = &seg
	c.IP = 0x100
	c.Mem.WriteByte(0x100, 0x46)
	c.Mem.WriteByte(0x101, 0x05)

	m, err := c.decodeModRM(bus.Word)
	if err != nil {
		t.Fatalf("decodeModRM: %v", err)
	}
	if want := c.ES.Linear(0x0015); m.rm16.linear != want {
		t.Errorf("linear = %#x, want %#x (ES override)", m.rm16.linear, want)
	}
}

// TestDecodeModRMBaseIndexWraps16Bits checks that BX+SI-style effective
// address components wrap within 16 bits rather than carrying out.
func TestDecodeModRMBaseIndexWraps16Bits(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	c.CS = segment.RealMode(0)
	c.DS = segment.RealMode(0)
	c.Regs.BX.SetWord(0xFFFF)
	c.Regs.SI.SetWord(0x0002)
	c.IP = 0x100
	c.Mem.WriteByte(0x100, 0x00) // mod=00, reg=000, rm=000 (BX+SI)

	m, err := c.decodeModRM(bus.Word)
	if err != nil {
		t.Fatalf("decodeModRM: %v", err)
	}
	if want := c.DS.Linear(0x0001); m.rm16.linear != want {
		t.Errorf("linear = %#x, want %#x (wrapped BX+SI)", m.rm16.linear, want)
	}
}

func TestReadWriteOperandRoundTripMemory(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	op := operand{isMemory: true, linear: 0x500}

	if err := c.writeOperand(op, 0xABCD, bus.Word); err != nil {
		t.Fatalf("writeOperand: %v", err)
	}
	v, err := c.readOperand(op, bus.Word)
	if err != nil {
		t.Fatalf("readOperand: %v", err)
	}
	if v != 0xABCD {
		t.Errorf("readOperand = %#x, want 0xabcd", v)
	}
}

func TestReadWriteOperandRoundTripRegisterViews(t *testing.T) {
	c := newStackCPU(t, I8086, false)

	lowOp := operand{reg: c.Regs.AX, high: false}
	if err := c.writeOperand(lowOp, 0x12, bus.Byte); err != nil {
		t.Fatalf("writeOperand low: %v", err)
	}
	highOp := operand{reg: c.Regs.AX, high: true}
	if err := c.writeOperand(highOp, 0x34, bus.Byte); err != nil {
		t.Fatalf("writeOperand high: %v", err)
	}
	if got := c.Regs.AX.Word(); got != 0x3412 {
		t.Errorf("AX = %#04x, want 0x3412", got)
	}

	v, err := c.readOperand(highOp, bus.Byte)
	if err != nil {
		t.Fatalf("readOperand high: %v", err)
	}
	if v != 0x34 {
		t.Errorf("readOperand high = %#x, want 0x34", v)
	}
}

func TestRegisterViewSelectsByteRegisterHighLow(t *testing.T) {
	c := newStackCPU(t, I8086, false)
	reg, high := c.registerView(4, bus.Byte) // index 4 => AH
	if reg != c.Regs.AX || !high {
		t.Errorf("registerView(4, Byte) = (%s, %v), want (AX, true)", reg.Label(), high)
	}

	reg, high = c.registerView(0, bus.Byte) // index 0 => AL
	if reg != c.Regs.AX || high {
		t.Errorf("registerView(0, Byte) = (%s, %v), want (AX, false)", reg.Label(), high)
	}

	reg, high = c.registerView(4, bus.Word) // index 4 => SP
	if reg != c.Regs.SP || high {
		t.Errorf("registerView(4, Word) = (%s, %v), want (SP, false)", reg.Label(), high)
	}
}
