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

package functional_test

import (
	"bytes"
	"testing"

	"github.com/jetsetilly/x86core/cpu"
	"github.com/jetsetilly/x86core/diagnostics"
	"github.com/jetsetilly/x86core/segment"
	"github.com/jetsetilly/x86core/stats"
)

// TestSnapshotRestoreRoundTrip runs a short burst, takes a snapshot midway,
// keeps running to disturb every piece of state a Record carries, then
// restores and checks the CPU is back to the snapshot point exactly.
func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c, mem := newMachine(t, cpu.I8086, 1<<16)
	writeBytes(t, mem, codeOrigin, []byte{
		0xB8, 0x34, 0x12, // MOV AX,0x1234
		0xBB, 0x01, 0x00, // MOV BX,1
		0x03, 0xC3, // ADD AX,BX
		0x2D, 0xFF, 0xFF, // SUB AX,0xFFFF
		0x40, // INC AX
	})
	c.CS = segment.RealMode(0)
	c.IP = codeOrigin
	c.Regs.SP.SetWord(0xFFFE)

	recorder := &stats.Recorder{}

	runN(t, c, 3)
	recorder.AddCycles(*c.Cycles())
	recorder.AddInstruction()
	recorder.AddInstruction()
	recorder.AddInstruction()

	rec := c.Snapshot()

	if rec.AX != uint32(c.Regs.AX.Word()) {
		t.Fatalf("snapshot AX = %#x, want %#x", rec.AX, c.Regs.AX.Word())
	}

	var buf bytes.Buffer
	diagnostics.Dump(&buf, "post-ADD snapshot", rec)
	if buf.Len() == 0 {
		t.Fatalf("diagnostics.Dump wrote nothing")
	}

	wantAX := c.Regs.AX.Word()
	wantIP := c.IP
	wantCF := c.Flags.CF()

	// disturb state the record must undo: two more instructions, changing
	// AX, IP and the flag cache.
	runN(t, c, 2)
	if c.Regs.AX.Word() == wantAX && c.IP == wantIP {
		t.Fatalf("test setup didn't actually disturb state before restore")
	}

	c.Restore(rec)

	if got := c.Regs.AX.Word(); got != wantAX {
		t.Errorf("restored AX = %#04x, want %#04x", got, wantAX)
	}
	if c.IP != wantIP {
		t.Errorf("restored IP = %#04x, want %#04x", c.IP, wantIP)
	}
	if c.Flags.CF() != wantCF {
		t.Errorf("restored CF = %v, want %v", c.Flags.CF(), wantCF)
	}
	if c.CPL != rec.CPL {
		t.Errorf("restored CPL = %d, want %d", c.CPL, rec.CPL)
	}

	if got := recorder.Instructions(); got != 3 {
		t.Errorf("recorder.Instructions() = %d, want 3", got)
	}
	if recorder.Cycles() == 0 {
		t.Errorf("recorder.Cycles() = 0, want the cycles charged by three instructions")
	}

	var launchOut bytes.Buffer
	stats.Launch(recorder, &launchOut)
	if stats.Available() && launchOut.Len() == 0 {
		t.Errorf("stats.Launch wrote nothing while a statsview build was available")
	}
}

// TestSnapshotRestorePreservesLazyFlagCache checks that a snapshot taken
// with an un-materialised (lazy) flag result restores to the same computed
// flag values as the live CPU, not just the same stored PS bits.
func TestSnapshotRestorePreservesLazyFlagCache(t *testing.T) {
	c, mem := newMachine(t, cpu.I8086, 1<<16)
	writeBytes(t, mem, codeOrigin, []byte{
		0xB8, 0x00, 0x80, // MOV AX,0x8000
		0xD1, 0xF8, // SAR AX,1
	})
	c.CS = segment.RealMode(0)
	c.IP = codeOrigin
	c.Regs.SP.SetWord(0xFFFE)

	runN(t, c, 2)

	wantSF := c.Flags.SF()
	wantZF := c.Flags.ZF()
	wantCF := c.Flags.CF()

	rec := c.Snapshot()

	other, otherMem := newMachine(t, cpu.I8086, 1<<16)
	_ = otherMem
	other.Restore(rec)

	if other.Flags.SF() != wantSF {
		t.Errorf("restored SF = %v, want %v", other.Flags.SF(), wantSF)
	}
	if other.Flags.ZF() != wantZF {
		t.Errorf("restored ZF = %v, want %v", other.Flags.ZF(), wantZF)
	}
	if other.Flags.CF() != wantCF {
		t.Errorf("restored CF = %v, want %v", other.Flags.CF(), wantCF)
	}
	if other.Regs.AX.Word() != c.Regs.AX.Word() {
		t.Errorf("restored AX = %#04x, want %#04x", other.Regs.AX.Word(), c.Regs.AX.Word())
	}
}
