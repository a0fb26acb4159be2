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

// Package cpu is the instruction execution engine: register file, flag
// engine, ALU/shift/muldiv helpers, the fetch/decode/execute dispatcher,
// control flow, string operations, interrupt dispatch and task switching.
package cpu

import (
	"github.com/jetsetilly/x86core/bus"
	"github.com/jetsetilly/x86core/curated"
	"github.com/jetsetilly/x86core/faults"
	"github.com/jetsetilly/x86core/instance"
	"github.com/jetsetilly/x86core/logger"
	"github.com/jetsetilly/x86core/segment"
)

// InvalidOpcode and BusContractViolation are curated error patterns this
// package raises for host-level invariant failures (spec.md section 7,
// category b): bugs in the emulator or its embedder, never delivered to
// guest software.
const (
	InvalidOpcode       = "cpu: invalid opcode %#02x at %#08x"
	BusContractViolation = "cpu: bus contract violation: %v"
)

// opFlags bits accumulated while decoding a single instruction. The
// subset {SEG, LOCK, REPZ, REPNZ, DATASIZE, ADDRSIZE} is what spec.md
// section 4.1 calls opPrefixes; the rest (NOINTR, NOWRITE, NOREAD) are
// per-instruction dispatcher signals that never survive to the next
// instruction.
type opFlags struct {
	segOverride  *segment.Shadow
	lock         bool
	repz         bool
	repnz        bool
	dataSize32   bool
	addrSize32   bool
	noIntr       bool
	noWrite      bool
	noRead       bool
}

// CPU is the top-level execution engine: registers, flags, segment
// shadows, the segment loader, and the bus it drives. It owns every
// segment record outright (spec.md section 9: "the CPU owning all
// segment records and each operation receiving the CPU by mutable
// reference"), so segment.Shadow values carry no back-reference to the
// CPU that loaded them.
type CPU struct {
	Model Model
	Regs  *GPRegisterFile
	Flags FlagEngine
	ALU   ALU
	Shift Shift
	MulDiv MulDiv

	IP uint32

	CS, DS, ES, SS, FS, GS segment.Shadow
	CPL                    uint8

	CR0, CR2, CR3 uint32

	GDT, IDT segment.Table
	LDTSel   segment.Selector
	LDT      segment.Table
	TRSel    segment.Selector
	TR       segment.Table

	DR [8]uint32

	Loader *segment.Loader
	Mem    bus.Memory
	Ports  bus.PortIO

	Escalation faults.Escalation
	pendingFault int // -1 when idle, else the in-flight vector

	intFlags uint32

	cycles uint64

	instance *instance.Instance

	opLIP   uint32
	prefix  opFlags
	lastOp  uint8
}

// NewCPU builds a CPU for the given model, wired to mem for all linear
// accesses and ports for port I/O. ins may be nil; when non-nil its
// Random is seeded from this CPU's own cycle counter, consistent with
// instance.NewInstance's contract.
func NewCPU(model Model, mem bus.Memory, ports bus.PortIO, ins *instance.Instance) *CPU {
	c := &CPU{
		Model:    model,
		Regs:     NewGPRegisterFile(),
		Mem:      mem,
		Ports:    ports,
		Loader:   segment.NewLoader(mem),
		instance: ins,
	}
	c.ALU.Flags = &c.Flags
	c.Shift.Flags = &c.Flags
	c.MulDiv.Flags = &c.Flags
	c.pendingFault = -1
	c.Reset()
	return c
}

// Reset returns the CPU to its architectural reset state: real mode,
// CPL 0, registers zeroed, CS:IP at the model's reset vector, PS at its
// initial mask. See spec.md section 6 ("resetRegs").
func (c *CPU) Reset() {
	*c.Regs = *NewGPRegisterFile()
	c.Flags = FlagEngine{}
	c.CPL = 0
	c.CR0 = 0
	c.Loader.Protected = false
	c.IP = uint32(c.Model.ResetIP())
	c.CS = segment.RealMode(c.Model.ResetCS())
	c.DS = segment.RealMode(0)
	c.ES = segment.RealMode(0)
	c.SS = segment.RealMode(0)
	c.FS = segment.RealMode(0)
	c.GS = segment.RealMode(0)
	c.pendingFault = -1
	c.Escalation = faults.Escalation{}
	logger.Logf(logger.Allow, "cpu", "reset to %s, CS:IP=%04x:%04x", c.Model, c.CS.Selector, c.IP)
}

// SetProtMode toggles real/protected segment interpretation when CR0.PE
// changes (spec.md section 6, "setProtMode").
func (c *CPU) SetProtMode(on bool) {
	c.Loader.Protected = on
}

// Cycles returns the cumulative cycle count charged by StepCPU since the
// CPU was built (Reset leaves it unchanged), the value this CPU's
// random.Random (if any) is seeded from.
func (c *CPU) Cycles() *uint64 { return &c.cycles }

func (c *CPU) width() bus.Width {
	if c.prefix.dataSize32 {
		return bus.Dword
	}
	return bus.Word
}

// readBusWidth/writeBusWidth dispatch to the right bus.Memory accessor
// for a runtime-selected width, so ModR/M-driven code doesn't need three
// copies of itself.
func (c *CPU) readBusWidth(addr uint32, w bus.Width) (uint32, error) {
	switch w {
	case bus.Byte:
		v, err := c.Mem.ReadByte(addr)
		return uint32(v), err
	case bus.Word:
		v, err := c.Mem.ReadWord(addr)
		return uint32(v), err
	default:
		return c.Mem.ReadDword(addr)
	}
}

func (c *CPU) writeBusWidth(addr uint32, v uint32, w bus.Width) error {
	switch w {
	case bus.Byte:
		return c.Mem.WriteByte(addr, uint8(v))
	case bus.Word:
		return c.Mem.WriteWord(addr, uint16(v))
	default:
		return c.Mem.WriteDword(addr, v)
	}
}

// fetchByte reads the next instruction byte through CS and advances IP,
// masked to the model's address width on wraparound.
func (c *CPU) fetchByte() (uint8, error) {
	addr := c.CS.Linear(c.IP) & c.Model.AddressMask()
	b, err := c.Mem.ReadByte(addr)
	if err != nil {
		return 0, curated.Errorf(BusContractViolation, err)
	}
	c.IP = (c.IP + 1) & 0xFFFFFFFF
	return b, nil
}

func (c *CPU) fetchWord() (uint16, error) {
	lo, err := c.fetchByte()
	if err != nil {
		return 0, err
	}
	hi, err := c.fetchByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (c *CPU) fetchDword() (uint32, error) {
	lo, err := c.fetchWord()
	if err != nil {
		return 0, err
	}
	hi, err := c.fetchWord()
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// StepCPU runs instructions until the given cycle budget is exhausted,
// always stopping on an instruction boundary (spec.md section 5), and
// returns the number of cycles actually consumed.
func (c *CPU) StepCPU(cyclesBudget int) int {
	budget := NewBudget(cyclesBudget)
	for !budget.Exhausted() {
		before := budget.Remaining()
		if err := c.step(&budget); err != nil {
			logger.Logf(logger.Allow, "cpu", "halted on error: %v", err)
			break
		}
		if budget.Remaining() == before {
			// a HLT or equivalent yielded the burst without charging
			// cycles; stop rather than spin.
			break
		}
	}
	consumed := cyclesBudget - budget.Remaining()
	c.cycles += uint64(consumed)
	return consumed
}

// step executes exactly one instruction: the single iteration of
// spec.md section 4.1's dispatcher loop.
func (c *CPU) step(budget *Budget) error {
	c.opLIP = c.IP
	c.prefix = opFlags{}

	if err := c.checkInterrupts(); err != nil {
		return err
	}

	for {
		op, err := c.fetchByte()
		if err != nil {
			return c.fault(faults.DoubleFault, true, 0)
		}
		if done, handled := c.decodePrefix(op); handled {
			if done {
				continue
			}
		} else {
			c.lastOp = op
			return c.execute(op, budget)
		}
	}
}

// decodePrefix recognises one of the prefix bytes spec.md section 4.1
// lists and folds it into c.prefix, returning handled=true if op was a
// prefix (the dispatcher loop should fetch another byte).
func (c *CPU) decodePrefix(op uint8) (handled bool, isPrefix bool) {
	switch op {
	case 0x26:
		seg := c.ES
		c.prefix.segOverride = &seg
	case 0x2E:
		seg := c.CS
		c.prefix.segOverride = &seg
	case 0x36:
		seg := c.SS
		c.prefix.segOverride = &seg
	case 0x3E:
		seg := c.DS
		c.prefix.segOverride = &seg
	case 0x64:
		seg := c.FS
		c.prefix.segOverride = &seg
	case 0x65:
		seg := c.GS
		c.prefix.segOverride = &seg
	case 0x66:
		if c.Model.HasSizeOverridePrefixes() {
			c.prefix.dataSize32 = true
		} else {
			return false, false
		}
	case 0x67:
		if c.Model.HasSizeOverridePrefixes() {
			c.prefix.addrSize32 = true
		} else {
			return false, false
		}
	case 0xF0:
		c.prefix.lock = true
	case 0xF2:
		c.prefix.repnz = true
	case 0xF3:
		c.prefix.repz = true
	default:
		return false, false
	}
	c.prefix.noIntr = true
	return true, true
}

// dataSegment returns the segment to use for a DS-default memory
// reference, honouring a segment-override prefix.
func (c *CPU) dataSegment() segment.Shadow {
	if c.prefix.segOverride != nil {
		return *c.prefix.segOverride
	}
	return c.DS
}
