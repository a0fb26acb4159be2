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

// Package stats records the running counters a harness wants visible while
// a core executes a long burst: cycles retired, faults taken, and
// instructions decoded. The counters themselves are plain and build-tag
// independent; Launch (below, in stats.go/stats_stub.go) optionally exposes
// them over the statsview HTTP endpoint when the "statsview" build tag is
// present, and does nothing when it isn't.
package stats

import "sync/atomic"

// Recorder accumulates counters from one or more CPU cores. All methods are
// safe to call from the goroutine driving StepCPU while a statsview poller
// reads the same fields from another goroutine.
type Recorder struct {
	cycles       uint64
	instructions uint64
	faults       uint64
}

// AddCycles adds n to the running cycle count.
func (r *Recorder) AddCycles(n uint64) {
	atomic.AddUint64(&r.cycles, n)
}

// AddInstruction increments the instruction count by one.
func (r *Recorder) AddInstruction() {
	atomic.AddUint64(&r.instructions, 1)
}

// AddFault increments the fault count by one.
func (r *Recorder) AddFault() {
	atomic.AddUint64(&r.faults, 1)
}

// Cycles returns the current cycle count.
func (r *Recorder) Cycles() uint64 {
	return atomic.LoadUint64(&r.cycles)
}

// Instructions returns the current instruction count.
func (r *Recorder) Instructions() uint64 {
	return atomic.LoadUint64(&r.instructions)
}

// Faults returns the current fault count.
func (r *Recorder) Faults() uint64 {
	return atomic.LoadUint64(&r.faults)
}
