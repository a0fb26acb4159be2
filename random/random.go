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

// Package random provides a source of randomness for the values the x86
// architecture leaves undefined (the general-purpose register file at cold
// reset, AF after a logical instruction, and similar cases spec.md calls
// out as "undefined on real hardware but computed consistently").
package random

import (
	"math/rand"
	"time"
)

// the base seed for all random numbers.
var baseSeed int64

func init() {
	baseSeed = int64(time.Now().Nanosecond())
}

// Random is a random number generator that is sensitive to the CPU's own
// progress (its cumulative cycle count) rather than wall-clock
// time, so that two cores fed the same instruction stream from the same
// seed produce the same sequence of "undefined" values. Required by the
// snapshot/rewind facilities and by differential (comparison) cores.
type Random struct {
	// cycle is a pointer into the owning CPU's cumulative cycle counter.
	// Reading it at call time, rather than copying it, means the sequence
	// tracks the CPU's actual progress even across snapshot restores.
	cycle *uint64

	// ZeroSeed disables the wall-clock component of the seed. Used by
	// normalised instances (comparison cores, regression harnesses) where
	// the sequence of "random" values must be reproducible between runs.
	ZeroSeed bool
}

// NewRandom is the preferred method of initialisation for the Random type.
// cycle should point at the field the caller wants to drive determinism
// from; the cpu package points it at the CPU's cumulative cycle counter.
func NewRandom(cycle *uint64) *Random {
	return &Random{cycle: cycle}
}

func (rnd *Random) seed() int64 {
	var c int64
	if rnd.cycle != nil {
		c = int64(*rnd.cycle)
	}
	if rnd.ZeroSeed {
		return c
	}
	return baseSeed + c
}

func (rnd *Random) rand() *rand.Rand {
	return rand.New(rand.NewSource(rnd.seed()))
}

// Intn returns a non-negative pseudo-random int in [0,n).
func (rnd *Random) Intn(n int) int {
	return rnd.rand().Intn(n)
}

// Uint32 returns a pseudo-random uint32, used to fill a general-purpose
// register or an undefined flag bit.
func (rnd *Random) Uint32() uint32 {
	return rnd.rand().Uint32()
}
