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

// Package instance defines those parts of the emulation that might change
// from instance to instance of the CPU type, but are not the CPU itself.
// Particularly useful when running more than one core in the same process,
// e.g. a primary core alongside a comparison core used for differential
// regression testing.
package instance

import (
	"github.com/jetsetilly/x86core/machine"
	"github.com/jetsetilly/x86core/random"
)

// Label indicates the role a CPU instance is playing.
type Label string

// List of valid Label values.
const (
	Main       Label = ""
	Comparison Label = "comparison"
	Rewind     Label = "rewind"
)

// Instance carries the identity of one running core: which role it plays,
// its own source of "undefined behaviour" randomness, and the machine
// description it was configured from.
type Instance struct {
	Label Label

	Random *random.Random

	Description *machine.Description
}

// NewInstance is the preferred method of initialisation for the Instance
// type. cycle should point at the owning CPU's cumulative cycle counter so
// Random's sequence is reproducible against that CPU's own progress.
// desc may be nil, in which case an all-defaults description is used.
func NewInstance(label Label, cycle *uint64, desc *machine.Description) (*Instance, error) {
	if desc == nil {
		var err error
		desc, err = machine.Load("")
		if err != nil {
			return nil, err
		}
	}

	return &Instance{
		Label:       label,
		Random:      random.NewRandom(cycle),
		Description: desc,
	}, nil
}

// Normalise puts the instance into a known, reproducible state. Used by
// regression and comparison harnesses so that every run starts identically.
func (ins *Instance) Normalise() {
	ins.Random.ZeroSeed = true
	ins.Description.Normalise()
}
