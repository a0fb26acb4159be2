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

// Loader resolves selectors into Shadow state, switching between real-mode
// synthesis and protected-mode descriptor-table walks depending on
// Protected. It holds no CPU state of its own beyond the three descriptor
// tables; the current privilege level is passed in by the caller on every
// load (spec.md section 4.2).
type Loader struct {
	Protected bool

	GDT Table
	LDT Table
	IDT Table

	mem bus.Memory
}

// NewLoader builds a Loader over the given bus. GDT/LDT/IDT start at
// Table{} (base 0, limit 0) until LGDT/LLDT/LIDT install real values.
func NewLoader(mem bus.Memory) *Loader {
	return &Loader{mem: mem}
}

// LoadData resolves a selector for a data/stack segment register (DS, ES,
// FS, GS, SS). cpl is the privilege level the load is being performed at
// (ordinarily the CPU's current CS.RPL). Loading SS additionally demands
// that DPL == cpl exactly, which callers signal via requireExactDPL.
func (l *Loader) LoadData(sel Selector, cpl uint8, requireExactDPL bool) (Shadow, error) {
	if !l.Protected {
		return RealMode(uint16(sel)), nil
	}
	if sel.IsNull() {
		if requireExactDPL {
			return Shadow{}, errSelector(NullSelector, sel)
		}
		return Shadow{Selector: sel}, nil
	}

	d, err := l.fetch(sel)
	if err != nil {
		return Shadow{}, err
	}
	if !d.CodeOrData {
		return Shadow{}, errSelector(WrongType, sel)
	}
	if d.IsCode() && !d.IsReadable() {
		return Shadow{}, errSelector(WrongType, sel)
	}
	if !d.Present {
		return Shadow{}, errSelector(NotPresent, sel)
	}

	rpl := sel.RPL()
	if requireExactDPL {
		if d.DPL != cpl || rpl != cpl {
			return Shadow{}, errSelector(PrivilegeViolation, sel)
		}
	} else if !d.IsConforming() {
		max := rpl
		if cpl > max {
			max = cpl
		}
		if d.DPL < max {
			return Shadow{}, errSelector(PrivilegeViolation, sel)
		}
	}

	return FromDescriptor(sel, d), nil
}

// LoadCode resolves a selector destined for CS, following an intersegment
// control transfer; cpl is the caller's current privilege level. viaGate
// distinguishes a gate-mediated transfer, which
// may lower CPL to a non-conforming segment's DPL, from a direct far
// jump/call/return, which may only land on a non-conforming segment whose
// DPL equals the current CPL exactly.
func (l *Loader) LoadCode(sel Selector, cpl uint8, viaGate bool) (Shadow, error) {
	if !l.Protected {
		return RealMode(uint16(sel)), nil
	}
	if sel.IsNull() {
		return Shadow{}, errSelector(NullSelector, sel)
	}

	d, err := l.fetch(sel)
	if err != nil {
		return Shadow{}, err
	}
	if !d.CodeOrData || !d.IsCode() {
		return Shadow{}, errSelector(WrongType, sel)
	}
	if !d.Present {
		return Shadow{}, errSelector(NotPresent, sel)
	}
	if d.IsConforming() {
		if d.DPL > cpl {
			return Shadow{}, errSelector(PrivilegeViolation, sel)
		}
	} else if viaGate {
		if d.DPL > cpl {
			return Shadow{}, errSelector(PrivilegeViolation, sel)
		}
	} else if d.DPL != cpl {
		return Shadow{}, errSelector(PrivilegeViolation, sel)
	}

	return FromDescriptor(sel, d), nil
}

// LoadLDT resolves a selector for LLDT: it must name an LDT-type system
// descriptor in the GDT.
func (l *Loader) LoadLDT(sel Selector) (Table, error) {
	if sel.IsNull() {
		return Table{}, nil
	}
	d, err := l.GDT.Fetch(l.mem, sel)
	if err != nil {
		return Table{}, err
	}
	if d.CodeOrData || d.SystemType() != TypeLDT {
		return Table{}, errSelector(WrongType, sel)
	}
	if !d.Present {
		return Table{}, errSelector(NotPresent, sel)
	}
	return Table{Base: d.Base, Limit: uint16(d.Limit)}, nil
}

// Fetch exposes the raw descriptor lookup for callers building gate/task
// machinery (faults, task switching) that need the Descriptor itself
// rather than a Shadow projection of it.
func (l *Loader) Fetch(sel Selector) (Descriptor, error) {
	return l.fetch(sel)
}

func (l *Loader) fetch(sel Selector) (Descriptor, error) {
	if sel.TI() {
		return l.LDT.Fetch(l.mem, sel)
	}
	return l.GDT.Fetch(l.mem, sel)
}
