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

// Package machine implements the external "machine description" contract of
// spec.md section 6: a structured document keyed by component name. The
// core only ever reads the "cpu" component; every other key is the
// containing machine's business and is ignored here, the same way
// prefs.Disk ignores keys nobody registered for.
package machine

import (
	"github.com/jetsetilly/x86core/curated"
	"github.com/jetsetilly/x86core/prefs"
)

// CPUModel names one of the processor variants the core can emulate.
type CPUModel string

// The supported CPU models, per spec.md section 3.
const (
	Model8086  CPUModel = "8086"
	Model8088  CPUModel = "8088"
	Model80186 CPUModel = "80186"
	Model80188 CPUModel = "80188"
	Model80286 CPUModel = "80286"
	Model80386 CPUModel = "80386"
)

// Valid reports whether m names a model the core implements.
func (m CPUModel) Valid() bool {
	switch m {
	case Model8086, Model8088, Model80186, Model80188, Model80286, Model80386:
		return true
	}
	return false
}

// CPUDescription is the minimal CPU entry the core requires from a machine
// description document.
type CPUDescription struct {
	Model      prefs.String
	AutoStart  prefs.Bool
}

// Description is a structured, on-disk machine description document. The
// CPU entry is mandatory; unknown top-level keys (peripherals, ROM paths,
// window geometry, ...) are left for the containing machine to interpret
// and are never rejected here.
type Description struct {
	dsk *prefs.Disk
	CPU CPUDescription
}

// Load reads a machine description from path. If the file does not exist a
// Description with built-in defaults is returned rather than an error,
// mirroring the teacher's own "ignore missing prefs file" convention.
func Load(path string) (*Description, error) {
	d := &Description{}
	d.CPU.Model.Set(string(Model80286))
	d.CPU.AutoStart.Set(false)

	dsk, err := prefs.NewDisk(path)
	if err != nil {
		return nil, err
	}
	d.dsk = dsk

	if err := d.dsk.Add("cpu.model", &d.CPU.Model); err != nil {
		return nil, err
	}
	if err := d.dsk.Add("cpu.autoStart", &d.CPU.AutoStart); err != nil {
		return nil, err
	}

	if err := d.dsk.Load(true); err != nil {
		if !curated.Is(err, prefs.NoPrefsFile) {
			return nil, err
		}
	}

	return d, nil
}

// Normalise forces autoStart false, as spec.md section 6 requires whenever
// a description is built programmatically rather than loaded from a user's
// saved configuration.
func (d *Description) Normalise() {
	d.CPU.AutoStart.Set(false)
}

// Model returns the validated CPU model named by the description, falling
// back to the 80286 default if the stored value is unrecognised.
func (d *Description) Model() CPUModel {
	m := CPUModel(d.CPU.Model.Get().(string))
	if !m.Valid() {
		return Model80286
	}
	return m
}
