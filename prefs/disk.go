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

package prefs

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/jetsetilly/x86core/curated"
)

// NoPrefsFile is the curated.Errorf pattern used when the backing file for a
// Disk does not exist. Callers that want to treat a fresh installation as
// non-fatal should test for this with curated.Is.
const NoPrefsFile = "prefs: no prefs file (%s)"

// Disk associates dotted preference keys ("cpu.model", "cpu.autoStart")
// with in-memory pref values and persists them to a flat key=value file.
// It is the backing store for the machine description contract of spec.md
// section 6: a structured document keyed by component name, where unknown
// keys are ignored rather than rejected.
type Disk struct {
	path    string
	keys    []string
	entries map[string]pref
}

// NewDisk is the preferred method of initialisation for the Disk type. It
// does not touch the filesystem; call Load to populate values from path.
func NewDisk(path string) (*Disk, error) {
	return &Disk{
		path:    path,
		entries: make(map[string]pref),
	}, nil
}

// Add registers a pref value under key. Subsequent calls to Load will set
// it if the file contains a matching key; subsequent calls to Save will
// write its current value.
func (d *Disk) Add(key string, v pref) error {
	if _, ok := d.entries[key]; ok {
		return curated.Errorf("prefs: duplicate key (%s)", key)
	}
	d.entries[key] = v
	d.keys = append(d.keys, key)
	sort.Strings(d.keys)
	return nil
}

// Load reads the backing file and applies every recognised key=value pair
// to its registered pref. Keys that are defunct or were never Add()-ed are
// skipped silently, per spec.md section 6 ("the core ignores unknown
// keys"). If ignoreMissing is true a missing file is not an error.
func (d *Disk) Load(ignoreMissing bool) error {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			if ignoreMissing {
				return nil
			}
			return curated.Errorf(NoPrefsFile, d.path)
		}
		return curated.Errorf("prefs: %v", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		i := strings.Index(line, "=")
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])

		if isDefunct(key) {
			continue
		}

		p, ok := d.entries[key]
		if !ok {
			// unrecognised key: ignored, not an error
			continue
		}

		if err := p.Set(val); err != nil {
			return curated.Errorf("prefs: %s: %v", key, err)
		}
	}

	return s.Err()
}

// Save writes every registered key=value pair to the backing file,
// overwriting it.
func (d *Disk) Save() error {
	f, err := os.Create(d.path)
	if err != nil {
		return curated.Errorf("prefs: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, k := range d.keys {
		if _, err := w.WriteString(k + "=" + d.entries[k].String() + "\n"); err != nil {
			return curated.Errorf("prefs: %v", err)
		}
	}
	return w.Flush()
}

func (d *Disk) String() string {
	s := strings.Builder{}
	for _, k := range d.keys {
		s.WriteString(k)
		s.WriteString("=")
		s.WriteString(d.entries[k].String())
		s.WriteString("\n")
	}
	return s.String()
}

// list of preference keys that are no longer used. kept here (rather than
// deleted outright) so that old prefs files don't trip Load's "unrecognised
// key" path and so the intent of skipping them is visible.
var defunctKeys = []string{
	"cpu.iopl286",
}

func isDefunct(key string) bool {
	for _, k := range defunctKeys {
		if k == key {
			return true
		}
	}
	return false
}
