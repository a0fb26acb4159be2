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

// Package version reports the build identity of the core: the module
// name plus whatever VCS revision info the Go toolchain embedded in the
// binary. A diagnostics dump is only useful to a human chasing a bug
// once they know which build produced it, so diagnostics.Dump stamps
// every dump with this package's Version() output.
package version

import (
	"fmt"
	"runtime/debug"
)

// ApplicationName is the name to use when referring to this module.
const ApplicationName = "x86core"

var revision string

// Version returns the build revision string and whether the source tree
// was modified relative to that revision at build time.
func Version() (string, bool) {
	return revision, modified
}

var modified bool

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		revision = "no revision information"
		return
	}

	var vcsRevision string
	for _, v := range info.Settings {
		switch v.Key {
		case "vcs.revision":
			vcsRevision = v.Value
		case "vcs.modified":
			modified = v.Value == "true"
		}
	}

	if vcsRevision == "" {
		revision = "no revision information"
		return
	}
	if modified {
		revision = fmt.Sprintf("%s+dirty", vcsRevision)
		return
	}
	revision = vcsRevision
}
