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

//go:build diagnostics

// Package diagnostics is an optional package, built only when the
// "diagnostics" build tag is present, that renders a graphviz dump of a
// snapshot.Record for a human chasing a host-level invariant failure (an
// out-of-range memory access reaching the bus, or a fault vector the fault
// table can't classify: spec.md section 7). It follows the same
// build-tag-gated shape as the statsview optional package: a thin wrapper
// over a third-party dump library, opt-in because it isn't needed on a
// production path.
package diagnostics

import (
	"fmt"
	"io"

	"github.com/bradleyjkemp/memviz"

	"github.com/jetsetilly/x86core/snapshot"
	"github.com/jetsetilly/x86core/version"
)

// Dump writes a graphviz description of rec's field structure to w, along
// with the note describing what triggered the dump and the build revision
// that produced it.
func Dump(w io.Writer, note string, rec snapshot.Record) {
	rev, _ := version.Version()
	fmt.Fprintf(w, "// %s (%s %s)\n", note, version.ApplicationName, rev)
	memviz.Map(w, &rec)
}

// Available reports whether Dump renders anything more than the note.
func Available() bool {
	return true
}
