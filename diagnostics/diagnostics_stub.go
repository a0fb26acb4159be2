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

//go:build !diagnostics

package diagnostics

import (
	"io"

	"github.com/jetsetilly/x86core/snapshot"
)

// Dump writes only the note when built without the diagnostics tag.
func Dump(w io.Writer, note string, rec snapshot.Record) {
	io.WriteString(w, "// "+note+"\n")
}

// Available reports whether Dump renders anything more than the note.
func Available() bool {
	return false
}
