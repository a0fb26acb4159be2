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

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Entry represents a single line/entry in the log
type Entry struct {
	Timestamp time.Time
	tag       string
	detail    string
	repeated  int
}

func (e *Entry) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("%s: %s", e.tag, e.detail))
	if e.repeated > 0 {
		s.WriteString(fmt.Sprintf(" (repeat x%d)", e.repeated+1))
	}
	s.WriteString("\n")
	return s.String()
}

// detailString renders a Log detail argument as text. error and
// fmt.Stringer values use their own formatting; everything else falls back
// to the %v verb.
func detailString(detail interface{}) string {
	switch v := detail.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Logger is a bounded, ring-buffer style log. The package-level Log/Logf/
// Write/Tail/Clear functions operate on a single central Logger; nothing
// stops a caller from creating an additional one with NewLogger for a
// scoped or throwaway log (a comparison run against a second CPU instance,
// for example).
type Logger struct {
	mu sync.Mutex

	maxEntries int
	entries    []Entry
	echo       bool
	echoOutput io.Writer

	// cursor used by WriteRecent to track what's already been written
	recentCursor time.Time

	// timestamp of most recent Log() event
	atomicTimestamp atomic.Value // time.Time
}

// NewLogger creates a Logger that retains at most maxEntries entries,
// discarding the oldest once that limit is reached.
func NewLogger(maxEntries int) *Logger {
	l := &Logger{
		maxEntries: maxEntries,
		entries:    make([]Entry, 0),
		echoOutput: os.Stdout,
	}
	l.atomicTimestamp.Store(time.Time{})
	return l
}

// Log adds an entry to the log if perm allows it. detail may be a string,
// an error (Error() is used), a fmt.Stringer (String() is used), or
// anything else (formatted with the %v verb). A Log call identical to the
// immediately preceding entry increments that entry's repeat count instead
// of appending a new one.
func (l *Logger) Log(perm Permission, tag string, detail interface{}) {
	if !(perm == Allow || perm.AllowLogging()) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	text := detailString(detail)

	e := &Entry{}
	if len(l.entries) > 0 {
		e = &l.entries[len(l.entries)-1]
	}

	// remove all newline characters from tag and detail string
	tag = strings.ReplaceAll(tag, "\n", "")
	text = strings.ReplaceAll(text, "\n", "")

	if text != e.detail || tag != e.tag {
		l.entries = append(l.entries, Entry{Timestamp: time.Now(), tag: tag, detail: text})
		e = &l.entries[len(l.entries)-1]
	} else {
		e.repeated++
		e.Timestamp = time.Now()
	}

	// store atomic timestamp
	l.atomicTimestamp.Store(e.Timestamp)

	// maintain maximum length
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	if l.echo {
		io.WriteString(l.echoOutput, e.String())
	}
}

// Logf is the formatted counterpart of Log.
func (l *Logger) Logf(perm Permission, tag, detail string, args ...interface{}) {
	l.Log(perm, tag, fmt.Sprintf(detail, args...))
}

// Clear removes every entry from the log.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// Write writes every buffered entry to output, returning false if there
// was nothing to write.
func (l *Logger) Write(output io.Writer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return false
	}
	for _, e := range l.entries {
		io.WriteString(output, e.String())
	}
	return true
}

// Tail writes the last number entries to output.
func (l *Logger) Tail(output io.Writer, number int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if number > len(l.entries) {
		number = len(l.entries)
	}
	for _, e := range l.entries[len(l.entries)-number:] {
		io.WriteString(output, e.String())
	}
}

// copy returns a snapshot of the log's entries if anything has been logged
// since ref, or nil if nothing has changed. Callers hold l.mu.
func (l *Logger) copy(ref time.Time) []Entry {
	current, _ := l.atomicTimestamp.Load().(time.Time)
	if ref != current {
		c := make([]Entry, len(l.entries))
		copy(c, l.entries)
		return c
	}
	return nil
}

// WriteRecent writes only the entries added since the last call to
// WriteRecent, or since the Logger's creation on the first call.
func (l *Logger) WriteRecent(output io.Writer) {
	l.mu.Lock()
	ref := l.recentCursor
	l.recentCursor, _ = l.atomicTimestamp.Load().(time.Time)
	recent := l.copy(ref)
	l.mu.Unlock()

	for _, e := range recent {
		if !e.Timestamp.After(ref) {
			continue
		}
		io.WriteString(output, e.String())
	}
}

// SetEcho turns on (or redirects) immediate echoing of new log entries to
// output. If writeRecent is true the entries already buffered are written
// to output before echoing begins. Passing a nil output turns echoing off.
func (l *Logger) SetEcho(output io.Writer, writeRecent bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writeRecent {
		for _, e := range l.entries {
			io.WriteString(output, e.String())
		}
	}

	l.echoOutput = output
	l.echo = output != nil
}

// BorrowLog gives f exclusive access to the log's entries for the duration
// of the call.
func (l *Logger) BorrowLog(f func([]Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f(l.entries)
}
