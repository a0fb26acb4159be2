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

package test

import (
	"math"
	"testing"
)

// ExpectedFailure tests argument v for a failure condition suitable for it's
// type. Currentlly support types:
//
//		bool -> bool == false
//		error -> error != nil
//
// If type is nil then the test will fail.
func ExpectedFailure(t *testing.T, v interface{}) bool {
	t.Helper()

	switch v := v.(type) {
	case bool:
		if v {
			t.Errorf("expected failure (bool)")
			return false
		}

	case error:
		if v == nil {
			t.Errorf("expected failure (error)")
			return false
		}

	case nil:
		t.Errorf("expected failure (nil)")
		return false

	default:
		t.Fatalf("unsupported type (%T) for expectation testing", v)
		return false
	}

	return true
}

// ExpectedSuccess tests argument v for a success condition suitable for it's
// type. Currentlly support types:
//
//		bool -> bool == true
//		error -> error == nil
//
// If type is nil then the test will succeed.
func ExpectedSuccess(t *testing.T, v interface{}) bool {
	t.Helper()

	switch v := v.(type) {
	case bool:
		if !v {
			t.Errorf("expected success (bool)")
			return false
		}

	case error:
		if v != nil {
			t.Errorf("expected success (error: %v)", v)
			return false
		}

	case nil:
		return true

	default:
		t.Fatalf("unsupported type (%T) for expectation testing", v)
		return false
	}

	return true
}

// ExpectFailure is an alias of ExpectedFailure, for callers that prefer the
// shorter, imperative name.
func ExpectFailure(t *testing.T, v interface{}) bool {
	t.Helper()
	return ExpectedFailure(t, v)
}

// ExpectSuccess is an alias of ExpectedSuccess, for callers that prefer the
// shorter, imperative name.
func ExpectSuccess(t *testing.T, v interface{}) bool {
	t.Helper()
	return ExpectedSuccess(t, v)
}

// ExpectEquality tests that value and expectedValue are the same, recording
// a test failure (not a fatality) if they aren't. Unlike Equate, which
// dispatches on value's concrete type, ExpectEquality works for any
// comparable type T, including the types Equate doesn't special-case.
func ExpectEquality[T comparable](t *testing.T, value, expectedValue T) bool {
	t.Helper()
	if value != expectedValue {
		t.Errorf("equality test of type %T failed: '%v' does not equal '%v'", value, value, expectedValue)
		return false
	}
	return true
}

// ExpectInequality tests that value and expectedValue differ, recording a
// test failure if they're the same.
func ExpectInequality[T comparable](t *testing.T, value, expectedValue T) bool {
	t.Helper()
	if value == expectedValue {
		t.Errorf("inequality test of type %T failed: '%v' equals '%v'", value, value, expectedValue)
		return false
	}
	return true
}

// ExpectApproximate tests that value is within tolerance of expectedValue.
func ExpectApproximate(t *testing.T, value, expectedValue, tolerance float64) bool {
	t.Helper()
	if math.Abs(value-expectedValue) > tolerance {
		t.Errorf("approximation test failed: %v is not within %v of %v", value, tolerance, expectedValue)
		return false
	}
	return true
}
