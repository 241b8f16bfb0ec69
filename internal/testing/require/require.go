// Package require implements the small subset of assertion helpers used
// by tests in this repository. This is intentionally minimal to avoid
// taking a dependency for test-only code.
package require

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// TestingT is the interface of *testing.T used by this package.
type TestingT interface {
	Helper()
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var _ TestingT = (*testing.T)(nil)

// True fails the test if `actual` is false.
func True(t TestingT, actual bool, msg ...string) {
	t.Helper()
	if !actual {
		fail(t, "expected true, got false", msg...)
	}
}

// False fails the test if `actual` is true.
func False(t TestingT, actual bool, msg ...string) {
	t.Helper()
	if actual {
		fail(t, "expected false, got true", msg...)
	}
}

// Nil fails the test if `v` is not nil.
func Nil(t TestingT, v interface{}, msg ...string) {
	t.Helper()
	if !isNil(v) {
		fail(t, fmt.Sprintf("expected nil, got %v", v), msg...)
	}
}

// NotNil fails the test if `v` is nil.
func NotNil(t TestingT, v interface{}, msg ...string) {
	t.Helper()
	if isNil(v) {
		fail(t, "expected non-nil", msg...)
	}
}

// NoError fails the test if `err` is not nil.
func NoError(t TestingT, err error, msg ...string) {
	t.Helper()
	if err != nil {
		fail(t, fmt.Sprintf("expected no error, got %v", err), msg...)
	}
}

// Error fails the test if `err` is nil.
func Error(t TestingT, err error, msg ...string) {
	t.Helper()
	if err == nil {
		fail(t, "expected error, got nil", msg...)
	}
}

// EqualError fails the test unless `err` has the exact message `expected`.
func EqualError(t TestingT, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", expected)
	}
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

// Equal fails the test if `expected` does not deeply equal `actual`.
func Equal(t TestingT, expected, actual interface{}, msg ...string) {
	t.Helper()
	if !equal(expected, actual) {
		fail(t, fmt.Sprintf("expected %#v, got %#v", expected, actual), msg...)
	}
}

// NotEqual fails the test if `expected` deeply equals `actual`.
func NotEqual(t TestingT, expected, actual interface{}, msg ...string) {
	t.Helper()
	if equal(expected, actual) {
		fail(t, fmt.Sprintf("expected anything but %#v", expected), msg...)
	}
}

func equal(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return isNil(expected) == isNil(actual)
	}
	return reflect.DeepEqual(expected, actual)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Ptr, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func fail(t TestingT, base string, msg ...string) {
	t.Helper()
	if len(msg) > 0 {
		t.Fatal(base + ": " + strings.Join(msg, " "))
	} else {
		t.Fatal(base)
	}
}
