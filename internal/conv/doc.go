// Package conv provides safe integer type conversion utilities.
//
// Persisted array headers store dimensions as fixed-width unsigned integers.
// These helpers validate values read from (or written to) disk so that a
// corrupt header surfaces as an error instead of a wrapped-around size.
package conv
