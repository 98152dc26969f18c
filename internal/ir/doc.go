// Package ir holds the constrained value model used for record payloads,
// preparation arguments and annotations.
//
// Values are restricted to strings, int64, bools, arrays and objects. There
// are no floats and no nulls, so every value has exactly one canonical JSON
// encoding (RFC 8785) and a stable content hash.
package ir
