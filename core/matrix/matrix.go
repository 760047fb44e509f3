package matrix

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange indicates an index outside the requested vector length.
	ErrOutOfRange = errors.New("index out of range")
	// ErrDimMismatch indicates operands whose dimensions do not agree.
	ErrDimMismatch = errors.New("dimension mismatch")
)

// Unit returns the length-n vector with a 1 at index i and 0 elsewhere.
func Unit(i, n int) ([]int, error) {
	if i < 0 || i >= n {
		return nil, fmt.Errorf("unit index %d for length %d: %w", i, n, ErrOutOfRange)
	}
	v := make([]int, n)
	v[i] = 1
	return v, nil
}

// Multiply computes m·v. Zero entries of v are skipped.
func Multiply(m [][]int, v []int) ([]int, error) {
	out := make([]int, len(m))
	for r, row := range m {
		if len(row) != len(v) {
			return nil, fmt.Errorf("row %d has %d columns, vector has %d: %w", r, len(row), len(v), ErrDimMismatch)
		}
		for c, x := range v {
			if x == 0 {
				continue
			}
			out[r] += row[c] * x
		}
	}
	return out, nil
}

// Add returns the elementwise sum of a and b.
func Add(a, b []int) ([]int, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector lengths %d and %d: %w", len(a), len(b), ErrDimMismatch)
	}
	out := make([]int, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}
