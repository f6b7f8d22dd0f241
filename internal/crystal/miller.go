// Package crystal provides the minimal crystallographic model needed to
// bin diffraction observations by resolution: Miller indices, unit cells
// and Laue-group reduction to an asymmetric-unit representative.
package crystal

import "fmt"

// MillerIndex is a reflection index (h, k, l).
type MillerIndex [3]int

// String formats the index as "(h,k,l)".
func (h MillerIndex) String() string {
	return fmt.Sprintf("(%d,%d,%d)", h[0], h[1], h[2])
}

// Neg returns the Friedel mate (-h, -k, -l).
func (h MillerIndex) Neg() MillerIndex {
	return MillerIndex{-h[0], -h[1], -h[2]}
}

// IsZero reports whether h is the origin of reciprocal space.
func (h MillerIndex) IsZero() bool {
	return h[0] == 0 && h[1] == 0 && h[2] == 0
}

// Less orders indices lexicographically on (h, k, l).
func (h MillerIndex) Less(o MillerIndex) bool {
	for i := 0; i < 3; i++ {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// Compare returns -1, 0 or +1 following the Less ordering. It is suitable
// for slices.SortFunc.
func Compare(a, b MillerIndex) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
