package cchalf

// ReflectionSums are the sufficient statistics of one reflection group.
type ReflectionSums struct {
	N     int
	SumX  float64
	SumX2 float64
}

// Add accumulates one intensity.
func (s *ReflectionSums) Add(x float64) {
	s.N++
	s.SumX += x
	s.SumX2 += x * x
}

// Sub returns s with o's contribution removed. s is not modified.
func (s ReflectionSums) Sub(o ReflectionSums) ReflectionSums {
	return ReflectionSums{
		N:     s.N - o.N,
		SumX:  s.SumX - o.SumX,
		SumX2: s.SumX2 - o.SumX2,
	}
}

// Usable reports whether the group can yield an unbiased variance.
func (s ReflectionSums) Usable() bool {
	return s.N >= 2
}

// Mean returns Σx/n. Callers must check N > 0.
func (s ReflectionSums) Mean() float64 {
	return s.SumX / float64(s.N)
}

// Variance returns the Bessel-corrected variance (Σx² − (Σx)²/n)/(n−1).
// Callers must check Usable.
func (s ReflectionSums) Variance() float64 {
	n := float64(s.N)
	return (s.SumX2 - s.SumX*s.SumX/n) / (n - 1)
}
