package crystal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidUnitCell is returned when cell parameters do not describe a
// real lattice.
var ErrInvalidUnitCell = errors.New("invalid unit cell")

// UnitCell holds direct-space lattice parameters. Lengths are in Ångström,
// angles in degrees.
type UnitCell struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64

	metric *mat.SymDense
	recip  *mat.SymDense
}

// NewUnitCell validates the parameters and precomputes the reciprocal
// metric tensor used by InvD2.
func NewUnitCell(a, b, c, alpha, beta, gamma float64) (*UnitCell, error) {
	for _, v := range []float64{a, b, c} {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: edge lengths must be positive and finite, got (%g, %g, %g)", ErrInvalidUnitCell, a, b, c)
		}
	}
	for _, v := range []float64{alpha, beta, gamma} {
		if !(v > 0 && v < 180) {
			return nil, fmt.Errorf("%w: angles must lie in (0, 180), got (%g, %g, %g)", ErrInvalidUnitCell, alpha, beta, gamma)
		}
	}

	ca := math.Cos(alpha * math.Pi / 180)
	cb := math.Cos(beta * math.Pi / 180)
	cg := math.Cos(gamma * math.Pi / 180)

	g := mat.NewSymDense(3, []float64{
		a * a, a * b * cg, a * c * cb,
		a * b * cg, b * b, b * c * ca,
		a * c * cb, b * c * ca, c * c,
	})

	var chol mat.Cholesky
	if ok := chol.Factorize(g); !ok {
		return nil, fmt.Errorf("%w: angles (%g, %g, %g) do not form a lattice", ErrInvalidUnitCell, alpha, beta, gamma)
	}
	recip := mat.NewSymDense(3, nil)
	if err := chol.InverseTo(recip); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUnitCell, err)
	}

	return &UnitCell{
		A: a, B: b, C: c,
		Alpha: alpha, Beta: beta, Gamma: gamma,
		metric: g,
		recip:  recip,
	}, nil
}

// MustUnitCell is NewUnitCell for known-good literals; it panics on error.
func MustUnitCell(a, b, c, alpha, beta, gamma float64) *UnitCell {
	uc, err := NewUnitCell(a, b, c, alpha, beta, gamma)
	if err != nil {
		panic(err)
	}
	return uc
}

// Parameters returns (a, b, c, alpha, beta, gamma).
func (uc *UnitCell) Parameters() [6]float64 {
	return [6]float64{uc.A, uc.B, uc.C, uc.Alpha, uc.Beta, uc.Gamma}
}

// Volume returns the cell volume in Å³.
func (uc *UnitCell) Volume() float64 {
	return math.Sqrt(mat.Det(uc.metric))
}

// InvD2 returns 1/d² for reflection h, i.e. hᵀ G* h.
func (uc *UnitCell) InvD2(h MillerIndex) float64 {
	v := mat.NewVecDense(3, []float64{float64(h[0]), float64(h[1]), float64(h[2])})
	return mat.Inner(v, uc.recip, v)
}

// D returns the interplanar spacing of h in Å. The origin has infinite
// spacing.
func (uc *UnitCell) D(h MillerIndex) float64 {
	s := uc.InvD2(h)
	if s <= 0 {
		return math.Inf(1)
	}
	return 1 / math.Sqrt(s)
}

func (uc *UnitCell) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f, %.2f, %.2f, %.2f)", uc.A, uc.B, uc.C, uc.Alpha, uc.Beta, uc.Gamma)
}
