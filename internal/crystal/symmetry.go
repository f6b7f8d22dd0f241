package crystal

import (
	"fmt"
	"slices"
	"strings"
)

// op acts on a reflection as a row vector: h'[j] = Σ_i h[i]·op[i][j].
type op [3][3]int

var identity = op{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func (a op) mul(b op) op {
	var out op
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func (a op) apply(h MillerIndex) MillerIndex {
	var out MillerIndex
	for j := 0; j < 3; j++ {
		out[j] = h[0]*a[0][j] + h[1]*a[1][j] + h[2]*a[2][j]
	}
	return out
}

// Generators expressed in their action on (h, k, l).
var (
	genInversion = op{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	genTwoA      = op{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}  // (h,-k,-l)
	genTwoB      = op{{-1, 0, 0}, {0, 1, 0}, {0, 0, -1}}  // (-h,k,-l)
	genFourC     = op{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}   // (k,-h,l)
	genThreeC    = op{{0, -1, 0}, {1, -1, 0}, {0, 0, 1}}  // (k,-h-k,l)
	genSixC      = op{{1, -1, 0}, {1, 0, 0}, {0, 0, 1}}   // (h+k,-h,l)
	genTwoHexA   = op{{1, -1, 0}, {0, -1, 0}, {0, 0, -1}} // (h,-h-k,-l)
	genTwoHex110 = op{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}}   // (k,h,-l)
	genThree111  = op{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}}    // (l,h,k)
)

var laueGenerators = map[string][]op{
	"-1":    {genInversion},
	"2/m":   {genInversion, genTwoB},
	"mmm":   {genInversion, genTwoA, genTwoB},
	"4/m":   {genInversion, genFourC},
	"4/mmm": {genInversion, genFourC, genTwoA},
	"-3":    {genInversion, genThreeC},
	"-3m1":  {genInversion, genThreeC, genTwoHexA},
	"-31m":  {genInversion, genThreeC, genTwoHex110},
	"6/m":   {genInversion, genSixC},
	"6/mmm": {genInversion, genSixC, genTwoHexA},
	"m-3":   {genInversion, genTwoA, genTwoB, genThree111},
	"m-3m":  {genInversion, genFourC, genTwoA, genThree111},
}

var laueAliases = map[string]string{
	"-3m": "-3m1",
	"m3m": "m-3m",
	"m3":  "m-3",
}

// LaueGroup is a centrosymmetric point group acting on reflection indices.
// Symmetry-equivalent reflections (including Friedel mates) share one
// asymmetric-unit representative.
type LaueGroup struct {
	name string
	ops  []op
}

// LaueGroupNames lists the supported Laue group symbols.
func LaueGroupNames() []string {
	names := make([]string, 0, len(laueGenerators))
	for n := range laueGenerators {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ParseLaueGroup looks up a Laue group by its Hermann–Mauguin symbol.
func ParseLaueGroup(name string) (*LaueGroup, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	if alias, ok := laueAliases[key]; ok {
		key = alias
	}
	gens, ok := laueGenerators[key]
	if !ok {
		return nil, fmt.Errorf("unknown Laue group %q (supported: %s)", name, strings.Join(LaueGroupNames(), ", "))
	}
	return &LaueGroup{name: key, ops: closeGroup(gens)}, nil
}

// MustLaueGroup is ParseLaueGroup for known symbols; it panics on error.
func MustLaueGroup(name string) *LaueGroup {
	g, err := ParseLaueGroup(name)
	if err != nil {
		panic(err)
	}
	return g
}

// closeGroup generates the full group from its generators.
func closeGroup(gens []op) []op {
	seen := map[op]bool{identity: true}
	group := []op{identity}
	for i := 0; i < len(group); i++ {
		for _, g := range gens {
			next := group[i].mul(g)
			if !seen[next] {
				seen[next] = true
				group = append(group, next)
			}
		}
	}
	return group
}

// Name returns the canonical symbol.
func (g *LaueGroup) Name() string { return g.name }

// Order returns the number of symmetry operations.
func (g *LaueGroup) Order() int { return len(g.ops) }

// Equivalents returns the distinct indices equivalent to h, sorted.
func (g *LaueGroup) Equivalents(h MillerIndex) []MillerIndex {
	out := make([]MillerIndex, 0, len(g.ops))
	for _, o := range g.ops {
		out = append(out, o.apply(h))
	}
	slices.SortFunc(out, Compare)
	return slices.Compact(out)
}

// MapToASU returns the asymmetric-unit representative of h: the
// lexicographically greatest member of its equivalence class.
func (g *LaueGroup) MapToASU(h MillerIndex) MillerIndex {
	best := h
	for _, o := range g.ops {
		if e := o.apply(h); best.Less(e) {
			best = e
		}
	}
	return best
}

// Multiplicity returns the number of distinct equivalents of h.
func (g *LaueGroup) Multiplicity(h MillerIndex) int {
	return len(g.Equivalents(h))
}
