// Package roots isolates real polynomial roots inside an interval.
//
// Roots of the derivative split the interval into monotonic pieces, and each piece is
// refined with false position. The tolerance is absolute and fixed, so very large or
// very small coefficient scales lose precision.
package roots

import "github.com/chewxy/math32"

const (
	// IterativeThreshold stops refinement once successive estimates differ by less.
	IterativeThreshold float32 = 0.00005
	// MaxIterations bounds refinement when float32 rounding stalls progress.
	MaxIterations = 200
)

// Evaluate computes the polynomial with coefficients ordered from the highest degree.
func Evaluate(coeffs []float32, t float32) float32 {
	if len(coeffs) == 0 {
		return 0
	}
	ft := coeffs[0]
	for _, c := range coeffs[1:] {
		ft = ft*t + c
	}
	return ft
}

// QuadraticRootsInInterval returns the roots of a*x^2+b*x+c strictly inside (m, n) in
// ascending order when a > 0. A zero discriminant yields a single root.
func QuadraticRootsInInterval(a, b, c, m, n float32) []float32 {
	xs := make([]float32, 0, 2)
	disc := b*b - 4*a*c
	switch {
	case disc == 0:
		x := -b / 2 / a
		if m < x && x < n {
			xs = append(xs, x)
		}
	case disc > 0:
		g := -b / 2 / a
		h := math32.Sqrt(disc) / 2 / a
		if x1 := g - h; m < x1 && x1 < n {
			xs = append(xs, x1)
		}
		if x2 := g + h; m < x2 && x2 < n {
			xs = append(xs, x2)
		}
	}
	return xs
}

// CubicRootsInInterval returns every root of the cubic found in [m, n).
func CubicRootsInInterval(coeffs [4]float32, m, n float32) []float32 {
	//1.- Critical points come from the derivative 3a*x^2 + 2b*x + c.
	crits := QuadraticRootsInInterval(3*coeffs[0], 2*coeffs[1], coeffs[2], m, n)
	endpoints := intervalEndpoints(m, n, crits)

	//2.- Each monotonic piece holds at most one root.
	xs := make([]float32, 0, 3)
	for i := 0; i+1 < len(endpoints); i++ {
		if x, _, ok := RootInMonotonicInterval(coeffs[:], endpoints[i], endpoints[i+1]); ok {
			xs = append(xs, x)
		}
	}
	return xs
}

// LowestQuarticRootInInterval returns the first root in [m, n) where the quartic falls
// from non-negative to negative. Rising crossings are skipped.
func LowestQuarticRootInInterval(coeffs [5]float32, m, n float32) (float32, bool) {
	//1.- Critical points come from the cubic derivative.
	deriv := [4]float32{4 * coeffs[0], 3 * coeffs[1], 2 * coeffs[2], coeffs[3]}
	crits := CubicRootsInInterval(deriv, m, n)
	endpoints := intervalEndpoints(m, n, crits)

	//2.- Walk the pieces left to right and accept the first decreasing crossing.
	for i := 0; i+1 < len(endpoints); i++ {
		x, increasing, ok := RootInMonotonicInterval(coeffs[:], endpoints[i], endpoints[i+1])
		if ok && !increasing {
			return x, true
		}
	}
	return 0, false
}

// RootInMonotonicInterval refines the single root of a polynomial that is monotonic on
// [m, n]. It reports whether the polynomial increases across the interval and whether
// a sign change brackets a root at all.
func RootInMonotonicInterval(coeffs []float32, m, n float32) (x float32, increasing bool, ok bool) {
	xmin, xmax := m, n
	fxmin := Evaluate(coeffs, xmin)
	fxmax := Evaluate(coeffs, xmax)
	increasing = fxmax > fxmin

	//1.- Flip the sign so that f(xmin) <= 0 holds for the rest of the search.
	var negate float32 = 1
	if fxmin > 0 {
		fxmin = -fxmin
		fxmax = -fxmax
		negate = -1
	}
	if fxmax <= 0 {
		return 0, increasing, false
	}

	//2.- Step with false position keeping f(xmin) <= 0 < f(xmax).
	x = m - IterativeThreshold - 1
	for i := 0; i < MaxIterations; i++ {
		xprev := x
		x = xmin + fxmin/(fxmin-fxmax)*(xmax-xmin)
		fx := negate * Evaluate(coeffs, x)
		if fx <= 0 {
			xmin, fxmin = x, fx
		} else {
			xmax, fxmax = x, fx
		}
		if math32.Abs(x-xprev) <= IterativeThreshold {
			break
		}
	}
	return x, increasing, true
}

func intervalEndpoints(m, n float32, crits []float32) []float32 {
	endpoints := make([]float32, 0, len(crits)+2)
	endpoints = append(endpoints, m)
	endpoints = append(endpoints, crits...)
	return append(endpoints, n)
}
