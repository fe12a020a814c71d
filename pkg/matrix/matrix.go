// Package matrix provides numerically safe helpers for symmetric matrices:
// eigendecomposition, positive semi-definite repair, and conditioning checks.
// Every covariance estimator in the engine builds on these.
package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultEigenTolerance is the eigenvalue threshold below which a matrix
	// is not considered positive definite.
	DefaultEigenTolerance = 1e-10

	// DefaultEigenFloor is the value negative eigenvalues are clipped to
	// during PSD repair.
	DefaultEigenFloor = 1e-10

	// DefaultSymmetryTolerance bounds the allowed asymmetry |m_ij - m_ji|
	// relative to the matrix scale.
	DefaultSymmetryTolerance = 1e-9
)

// NumericalError reports an eigendecomposition failure or an input that is
// not symmetric within tolerance. It indicates either a caller bug or
// extreme ill-conditioning.
type NumericalError struct {
	Op     string
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error in %s: %s", e.Op, e.Reason)
}

// DimensionError reports a non-square or size-mismatched matrix argument.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// PSDConfig controls positive semi-definite repair.
type PSDConfig struct {
	// MinEigenvalue is the floor applied to clipped eigenvalues.
	MinEigenvalue float64
	// PreserveTrace rescales eigenvalues after clipping so the trace of the
	// repaired matrix matches the input.
	PreserveTrace bool
}

// DefaultPSDConfig returns the standard repair configuration.
func DefaultPSDConfig() PSDConfig {
	return PSDConfig{MinEigenvalue: DefaultEigenFloor}
}

// PSDReport describes how much correction a PSD repair applied. A repair
// that silently rewrites a covariance matrix hides real estimation problems,
// so the applied correction is always surfaced to the caller.
type PSDReport struct {
	// Adjusted is true when at least one eigenvalue was clipped.
	Adjusted bool
	// SmallestEigenvalue is the smallest eigenvalue before repair.
	SmallestEigenvalue float64
	// ClippedCount is the number of eigenvalues raised to the floor.
	ClippedCount int
	// Correction is the Frobenius norm of the difference between the
	// repaired matrix and the input.
	Correction float64
}

// SymFromDense converts a square dense matrix to symmetric form, failing if
// the input is not symmetric within tol (relative to the matrix scale).
// Entries are averaged across the diagonal to remove residual asymmetry.
func SymFromDense(d *mat.Dense, tol float64) (*mat.SymDense, error) {
	r, c := d.Dims()
	if r != c {
		return nil, &DimensionError{Expected: r, Actual: c}
	}
	if tol <= 0 {
		tol = DefaultSymmetryTolerance
	}

	scale := 1.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := math.Abs(d.At(i, j)); v > scale {
				scale = v
			}
		}
	}

	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			a, b := d.At(i, j), d.At(j, i)
			if math.Abs(a-b) > tol*scale {
				return nil, &NumericalError{
					Op:     "SymFromDense",
					Reason: fmt.Sprintf("matrix not symmetric at (%d,%d): %g vs %g", i, j, a, b),
				}
			}
			sym.SetSym(i, j, (a+b)/2)
		}
	}
	return sym, nil
}

// EigenSym computes the eigendecomposition of a symmetric matrix.
// Eigenvalues are returned in ascending order; eigenvectors are the columns
// of the returned matrix in the same order.
func EigenSym(m *mat.SymDense) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(m, true); !ok {
		return nil, nil, &NumericalError{Op: "EigenSym", Reason: "eigendecomposition did not converge"}
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	return values, &vectors, nil
}

// ProjectToPSD clips negative (or sub-floor) eigenvalues and reconstructs
// the matrix, returning the repaired matrix along with a report of the
// applied correction. An already-PSD input is returned unchanged with a
// zero correction.
func ProjectToPSD(m *mat.SymDense, cfg PSDConfig) (*mat.SymDense, PSDReport, error) {
	n := m.SymmetricDim()
	values, vectors, err := EigenSym(m)
	if err != nil {
		return nil, PSDReport{}, err
	}

	report := PSDReport{SmallestEigenvalue: values[0]}

	clipped := make([]float64, n)
	for i, v := range values {
		if v < cfg.MinEigenvalue {
			clipped[i] = cfg.MinEigenvalue
			report.ClippedCount++
		} else {
			clipped[i] = v
		}
	}

	if report.ClippedCount == 0 {
		out := mat.NewSymDense(n, nil)
		out.CopySym(m)
		return out, report, nil
	}
	report.Adjusted = true

	if cfg.PreserveTrace {
		var original, adjusted float64
		for i := range values {
			original += values[i]
			adjusted += clipped[i]
		}
		if original > 0 && adjusted > 0 {
			scale := original / adjusted
			for i := range clipped {
				clipped[i] *= scale
			}
		}
	}

	// Reconstruct V * diag(clipped) * V^T.
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vectors.At(i, j)*clipped[j])
		}
	}
	var reconstructed mat.Dense
	reconstructed.Mul(scaled, vectors.T())

	out := mat.NewSymDense(n, nil)
	var sq float64
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Average across the diagonal to remove round-off asymmetry.
			v := (reconstructed.At(i, j) + reconstructed.At(j, i)) / 2
			out.SetSym(i, j, v)

			d := v - m.At(i, j)
			if i == j {
				sq += d * d
			} else {
				sq += 2 * d * d
			}
		}
	}
	report.Correction = math.Sqrt(sq)

	return out, report, nil
}

// IsPositiveDefinite reports whether all eigenvalues exceed tol.
// A non-positive tol uses DefaultEigenTolerance.
func IsPositiveDefinite(m *mat.SymDense, tol float64) bool {
	if tol <= 0 {
		tol = DefaultEigenTolerance
	}

	// Cheap necessary condition before factorizing.
	for i := 0; i < m.SymmetricDim(); i++ {
		if m.At(i, i) <= 0 {
			return false
		}
	}

	values, _, err := EigenSym(m)
	if err != nil {
		return false
	}
	for _, v := range values {
		if v <= tol {
			return false
		}
	}
	return true
}

// ConditionNumber returns the ratio of the largest to smallest eigenvalue
// magnitude. Returns +Inf when the smallest magnitude is numerically zero.
func ConditionNumber(m *mat.SymDense) (float64, error) {
	values, _, err := EigenSym(m)
	if err != nil {
		return 0, err
	}

	maxAbs, minAbs := 0.0, math.Inf(1)
	for _, v := range values {
		a := math.Abs(v)
		if a > maxAbs {
			maxAbs = a
		}
		if a < minAbs {
			minAbs = a
		}
	}
	if minAbs < 1e-15 {
		return math.Inf(1), nil
	}
	return maxAbs / minAbs, nil
}
