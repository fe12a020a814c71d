// Package covariance implements factor covariance estimation. Three
// estimators share a common interface: exponentially weighted moving
// average, Ledoit-Wolf shrinkage, and Newey-West HAC. A volatility regime
// detector can scale any estimator's output to current market conditions.
//
// Return matrices are observations-by-factors: row t holds the factor
// returns for period t, with the most recent period in the last row.
package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/pkg/formulas"
	"github.com/quantfold/riskmodel/pkg/matrix"
)

// ConditionWarnThreshold is the condition number above which estimates
// carry an IllConditioned warning.
const ConditionWarnThreshold = 1e12

// WarningKind classifies non-fatal estimation conditions.
type WarningKind string

const (
	// WarnIllConditioned indicates the estimate is near-singular or was
	// produced from fewer observations than factors.
	WarnIllConditioned WarningKind = "ill_conditioned"
	// WarnZeroVariance indicates a zero-variance column was retained.
	WarnZeroVariance WarningKind = "zero_variance"
	// WarnPSDAdjusted indicates eigenvalue clipping was applied.
	WarnPSDAdjusted WarningKind = "psd_adjusted"
)

// Warning is a non-fatal condition attached to an estimate. Warnings never
// block the result; callers decide whether to act on them.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Estimate is the result of a covariance estimation: a symmetric
// factors-by-factors matrix plus any warnings raised while producing it.
// Estimators are immutable after construction, so per-call diagnostics such
// as the applied shrinkage intensity live here, not on the estimator.
type Estimate struct {
	Cov *mat.SymDense
	// ShrinkageIntensity is the mixing weight a shrinkage estimator applied
	// to its target; zero for estimators that do not shrink.
	ShrinkageIntensity float64
	Warnings           []Warning
}

// CovRows returns the covariance matrix as row slices, for JSON responses
// and caching.
func (e *Estimate) CovRows() [][]float64 {
	n := e.Cov.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = e.Cov.At(i, j)
		}
	}
	return rows
}

// Estimator produces a factor covariance matrix from a return matrix.
// Implementations are immutable after construction and safe for concurrent
// use.
type Estimator interface {
	// Estimate computes the covariance of the given observations-by-factors
	// return matrix.
	Estimate(returns *mat.Dense) (*Estimate, error)
	// Name identifies the estimator in logs and API responses.
	Name() string
	// ConfigKey is a deterministic rendering of the full configuration,
	// used to key cached results so configuration changes never reuse a
	// stale fit.
	ConfigKey() string
}

// NewReturnMatrix builds a return matrix from row slices, validating that
// all rows have equal length and every value is finite.
func NewReturnMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, &InsufficientDataError{Required: 1, Actual: 0}
	}
	n := len(rows[0])
	if n == 0 {
		return nil, &DegenerateInputError{}
	}
	data := make([]float64, 0, len(rows)*n)
	for t, row := range rows {
		if len(row) != n {
			return nil, &InvalidConfigError{
				Field:  "returns",
				Reason: fmt.Sprintf("row %d has %d columns, expected %d", t, len(row), n),
			}
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidConfigError{
					Field:  "returns",
					Reason: fmt.Sprintf("non-finite value at row %d column %d", t, i),
				}
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), n, data), nil
}

// zeroVarianceColumns returns the indices of columns whose sample variance
// is numerically zero.
func zeroVarianceColumns(returns *mat.Dense) []int {
	rows, cols := returns.Dims()
	var zero []int
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, returns)
		if rows < 2 || formulas.Variance(col) < 1e-18 {
			// A single observation still has a defined squared deviation
			// from zero mean; treat only exact constancy as degenerate.
			if isConstant(col) {
				zero = append(zero, j)
			}
		}
	}
	return zero
}

func isConstant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

// validateReturns runs shared pre-estimation checks: minimum observations,
// finite values, and the zero-variance column policy. It returns the zero
// columns to retain (empty unless keepZero is set) or an error.
func validateReturns(returns *mat.Dense, minObs int, keepZero bool) ([]int, error) {
	rows, cols := returns.Dims()
	if cols == 0 {
		return nil, &DegenerateInputError{}
	}
	if rows < minObs {
		return nil, &InsufficientDataError{Required: minObs, Actual: rows}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := returns.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidConfigError{
					Field:  "returns",
					Reason: fmt.Sprintf("non-finite value at row %d column %d", i, j),
				}
			}
		}
	}

	zero := zeroVarianceColumns(returns)
	if len(zero) > 0 && !keepZero {
		return nil, &DegenerateInputError{Columns: zero}
	}
	return zero, nil
}

// conditionWarnings inspects an estimate for near-singularity and appends
// warnings. T <= N guarantees a rank-deficient sample-style estimate, so
// estimators without a full-rank guarantee warn on that alone.
func conditionWarnings(cov *mat.SymDense, rows, cols int, warnings []Warning) []Warning {
	if rows <= cols {
		warnings = append(warnings, Warning{
			Kind:    WarnIllConditioned,
			Message: fmt.Sprintf("observations (%d) do not exceed factors (%d); estimate is rank deficient", rows, cols),
		})
		return warnings
	}
	return conditionNumberWarning(cov, warnings)
}

// conditionNumberWarning warns only on an actually near-singular matrix.
// Used by shrinkage, whose output is full rank even when T <= N.
func conditionNumberWarning(cov *mat.SymDense, warnings []Warning) []Warning {
	kappa, err := matrix.ConditionNumber(cov)
	if err != nil {
		return warnings
	}
	if kappa > ConditionWarnThreshold {
		warnings = append(warnings, Warning{
			Kind:    WarnIllConditioned,
			Message: fmt.Sprintf("condition number exceeds %.0e", ConditionWarnThreshold),
		})
	}
	return warnings
}

// zeroVarianceWarnings builds retained-column warnings.
func zeroVarianceWarnings(columns []int, warnings []Warning) []Warning {
	for _, j := range columns {
		warnings = append(warnings, Warning{
			Kind:    WarnZeroVariance,
			Message: fmt.Sprintf("column %d has zero variance; its covariance row is zero", j),
		})
	}
	return warnings
}

// zeroOutColumns zeroes the covariance rows and columns of degenerate
// factors so the estimate stays well defined when they are retained.
func zeroOutColumns(cov *mat.SymDense, columns []int) {
	n := cov.SymmetricDim()
	for _, j := range columns {
		for i := 0; i < n; i++ {
			if i <= j {
				cov.SetSym(i, j, 0)
			} else {
				cov.SetSym(j, i, 0)
			}
		}
	}
}

// columnMeans returns the per-column means of a return matrix.
func columnMeans(returns *mat.Dense) []float64 {
	rows, cols := returns.Dims()
	means := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, returns)
		means[j] = formulas.Mean(col)
	}
	return means
}
