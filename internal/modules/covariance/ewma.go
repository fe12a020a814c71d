package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultEWMADecay is the per-period decay factor, chosen for daily factor
// returns (roughly a 13-day half-life).
const DefaultEWMADecay = 0.95

// EWMAConfig configures the exponentially weighted estimator.
type EWMAConfig struct {
	// Decay is the per-period decay factor lambda in (0, 1).
	Decay float64
	// MinObservations is the minimum number of return rows required.
	MinObservations int
	// CenterReturns subtracts the sample mean from each column before
	// weighting. Off by default: daily factor returns have means close to
	// zero and the zero-mean convention matches standard risk practice.
	CenterReturns bool
	// KeepZeroVariance retains zero-variance columns as zeroed rows and
	// columns with a warning instead of failing.
	KeepZeroVariance bool
}

// DefaultEWMAConfig returns the standard EWMA configuration.
func DefaultEWMAConfig() EWMAConfig {
	return EWMAConfig{
		Decay:           DefaultEWMADecay,
		MinObservations: 2,
	}
}

// EWMA estimates covariance with exponentially decaying observation
// weights, so recent periods dominate. The weighted sum is normalized by
// the total weight, which keeps the estimate unbiased for any sample
// length.
type EWMA struct {
	cfg EWMAConfig
}

// NewEWMA validates the configuration and returns the estimator.
func NewEWMA(cfg EWMAConfig) (*EWMA, error) {
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		return nil, &InvalidConfigError{Field: "Decay", Reason: "must be in (0, 1)"}
	}
	if cfg.MinObservations < 2 {
		return nil, &InvalidConfigError{Field: "MinObservations", Reason: "must be at least 2"}
	}
	return &EWMA{cfg: cfg}, nil
}

// Name implements Estimator.
func (e *EWMA) Name() string { return "ewma" }

// ConfigKey implements Estimator.
func (e *EWMA) ConfigKey() string {
	return fmt.Sprintf("ewma|decay=%g|minobs=%d|center=%t|keepzero=%t",
		e.cfg.Decay, e.cfg.MinObservations, e.cfg.CenterReturns, e.cfg.KeepZeroVariance)
}

// HalfLife returns the number of periods over which an observation's weight
// halves.
func (e *EWMA) HalfLife() float64 {
	return math.Log(0.5) / math.Log(e.cfg.Decay)
}

// Estimate implements Estimator. The last row of returns is the most recent
// period and receives the highest weight.
func (e *EWMA) Estimate(returns *mat.Dense) (*Estimate, error) {
	zeroCols, err := validateReturns(returns, e.cfg.MinObservations, e.cfg.KeepZeroVariance)
	if err != nil {
		return nil, err
	}

	rows, cols := returns.Dims()

	var means []float64
	if e.cfg.CenterReturns {
		means = columnMeans(returns)
	} else {
		means = make([]float64, cols)
	}

	// Weight lambda^k for the observation k periods before the latest,
	// normalized so the weights sum to one.
	weights := make([]float64, rows)
	var total float64
	w := 1.0
	for k := 0; k < rows; k++ {
		weights[rows-1-k] = w
		total += w
		w *= e.cfg.Decay
	}
	for t := range weights {
		weights[t] /= total
	}

	cov := mat.NewSymDense(cols, nil)
	row := make([]float64, cols)
	for t := 0; t < rows; t++ {
		for j := 0; j < cols; j++ {
			row[j] = returns.At(t, j) - means[j]
		}
		for i := 0; i < cols; i++ {
			for j := i; j < cols; j++ {
				cov.SetSym(i, j, cov.At(i, j)+weights[t]*row[i]*row[j])
			}
		}
	}

	var warnings []Warning
	if len(zeroCols) > 0 {
		zeroOutColumns(cov, zeroCols)
		warnings = zeroVarianceWarnings(zeroCols, warnings)
	}
	warnings = conditionWarnings(cov, rows, cols, warnings)

	return &Estimate{Cov: cov, Warnings: warnings}, nil
}
