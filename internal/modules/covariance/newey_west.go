package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/pkg/matrix"
)

// NeweyWestConfig configures the HAC estimator.
type NeweyWestConfig struct {
	// Lags is the number of autocovariance lags. Nil selects the lag
	// automatically as floor(4 * (T/100)^(2/9)).
	Lags *int
	// MinObservations is the minimum number of return rows required.
	MinObservations int
	// CenterReturns subtracts column means before estimation.
	CenterReturns bool
	// KeepZeroVariance retains zero-variance columns with a warning.
	KeepZeroVariance bool
	// PSD controls the eigenvalue repair applied to the final matrix.
	PSD matrix.PSDConfig
}

// DefaultNeweyWestConfig returns the standard configuration with automatic
// lag selection.
func DefaultNeweyWestConfig() NeweyWestConfig {
	return NeweyWestConfig{
		MinObservations: 2,
		PSD:             matrix.DefaultPSDConfig(),
	}
}

// NeweyWest estimates covariance robust to autocorrelation: lagged
// autocovariances are added to the contemporaneous estimate with Bartlett
// kernel weights, then the result is projected back to positive
// semi-definite since the weighted sum can leave the PSD cone.
type NeweyWest struct {
	cfg NeweyWestConfig
}

// NewNeweyWest validates the configuration and returns the estimator.
func NewNeweyWest(cfg NeweyWestConfig) (*NeweyWest, error) {
	if cfg.Lags != nil && *cfg.Lags < 0 {
		return nil, &InvalidConfigError{Field: "Lags", Reason: "must be non-negative"}
	}
	if cfg.MinObservations < 2 {
		return nil, &InvalidConfigError{Field: "MinObservations", Reason: "must be at least 2"}
	}
	if cfg.PSD.MinEigenvalue <= 0 {
		cfg.PSD.MinEigenvalue = matrix.DefaultEigenFloor
	}
	return &NeweyWest{cfg: cfg}, nil
}

// Name implements Estimator.
func (n *NeweyWest) Name() string { return "newey_west" }

// ConfigKey implements Estimator.
func (n *NeweyWest) ConfigKey() string {
	lags := "auto"
	if n.cfg.Lags != nil {
		lags = fmt.Sprintf("%d", *n.cfg.Lags)
	}
	return fmt.Sprintf("newey_west|lags=%s|minobs=%d|center=%t|keepzero=%t|floor=%g|trace=%t",
		lags, n.cfg.MinObservations, n.cfg.CenterReturns, n.cfg.KeepZeroVariance,
		n.cfg.PSD.MinEigenvalue, n.cfg.PSD.PreserveTrace)
}

// AutoLags returns the automatic lag choice for a sample of length t.
func AutoLags(t int) int {
	return int(math.Floor(4 * math.Pow(float64(t)/100.0, 2.0/9.0)))
}

// Estimate implements Estimator.
func (n *NeweyWest) Estimate(returns *mat.Dense) (*Estimate, error) {
	zeroCols, err := validateReturns(returns, n.cfg.MinObservations, n.cfg.KeepZeroVariance)
	if err != nil {
		return nil, err
	}

	rows, cols := returns.Dims()

	lags := AutoLags(rows)
	if n.cfg.Lags != nil {
		lags = *n.cfg.Lags
	}
	if lags >= rows {
		lags = rows - 1
	}

	centered := mat.NewDense(rows, cols, nil)
	centered.Copy(returns)
	if n.cfg.CenterReturns {
		means := columnMeans(returns)
		for t := 0; t < rows; t++ {
			for j := 0; j < cols; j++ {
				centered.Set(t, j, returns.At(t, j)-means[j])
			}
		}
	}

	// Contemporaneous term Sigma_0.
	nw := mat.NewDense(cols, cols, nil)
	gamma0 := autocovariance(centered, 0)
	nw.Copy(gamma0)

	// Lagged terms: w_l * (Sigma_l + Sigma_l^T) with Bartlett weights.
	for l := 1; l <= lags; l++ {
		w := 1.0 - float64(l)/float64(lags+1)
		gammaL := autocovariance(centered, l)
		for i := 0; i < cols; i++ {
			for j := 0; j < cols; j++ {
				nw.Set(i, j, nw.At(i, j)+w*(gammaL.At(i, j)+gammaL.At(j, i)))
			}
		}
	}

	sym, err := matrix.SymFromDense(nw, 0)
	if err != nil {
		return nil, fmt.Errorf("symmetrizing HAC estimate: %w", err)
	}

	cov, report, err := matrix.ProjectToPSD(sym, n.cfg.PSD)
	if err != nil {
		return nil, fmt.Errorf("repairing HAC estimate: %w", err)
	}

	var warnings []Warning
	if report.Adjusted {
		warnings = append(warnings, Warning{
			Kind: WarnPSDAdjusted,
			Message: fmt.Sprintf("clipped %d eigenvalues (smallest %.3e, correction %.3e)",
				report.ClippedCount, report.SmallestEigenvalue, report.Correction),
		})
	}
	if len(zeroCols) > 0 {
		zeroOutColumns(cov, zeroCols)
		warnings = zeroVarianceWarnings(zeroCols, warnings)
	}
	warnings = conditionWarnings(cov, rows, cols, warnings)

	return &Estimate{Cov: cov, Warnings: warnings}, nil
}

// autocovariance computes Sigma_l = (1/T) * sum_t y_t y_{t-l}^T for an
// already-centered return matrix. All lags share the 1/T normalization.
func autocovariance(centered *mat.Dense, lag int) *mat.Dense {
	rows, cols := centered.Dims()
	out := mat.NewDense(cols, cols, nil)
	invT := 1.0 / float64(rows)
	for t := lag; t < rows; t++ {
		for i := 0; i < cols; i++ {
			yi := centered.At(t, i)
			for j := 0; j < cols; j++ {
				out.Set(i, j, out.At(i, j)+invT*yi*centered.At(t-lag, j))
			}
		}
	}
	return out
}
