package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/pkg/formulas"
)

// ShrinkageTarget selects the structured matrix the sample covariance is
// shrunk towards.
type ShrinkageTarget string

const (
	// TargetIdentity shrinks towards the identity scaled by the average
	// sample variance.
	TargetIdentity ShrinkageTarget = "identity"
	// TargetConstantCorrelation keeps sample variances and replaces all
	// correlations with their average.
	TargetConstantCorrelation ShrinkageTarget = "constant_correlation"
	// TargetSingleIndex uses a one-factor market model: beta_i * beta_j *
	// var(market) off the diagonal, sample variances on it.
	TargetSingleIndex ShrinkageTarget = "single_index"
)

// ShrinkageConfig configures the Ledoit-Wolf estimator.
type ShrinkageConfig struct {
	Target ShrinkageTarget
	// MinShrinkage and MaxShrinkage clamp the estimated intensity.
	MinShrinkage float64
	MaxShrinkage float64
	// MinObservations is the minimum number of return rows required.
	MinObservations int
	// CenterReturns subtracts column means before estimation.
	CenterReturns bool
	// KeepZeroVariance retains zero-variance columns with a warning.
	KeepZeroVariance bool
}

// DefaultShrinkageConfig returns the standard Ledoit-Wolf configuration
// with the constant-correlation target.
func DefaultShrinkageConfig() ShrinkageConfig {
	return ShrinkageConfig{
		Target:          TargetConstantCorrelation,
		MinShrinkage:    0,
		MaxShrinkage:    1,
		MinObservations: 2,
	}
}

// LedoitWolf shrinks the sample covariance towards a structured target,
// with the shrinkage intensity estimated from the data: noisy samples
// (short histories, many factors) shrink harder, long clean samples barely
// move.
type LedoitWolf struct {
	cfg ShrinkageConfig
}

// NewLedoitWolf validates the configuration and returns the estimator.
func NewLedoitWolf(cfg ShrinkageConfig) (*LedoitWolf, error) {
	switch cfg.Target {
	case TargetIdentity, TargetConstantCorrelation, TargetSingleIndex:
	default:
		return nil, &InvalidConfigError{Field: "Target", Reason: "unknown shrinkage target"}
	}
	if cfg.MinShrinkage < 0 || cfg.MinShrinkage > 1 {
		return nil, &InvalidConfigError{Field: "MinShrinkage", Reason: "must be in [0, 1]"}
	}
	if cfg.MaxShrinkage < cfg.MinShrinkage || cfg.MaxShrinkage > 1 {
		return nil, &InvalidConfigError{Field: "MaxShrinkage", Reason: "must be in [MinShrinkage, 1]"}
	}
	if cfg.MinObservations < 2 {
		return nil, &InvalidConfigError{Field: "MinObservations", Reason: "must be at least 2"}
	}
	return &LedoitWolf{cfg: cfg}, nil
}

// Name implements Estimator.
func (l *LedoitWolf) Name() string { return "ledoit_wolf" }

// ConfigKey implements Estimator.
func (l *LedoitWolf) ConfigKey() string {
	return fmt.Sprintf("ledoit_wolf|target=%s|min=%g|max=%g|minobs=%d|center=%t|keepzero=%t",
		l.cfg.Target, l.cfg.MinShrinkage, l.cfg.MaxShrinkage,
		l.cfg.MinObservations, l.cfg.CenterReturns, l.cfg.KeepZeroVariance)
}

// Estimate implements Estimator.
func (l *LedoitWolf) Estimate(returns *mat.Dense) (*Estimate, error) {
	zeroCols, err := validateReturns(returns, l.cfg.MinObservations, l.cfg.KeepZeroVariance)
	if err != nil {
		return nil, err
	}

	rows, cols := returns.Dims()

	centered := mat.NewDense(rows, cols, nil)
	centered.Copy(returns)
	if l.cfg.CenterReturns {
		means := columnMeans(returns)
		for t := 0; t < rows; t++ {
			for j := 0; j < cols; j++ {
				centered.Set(t, j, returns.At(t, j)-means[j])
			}
		}
	}

	sample := sampleCovariance(centered)
	target := l.buildTarget(centered, sample)
	intensity := shrinkageIntensity(centered, sample, target)
	intensity = math.Min(math.Max(intensity, l.cfg.MinShrinkage), l.cfg.MaxShrinkage)

	cov := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			cov.SetSym(i, j, intensity*target.At(i, j)+(1-intensity)*sample.At(i, j))
		}
	}

	var warnings []Warning
	if len(zeroCols) > 0 {
		zeroOutColumns(cov, zeroCols)
		warnings = zeroVarianceWarnings(zeroCols, warnings)
	}
	// Shrinkage keeps the estimate full rank even when T <= N, so only an
	// actually extreme condition number warrants a warning.
	warnings = conditionNumberWarning(cov, warnings)

	return &Estimate{Cov: cov, ShrinkageIntensity: intensity, Warnings: warnings}, nil
}

// sampleCovariance computes the 1/T covariance of an already-centered
// return matrix.
func sampleCovariance(centered *mat.Dense) *mat.SymDense {
	rows, cols := centered.Dims()
	cov := mat.NewSymDense(cols, nil)
	invT := 1.0 / float64(rows)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			var sum float64
			for t := 0; t < rows; t++ {
				sum += centered.At(t, i) * centered.At(t, j)
			}
			cov.SetSym(i, j, sum*invT)
		}
	}
	return cov
}

func (l *LedoitWolf) buildTarget(centered *mat.Dense, sample *mat.SymDense) *mat.SymDense {
	switch l.cfg.Target {
	case TargetConstantCorrelation:
		return constantCorrelationTarget(sample)
	case TargetSingleIndex:
		return singleIndexTarget(centered, sample)
	default:
		return identityTarget(sample)
	}
}

// identityTarget is the identity scaled by the mean sample variance.
func identityTarget(sample *mat.SymDense) *mat.SymDense {
	n := sample.SymmetricDim()
	avg := averageVariance(sample)
	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		target.SetSym(i, i, avg)
	}
	return target
}

// constantCorrelationTarget keeps sample variances and replaces every
// pairwise correlation with the average sample correlation.
func constantCorrelationTarget(sample *mat.SymDense) *mat.SymDense {
	n := sample.SymmetricDim()
	vols := make([]float64, n)
	for i := 0; i < n; i++ {
		vols[i] = math.Sqrt(sample.At(i, i))
	}

	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := vols[i] * vols[j]
			if denom > 0 {
				sum += sample.At(i, j) / denom
				count++
			}
		}
	}
	rho := 0.0
	if count > 0 {
		rho = sum / float64(count)
	}

	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		target.SetSym(i, i, sample.At(i, i))
		for j := i + 1; j < n; j++ {
			target.SetSym(i, j, rho*vols[i]*vols[j])
		}
	}
	return target
}

// singleIndexTarget fits a one-factor model with the equal-weighted average
// return as the market proxy. Off-diagonal entries are beta_i * beta_j *
// var(market); the diagonal keeps the sample variances.
func singleIndexTarget(centered *mat.Dense, sample *mat.SymDense) *mat.SymDense {
	rows, cols := centered.Dims()

	market := make([]float64, rows)
	for t := 0; t < rows; t++ {
		var sum float64
		for j := 0; j < cols; j++ {
			sum += centered.At(t, j)
		}
		market[t] = sum / float64(cols)
	}

	var marketVar float64
	for _, m := range market {
		marketVar += m * m
	}
	marketVar /= float64(rows)

	betas := make([]float64, cols)
	if marketVar > 0 {
		for j := 0; j < cols; j++ {
			var covJM float64
			for t := 0; t < rows; t++ {
				covJM += centered.At(t, j) * market[t]
			}
			covJM /= float64(rows)
			betas[j] = covJM / marketVar
		}
	}

	target := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		target.SetSym(i, i, sample.At(i, i))
		for j := i + 1; j < cols; j++ {
			target.SetSym(i, j, betas[i]*betas[j]*marketVar)
		}
	}
	return target
}

// shrinkageIntensity estimates the optimal mixing weight following Ledoit
// and Wolf: pi-hat measures the variance of the sample covariance entries,
// gamma-hat the squared distance between sample and target. The ratio
// pi / (T * gamma) balances estimation noise against target misspecification.
func shrinkageIntensity(centered *mat.Dense, sample, target *mat.SymDense) float64 {
	rows, cols := centered.Dims()
	T := float64(rows)

	var piHat float64
	for i := 0; i < cols; i++ {
		for j := 0; j < cols; j++ {
			sij := sample.At(i, j)
			var sum float64
			for t := 0; t < rows; t++ {
				d := centered.At(t, i)*centered.At(t, j) - sij
				sum += d * d
			}
			piHat += sum / T
		}
	}

	var gammaHat float64
	for i := 0; i < cols; i++ {
		for j := 0; j < cols; j++ {
			d := sample.At(i, j) - target.At(i, j)
			gammaHat += d * d
		}
	}

	if gammaHat < 1e-18 {
		// Sample already matches the target; any intensity gives the same
		// matrix, so prefer no shrinkage.
		return 0
	}
	return piHat / (T * gammaHat)
}

// averageVariance is the mean of the diagonal of a covariance matrix.
func averageVariance(sample *mat.SymDense) float64 {
	n := sample.SymmetricDim()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		diag[i] = sample.At(i, i)
	}
	return formulas.Mean(diag)
}
