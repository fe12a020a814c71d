// Package specificrisk estimates the idiosyncratic risk of individual
// securities from factor-model residuals. Per-security sample variances are
// shrunk towards a cross-sectional prior, with the shrinkage fading as a
// security accumulates history.
package specificrisk

import (
	"fmt"
	"math"
	"sort"

	"github.com/quantfold/riskmodel/pkg/formulas"
)

// VarianceMethod selects how per-security residual variance is computed.
type VarianceMethod string

const (
	// MethodHistorical uses the equal-weighted sample variance.
	MethodHistorical VarianceMethod = "historical"
	// MethodEWMA uses exponentially decaying weights, most recent residual
	// last.
	MethodEWMA VarianceMethod = "ewma"
)

// Config tunes the Bayesian specific risk estimator.
type Config struct {
	Method VarianceMethod
	// EWMADecay is the per-period decay used by MethodEWMA.
	EWMADecay float64
	// MinObservations is the history length below which the estimate is
	// fully shrunk to the prior.
	MinObservations int
	// ShrinkageStrength controls how slowly shrinkage fades with history
	// beyond MinObservations. Larger values trust the prior longer.
	ShrinkageStrength float64
	// AnnualizationFactor multiplies estimated variances. Leave at 1 to
	// keep specific variances in the same per-period units as the factor
	// covariance.
	AnnualizationFactor float64
	// DefaultPriorVol is the annualized prior volatility used when the
	// cross-section is empty of usable variances.
	DefaultPriorVol float64
}

// DefaultConfig returns the standard specific risk configuration.
func DefaultConfig() Config {
	return Config{
		Method:              MethodHistorical,
		EWMADecay:           0.95,
		MinObservations:     20,
		ShrinkageStrength:   60,
		AnnualizationFactor: 1,
		DefaultPriorVol:     0.30,
	}
}

// InsufficientDataError is returned when a security has no residual
// observations at all.
type InsufficientDataError struct {
	Security int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: security %d has no residual observations", e.Security)
}

// InvalidConfigError is returned when the configuration fails validation.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Risk is the specific risk estimate for one security.
type Risk struct {
	// Vol is the specific volatility, sqrt of Variance.
	Vol float64 `json:"vol"`
	// Variance is the shrunk specific variance.
	Variance float64 `json:"variance"`
	// Intensity is the weight placed on the prior, in [0, 1].
	Intensity float64 `json:"intensity"`
	// Observations is the residual history length used.
	Observations int `json:"observations"`
}

// BatchEstimate holds the estimates for a universe of securities along with
// the cross-sectional prior they were shrunk towards.
type BatchEstimate struct {
	Risks         []Risk  `json:"risks"`
	PriorVariance float64 `json:"prior_variance"`
}

// Vols returns the specific volatilities in security order.
func (b *BatchEstimate) Vols() []float64 {
	out := make([]float64, len(b.Risks))
	for i, r := range b.Risks {
		out[i] = r.Vol
	}
	return out
}

// Variances returns the specific variances in security order.
func (b *BatchEstimate) Variances() []float64 {
	out := make([]float64, len(b.Risks))
	for i, r := range b.Risks {
		out[i] = r.Variance
	}
	return out
}

// Estimator computes Bayesian-shrunk specific risk.
type Estimator struct {
	cfg Config
}

// New validates the configuration and returns an estimator.
func New(cfg Config) (*Estimator, error) {
	switch cfg.Method {
	case MethodHistorical, MethodEWMA:
	default:
		return nil, &InvalidConfigError{Field: "Method", Reason: "unknown variance method"}
	}
	if cfg.Method == MethodEWMA && (cfg.EWMADecay <= 0 || cfg.EWMADecay >= 1) {
		return nil, &InvalidConfigError{Field: "EWMADecay", Reason: "must be in (0, 1)"}
	}
	if cfg.MinObservations < 1 {
		return nil, &InvalidConfigError{Field: "MinObservations", Reason: "must be at least 1"}
	}
	if cfg.ShrinkageStrength <= 0 {
		return nil, &InvalidConfigError{Field: "ShrinkageStrength", Reason: "must be positive"}
	}
	if cfg.AnnualizationFactor <= 0 {
		return nil, &InvalidConfigError{Field: "AnnualizationFactor", Reason: "must be positive"}
	}
	if cfg.DefaultPriorVol <= 0 {
		return nil, &InvalidConfigError{Field: "DefaultPriorVol", Reason: "must be positive"}
	}
	return &Estimator{cfg: cfg}, nil
}

// ConfigKey is a deterministic rendering of the full configuration, used to
// key cached results.
func (e *Estimator) ConfigKey() string {
	return fmt.Sprintf("specific|method=%s|decay=%g|minobs=%d|strength=%g|annualize=%g|priorvol=%g",
		e.cfg.Method, e.cfg.EWMADecay, e.cfg.MinObservations,
		e.cfg.ShrinkageStrength, e.cfg.AnnualizationFactor, e.cfg.DefaultPriorVol)
}

// Estimate computes specific risk for each security's residual series.
// Securities may have histories of different lengths; a security with zero
// observations is an error, since there is nothing to anchor even a fully
// shrunk estimate to that security.
func (e *Estimator) Estimate(residuals [][]float64) (*BatchEstimate, error) {
	if len(residuals) == 0 {
		return &BatchEstimate{PriorVariance: e.defaultPriorVariance()}, nil
	}

	raw := make([]float64, len(residuals))
	for i, series := range residuals {
		if len(series) == 0 {
			return nil, &InsufficientDataError{Security: i}
		}
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidConfigError{
					Field:  "residuals",
					Reason: fmt.Sprintf("non-finite value for security %d", i),
				}
			}
		}
		raw[i] = e.rawVariance(series)
	}

	prior := e.priorVariance(raw)

	risks := make([]Risk, len(residuals))
	for i, series := range residuals {
		n := len(series)
		intensity := e.intensity(n)
		variance := (intensity*prior + (1-intensity)*raw[i]) * e.cfg.AnnualizationFactor
		risks[i] = Risk{
			Vol:          math.Sqrt(variance),
			Variance:     variance,
			Intensity:    intensity,
			Observations: n,
		}
	}

	return &BatchEstimate{Risks: risks, PriorVariance: prior}, nil
}

// rawVariance computes the per-period residual variance by the configured
// method.
func (e *Estimator) rawVariance(series []float64) float64 {
	if e.cfg.Method == MethodEWMA {
		return ewmaVariance(series, e.cfg.EWMADecay)
	}
	if len(series) < 2 {
		// One observation: squared deviation from zero, the residual mean
		// under the factor model.
		return series[0] * series[0]
	}
	return formulas.Variance(series)
}

// ewmaVariance is the zero-mean exponentially weighted variance with the
// most recent residual last.
func ewmaVariance(series []float64, decay float64) float64 {
	var sum, total float64
	w := 1.0
	for k := len(series) - 1; k >= 0; k-- {
		sum += w * series[k] * series[k]
		total += w
		w *= decay
	}
	return sum / total
}

// intensity is the prior weight for a security with n observations: full
// shrinkage at or below MinObservations, fading hyperbolically beyond it.
func (e *Estimator) intensity(n int) float64 {
	if n <= e.cfg.MinObservations {
		return 1
	}
	excess := float64(n - e.cfg.MinObservations)
	return e.cfg.ShrinkageStrength / (e.cfg.ShrinkageStrength + excess)
}

// priorVariance is the median of the usable raw variances. The median
// resists the long upper tail of cross-sectional variance estimates, where
// a mean prior would drag every security's estimate upward.
func (e *Estimator) priorVariance(raw []float64) float64 {
	usable := make([]float64, 0, len(raw))
	for _, v := range raw {
		if v > 0 {
			usable = append(usable, v)
		}
	}
	if len(usable) == 0 {
		return e.defaultPriorVariance()
	}
	sort.Float64s(usable)
	mid := len(usable) / 2
	if len(usable)%2 == 1 {
		return usable[mid]
	}
	return (usable[mid-1] + usable[mid]) / 2
}

// defaultPriorVariance converts the annualized default prior vol back into
// per-period variance units.
func (e *Estimator) defaultPriorVariance() float64 {
	v := e.cfg.DefaultPriorVol * e.cfg.DefaultPriorVol
	return v / float64(formulas.TradingDaysPerYear)
}
