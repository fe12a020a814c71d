package covariance

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/pkg/formulas"
)

// Regime labels the current volatility environment.
type Regime string

const (
	RegimeLow    Regime = "low"
	RegimeNormal Regime = "normal"
	RegimeHigh   Regime = "high"
	RegimeCrisis Regime = "crisis"
)

// Regime ratio thresholds. The ratio is short-window vol over long-window
// vol, so 1.0 means recent volatility matches the long-run level.
const (
	lowThreshold    = 0.7
	highThreshold   = 1.5
	crisisThreshold = 2.5
)

// DefaultMaxScale caps the covariance scaling factor in both directions.
const DefaultMaxScale = 3.0

// RegimeConfig configures the volatility regime detector.
type RegimeConfig struct {
	// ShortWindow is the lookback for recent volatility, in periods.
	ShortWindow int
	// LongWindow is the lookback for baseline volatility, in periods.
	LongWindow int
	// MaxScale caps the covariance scale at MaxScale and 1/MaxScale.
	MaxScale float64
}

// DefaultRegimeConfig returns the standard daily-data configuration: one
// trading month against one trading year.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		ShortWindow: 21,
		LongWindow:  formulas.TradingDaysPerYear,
		MaxScale:    DefaultMaxScale,
	}
}

// RegimeState is the detector output: the classified regime, the raw
// short/long volatility ratio, and the covariance scale derived from it.
type RegimeState struct {
	Regime Regime  `json:"regime"`
	Ratio  float64 `json:"ratio"`
	Scale  float64 `json:"scale"`
}

// RegimeDetector classifies the current volatility environment from a
// market return series and scales covariance estimates accordingly. It
// wraps an estimate rather than replacing it, so any estimator can be
// regime-adjusted.
type RegimeDetector struct {
	cfg RegimeConfig
}

// NewRegimeDetector validates the configuration and returns the detector.
func NewRegimeDetector(cfg RegimeConfig) (*RegimeDetector, error) {
	if cfg.ShortWindow < 2 {
		return nil, &InvalidConfigError{Field: "ShortWindow", Reason: "must be at least 2"}
	}
	if cfg.LongWindow <= cfg.ShortWindow {
		return nil, &InvalidConfigError{Field: "LongWindow", Reason: "must exceed ShortWindow"}
	}
	if cfg.MaxScale < 1 {
		return nil, &InvalidConfigError{Field: "MaxScale", Reason: "must be at least 1"}
	}
	return &RegimeDetector{cfg: cfg}, nil
}

// Detect classifies the regime from a market return series. The series
// must cover at least the long window; the most recent return is last.
func (d *RegimeDetector) Detect(marketReturns []float64) (RegimeState, error) {
	if len(marketReturns) < d.cfg.LongWindow {
		return RegimeState{}, &InsufficientDataError{
			Required: d.cfg.LongWindow,
			Actual:   len(marketReturns),
		}
	}

	shortVol := formulas.StdDev(marketReturns[len(marketReturns)-d.cfg.ShortWindow:])
	longVol := formulas.StdDev(marketReturns[len(marketReturns)-d.cfg.LongWindow:])

	if longVol < 1e-12 {
		// A flat baseline gives no usable ratio; report the neutral state.
		return RegimeState{Regime: RegimeNormal, Ratio: 1, Scale: 1}, nil
	}

	ratio := shortVol / longVol
	return RegimeState{
		Regime: classify(ratio),
		Ratio:  ratio,
		Scale:  d.scaleFor(ratio),
	}, nil
}

func classify(ratio float64) Regime {
	switch {
	case ratio < lowThreshold:
		return RegimeLow
	case ratio <= highThreshold:
		return RegimeNormal
	case ratio <= crisisThreshold:
		return RegimeHigh
	default:
		return RegimeCrisis
	}
}

// scaleFor converts the vol ratio into a variance multiplier. Variance
// scales with the square of volatility, capped so a single regime reading
// never overwhelms the underlying estimate.
func (d *RegimeDetector) scaleFor(ratio float64) float64 {
	scale := ratio * ratio
	return math.Min(math.Max(scale, 1/d.cfg.MaxScale), d.cfg.MaxScale)
}

// ScaleCovariance multiplies every entry of a covariance matrix by the
// state's scale, returning a new matrix.
func (d *RegimeDetector) ScaleCovariance(cov *mat.SymDense, state RegimeState) *mat.SymDense {
	n := cov.SymmetricDim()
	scaled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			scaled.SetSym(i, j, cov.At(i, j)*state.Scale)
		}
	}
	return scaled
}

// ScaleEstimate applies ScaleCovariance to an estimate, preserving its
// diagnostics.
func (d *RegimeDetector) ScaleEstimate(est *Estimate, state RegimeState) *Estimate {
	return &Estimate{
		Cov:                d.ScaleCovariance(est.Cov, state),
		ShrinkageIntensity: est.ShrinkageIntensity,
		Warnings:           est.Warnings,
	}
}

// Analyze detects the regime from marketReturns and returns the scaled
// estimate together with the state.
func (d *RegimeDetector) Analyze(est *Estimate, marketReturns []float64) (*Estimate, RegimeState, error) {
	state, err := d.Detect(marketReturns)
	if err != nil {
		return nil, RegimeState{}, err
	}
	return d.ScaleEstimate(est, state), state, nil
}

// History returns the rolling short-window volatility series for the given
// returns, for inspection alongside regime decisions. Positions before the
// first full window are zero.
func (d *RegimeDetector) History(marketReturns []float64) []float64 {
	if len(marketReturns) < d.cfg.ShortWindow {
		return nil
	}
	return talib.StdDev(marketReturns, d.cfg.ShortWindow, 1.0)
}
