package riskmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DimensionMismatchError is returned when exposures or holdings do not line
// up with the fitted model's dimensions.
type DimensionMismatchError struct {
	What     string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.What, e.Expected, e.Actual)
}

// Decomposition splits portfolio variance into its factor and specific
// parts. Factor plus Specific equals Total.
type Decomposition struct {
	Factor   float64 `json:"factor"`
	Specific float64 `json:"specific"`
	Total    float64 `json:"total"`
}

// checkPortfolio validates exposures (securities x factors) and holdings
// against the fit's dimensions.
func (f *Fit) checkPortfolio(exposures *mat.Dense, holdings []float64) error {
	secs, facs := exposures.Dims()
	if facs != f.Factors() {
		return &DimensionMismatchError{What: "exposure columns", Expected: f.Factors(), Actual: facs}
	}
	if secs != f.Securities() {
		return &DimensionMismatchError{What: "exposure rows", Expected: f.Securities(), Actual: secs}
	}
	if len(holdings) != secs {
		return &DimensionMismatchError{What: "holdings", Expected: secs, Actual: len(holdings)}
	}
	for i, w := range holdings {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &DimensionMismatchError{What: fmt.Sprintf("holdings[%d] non-finite", i), Expected: secs, Actual: len(holdings)}
		}
	}
	return nil
}

// Decompose computes the factor and specific variance contributions of a
// portfolio: w'XFX'w for the factor part and sum w_i^2 d_i for the specific
// part.
func (f *Fit) Decompose(exposures *mat.Dense, holdings []float64) (Decomposition, error) {
	if err := f.checkPortfolio(exposures, holdings); err != nil {
		return Decomposition{}, err
	}

	w := mat.NewVecDense(len(holdings), holdings)

	// Factor exposures of the portfolio: b = X'w.
	var b mat.VecDense
	b.MulVec(exposures.T(), w)

	// b'Fb.
	var fb mat.VecDense
	fb.MulVec(f.FactorCov, &b)
	factorVar := mat.Dot(&b, &fb)

	var specificVar float64
	for i, wi := range holdings {
		specificVar += wi * wi * f.Specific.Risks[i].Variance
	}

	return Decomposition{
		Factor:   factorVar,
		Specific: specificVar,
		Total:    factorVar + specificVar,
	}, nil
}

// PortfolioVariance returns the total portfolio variance.
func (f *Fit) PortfolioVariance(exposures *mat.Dense, holdings []float64) (float64, error) {
	d, err := f.Decompose(exposures, holdings)
	if err != nil {
		return 0, err
	}
	return d.Total, nil
}

// PortfolioVolatility returns the square root of the portfolio variance.
func (f *Fit) PortfolioVolatility(exposures *mat.Dense, holdings []float64) (float64, error) {
	v, err := f.PortfolioVariance(exposures, holdings)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// ValueAtRisk returns the parametric VaR at the given confidence level,
// expressed as a positive loss fraction: z_confidence times the portfolio
// volatility under a normal return assumption.
func (f *Fit) ValueAtRisk(exposures *mat.Dense, holdings []float64, confidence float64) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("confidence must be in (0, 1), got %v", confidence)
	}
	vol, err := f.PortfolioVolatility(exposures, holdings)
	if err != nil {
		return 0, err
	}
	z := distuv.UnitNormal.Quantile(confidence)
	return z * vol, nil
}
