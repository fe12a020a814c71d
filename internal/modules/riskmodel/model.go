// Package riskmodel composes a factor covariance estimator and a specific
// risk estimator into a portfolio risk model, and derives portfolio-level
// variance, volatility, risk decomposition, and value at risk from the
// fitted components.
package riskmodel

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/internal/modules/covariance"
	"github.com/quantfold/riskmodel/internal/modules/specificrisk"
)

// Model pairs a factor covariance estimator with a specific risk estimator.
// The model itself is stateless: Estimate returns an immutable Fit that
// callers query.
type Model struct {
	factor   covariance.Estimator
	specific *specificrisk.Estimator
	log      zerolog.Logger
}

// New builds a model from its two estimators.
func New(factor covariance.Estimator, specific *specificrisk.Estimator, log zerolog.Logger) *Model {
	return &Model{
		factor:   factor,
		specific: specific,
		log:      log.With().Str("component", "riskmodel").Logger(),
	}
}

// EstimatorName reports the factor covariance estimator in use.
func (m *Model) EstimatorName() string { return m.factor.Name() }

// ConfigKey combines the configuration keys of both estimators. Fits cached
// under one key are only reused by a model with the identical configuration.
func (m *Model) ConfigKey() string {
	return m.factor.ConfigKey() + "||" + m.specific.ConfigKey()
}

// Fit is an estimated risk model: the factor covariance matrix, per-security
// specific risk, and any warnings raised during estimation. Portfolio
// queries are methods on the fit, so one estimation serves many portfolios.
type Fit struct {
	FactorCov *mat.SymDense
	Specific  *specificrisk.BatchEstimate
	Warnings  []covariance.Warning
}

// Factors returns the number of factors in the fit.
func (f *Fit) Factors() int { return f.FactorCov.SymmetricDim() }

// Securities returns the number of securities with specific risk estimates.
func (f *Fit) Securities() int { return len(f.Specific.Risks) }

// Estimate fits the model: factor covariance from the factor return matrix,
// specific risk from the per-security residual series. The two estimations
// fail independently and errors identify which stage failed.
func (m *Model) Estimate(factorReturns *mat.Dense, residuals [][]float64) (*Fit, error) {
	est, err := m.factor.Estimate(factorReturns)
	if err != nil {
		return nil, fmt.Errorf("factor covariance: %w", err)
	}

	specific, err := m.specific.Estimate(residuals)
	if err != nil {
		return nil, fmt.Errorf("specific risk: %w", err)
	}

	rows, cols := factorReturns.Dims()
	m.log.Debug().
		Str("estimator", m.factor.Name()).
		Int("observations", rows).
		Int("factors", cols).
		Int("securities", len(specific.Risks)).
		Int("warnings", len(est.Warnings)).
		Msg("risk model fitted")

	return &Fit{
		FactorCov: est.Cov,
		Specific:  specific,
		Warnings:  est.Warnings,
	}, nil
}
