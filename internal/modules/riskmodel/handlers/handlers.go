// Package handlers exposes risk model estimation over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/internal/modules/covariance"
	"github.com/quantfold/riskmodel/internal/modules/riskmodel"
	"github.com/quantfold/riskmodel/internal/modules/specificrisk"
)

// Handler holds the risk model service and regime detector used by the API.
type Handler struct {
	svc      *riskmodel.Service
	detector *covariance.RegimeDetector
	log      zerolog.Logger
}

// New creates a handler.
func New(svc *riskmodel.Service, detector *covariance.RegimeDetector, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		detector: detector,
		log:      log.With().Str("component", "risk_handlers").Logger(),
	}
}

type estimateRequest struct {
	FactorReturns [][]float64 `json:"factor_returns"`
	Residuals     [][]float64 `json:"residuals"`
}

type estimateResponse struct {
	Estimator string                      `json:"estimator"`
	FactorCov [][]float64                 `json:"factor_cov"`
	Specific  *specificrisk.BatchEstimate `json:"specific"`
	Warnings  []covariance.Warning        `json:"warnings,omitempty"`
}

// HandleEstimate fits the risk model from raw inputs.
// POST /api/risk/estimate
func (h *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	fit, err := h.estimate(req)
	if err != nil {
		h.writeEstimationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		Estimator: h.svc.Model().EstimatorName(),
		FactorCov: covRows(fit.FactorCov),
		Specific:  fit.Specific,
		Warnings:  fit.Warnings,
	})
}

type portfolioRequest struct {
	FactorReturns [][]float64 `json:"factor_returns"`
	Residuals     [][]float64 `json:"residuals"`
	Exposures     [][]float64 `json:"exposures"`
	Holdings      []float64   `json:"holdings"`
	// Confidence is the VaR confidence level; 0 skips VaR.
	Confidence float64 `json:"confidence,omitempty"`
}

type portfolioResponse struct {
	Variance      float64                 `json:"variance"`
	Volatility    float64                 `json:"volatility"`
	Decomposition riskmodel.Decomposition `json:"decomposition"`
	ValueAtRisk   *float64                `json:"value_at_risk,omitempty"`
	Warnings      []covariance.Warning    `json:"warnings,omitempty"`
}

// HandlePortfolio fits the model and evaluates one portfolio against it.
// POST /api/risk/portfolio
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	fit, err := h.estimate(estimateRequest{FactorReturns: req.FactorReturns, Residuals: req.Residuals})
	if err != nil {
		h.writeEstimationError(w, err)
		return
	}

	exposures, err := covariance.NewReturnMatrix(req.Exposures)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exposures: "+err.Error())
		return
	}

	decomp, err := fit.Decompose(exposures, req.Holdings)
	if err != nil {
		h.writePortfolioError(w, err)
		return
	}

	resp := portfolioResponse{
		Variance:      decomp.Total,
		Volatility:    sqrtNonNeg(decomp.Total),
		Decomposition: decomp,
		Warnings:      fit.Warnings,
	}
	if req.Confidence > 0 {
		v, err := fit.ValueAtRisk(exposures, req.Holdings, req.Confidence)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.ValueAtRisk = &v
	}

	writeJSON(w, http.StatusOK, resp)
}

type regimeRequest struct {
	MarketReturns []float64 `json:"market_returns"`
}

type regimeResponse struct {
	covariance.RegimeState
	// ShortVolHistory is the rolling short-window volatility series, zero
	// before the first full window.
	ShortVolHistory []float64 `json:"short_vol_history"`
}

// HandleRegime classifies the volatility regime of a market return series.
// POST /api/risk/regime
func (h *Handler) HandleRegime(w http.ResponseWriter, r *http.Request) {
	var req regimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	state, err := h.detector.Detect(req.MarketReturns)
	if err != nil {
		h.writeEstimationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, regimeResponse{
		RegimeState:     state,
		ShortVolHistory: h.detector.History(req.MarketReturns),
	})
}

func (h *Handler) estimate(req estimateRequest) (*riskmodel.Fit, error) {
	returns, err := covariance.NewReturnMatrix(req.FactorReturns)
	if err != nil {
		return nil, err
	}
	return h.svc.Estimate(returns, req.Residuals)
}

// writeEstimationError maps estimation failures onto status codes: data
// problems are unprocessable, anything unexpected is a server error.
func (h *Handler) writeEstimationError(w http.ResponseWriter, err error) {
	var (
		insufficientCov  *covariance.InsufficientDataError
		insufficientSpec *specificrisk.InsufficientDataError
		degenerate       *covariance.DegenerateInputError
		invalidCov       *covariance.InvalidConfigError
		invalidSpec      *specificrisk.InvalidConfigError
	)
	switch {
	case errors.As(err, &insufficientCov),
		errors.As(err, &insufficientSpec),
		errors.As(err, &degenerate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invalidCov), errors.As(err, &invalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("risk estimation failed")
		writeError(w, http.StatusInternalServerError, "estimation failed")
	}
}

func (h *Handler) writePortfolioError(w http.ResponseWriter, err error) {
	var mismatch *riskmodel.DimensionMismatchError
	if errors.As(err, &mismatch) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("portfolio evaluation failed")
	writeError(w, http.StatusInternalServerError, "portfolio evaluation failed")
}

func covRows(cov *mat.SymDense) [][]float64 {
	n := cov.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = cov.At(i, j)
		}
	}
	return rows
}

func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
