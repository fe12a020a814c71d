package riskmodel

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfold/riskmodel/internal/modules/calculations"
	"github.com/quantfold/riskmodel/internal/modules/covariance"
	"github.com/quantfold/riskmodel/internal/modules/specificrisk"
)

const cacheCategory = "risk_model"

// Service wraps a Model with optional result caching. Estimating a risk
// model is the expensive step; identical inputs within the cache TTL reuse
// the previous fit.
type Service struct {
	model *Model
	cache *calculations.Cache
	log   zerolog.Logger
}

// NewService builds a service around a model. The cache is off until
// SetCache is called.
func NewService(model *Model, log zerolog.Logger) *Service {
	return &Service{
		model: model,
		log:   log.With().Str("component", "riskmodel_service").Logger(),
	}
}

// SetCache enables result caching.
func (s *Service) SetCache(cache *calculations.Cache) {
	s.cache = cache
}

// Model exposes the underlying model.
func (s *Service) Model() *Model { return s.model }

// cachedFit is the JSON shape a fit is cached as.
type cachedFit struct {
	FactorCov [][]float64                 `json:"factor_cov"`
	Specific  *specificrisk.BatchEstimate `json:"specific"`
	Warnings  []covariance.Warning        `json:"warnings,omitempty"`
}

// Estimate fits the risk model, consulting the cache first. The cache key
// hashes the full model configuration and the exact bits of every input
// value, so any change in data or configuration produces a distinct key.
func (s *Service) Estimate(factorReturns *mat.Dense, residuals [][]float64) (*Fit, error) {
	key := s.inputHash(factorReturns, residuals)

	if s.cache != nil {
		if raw, ok := s.cache.Get(cacheCategory, key); ok {
			fit, err := decodeFit(raw)
			if err == nil {
				s.log.Debug().Str("key", key[:12]).Msg("risk model cache hit")
				return fit, nil
			}
			s.log.Warn().Err(err).Msg("discarding undecodable cached risk model")
		}
	}

	fit, err := s.model.Estimate(factorReturns, residuals)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		raw, err := encodeFit(fit)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to encode risk model for cache")
		} else if err := s.cache.Set(cacheCategory, key, raw, calculations.TTLRiskModel); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache risk model")
		}
	}

	return fit, nil
}

// inputHash builds a deterministic key from the model configuration and
// input values.
func (s *Service) inputHash(factorReturns *mat.Dense, residuals [][]float64) string {
	h := sha256.New()
	h.Write([]byte(s.model.ConfigKey()))

	rows, cols := factorReturns.Dims()
	writeUint64(h, uint64(rows))
	writeUint64(h, uint64(cols))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			writeFloat(h, factorReturns.At(i, j))
		}
	}

	writeUint64(h, uint64(len(residuals)))
	for _, series := range residuals {
		writeUint64(h, uint64(len(series)))
		for _, v := range series {
			writeFloat(h, v)
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeFloat(h hash.Hash, v float64) {
	writeUint64(h, math.Float64bits(v))
}

func encodeFit(fit *Fit) ([]byte, error) {
	n := fit.FactorCov.SymmetricDim()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = fit.FactorCov.At(i, j)
		}
	}
	return json.Marshal(cachedFit{
		FactorCov: rows,
		Specific:  fit.Specific,
		Warnings:  fit.Warnings,
	})
}

func decodeFit(raw []byte) (*Fit, error) {
	var c cachedFit
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	n := len(c.FactorCov)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(c.FactorCov[i]) != n {
			return nil, fmt.Errorf("cached covariance row %d has %d entries, expected %d", i, len(c.FactorCov[i]), n)
		}
		for j := i; j < n; j++ {
			cov.SetSym(i, j, c.FactorCov[i][j])
		}
	}
	if c.Specific == nil {
		return nil, fmt.Errorf("cached fit missing specific risk")
	}
	return &Fit{FactorCov: cov, Specific: c.Specific, Warnings: c.Warnings}, nil
}
