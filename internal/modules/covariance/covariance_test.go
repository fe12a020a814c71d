package covariance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewReturnMatrix(t *testing.T) {
	m, err := NewReturnMatrix([][]float64{{0.01, 0.02}, {-0.01, 0.00}})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.02, m.At(0, 1))
}

func TestNewReturnMatrixEmpty(t *testing.T) {
	_, err := NewReturnMatrix(nil)
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}

func TestNewReturnMatrixRaggedRows(t *testing.T) {
	_, err := NewReturnMatrix([][]float64{{0.01, 0.02}, {-0.01}})
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
}

func TestNewReturnMatrixNonFinite(t *testing.T) {
	_, err := NewReturnMatrix([][]float64{{0.01, math.NaN()}})
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
}

func TestValidateReturnsZeroVariancePolicy(t *testing.T) {
	// Column 1 is constant.
	returns := mat.NewDense(3, 2, []float64{
		0.01, 0.005,
		-0.02, 0.005,
		0.015, 0.005,
	})

	_, err := validateReturns(returns, 2, false)
	var degenerate *DegenerateInputError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, []int{1}, degenerate.Columns)

	zero, err := validateReturns(returns, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, zero)
}

func TestConfigKeyDistinguishesConfigurations(t *testing.T) {
	a, err := NewEWMA(DefaultEWMAConfig())
	require.NoError(t, err)

	cfg := DefaultEWMAConfig()
	cfg.Decay = 0.5
	b, err := NewEWMA(cfg)
	require.NoError(t, err)

	lw, err := NewLedoitWolf(DefaultShrinkageConfig())
	require.NoError(t, err)
	nw, err := NewNeweyWest(DefaultNeweyWestConfig())
	require.NoError(t, err)

	keys := []string{a.ConfigKey(), b.ConfigKey(), lw.ConfigKey(), nw.ConfigKey()}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate config key %q", k)
		seen[k] = true
	}

	// Keys are deterministic across calls.
	assert.Equal(t, a.ConfigKey(), a.ConfigKey())
}

func TestConditionNumberWarning(t *testing.T) {
	wellConditioned := mat.NewSymDense(2, []float64{0.04, 0.001, 0.001, 0.03})
	assert.Empty(t, conditionNumberWarning(wellConditioned, nil))

	// Nearly collinear columns push the condition number past the threshold.
	nearSingular := mat.NewSymDense(2, []float64{
		0.04, 0.04 - 1e-16,
		0.04 - 1e-16, 0.04,
	})
	warnings := conditionNumberWarning(nearSingular, nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnIllConditioned, warnings[0].Kind)
}

func TestEstimateCovRows(t *testing.T) {
	est := &Estimate{Cov: mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})}
	rows := est.CovRows()
	require.Len(t, rows, 2)
	assert.Equal(t, []float64{1, 0.5}, rows[0])
	assert.Equal(t, []float64{0.5, 2}, rows[1])
}
