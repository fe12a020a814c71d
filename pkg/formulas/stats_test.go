package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 3.0, Mean([]float64{1, 2, 3, 4, 5}), 1e-12)
}

func TestVariance(t *testing.T) {
	// Sample variance of [1..5] with n-1 denominator is 2.5
	assert.InDelta(t, 2.5, Variance([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.Equal(t, 0.0, Variance([]float64{1}))
}

func TestWeightedMean(t *testing.T) {
	data := []float64{1, 2, 3}
	weights := []float64{0, 0, 1}
	assert.InDelta(t, 3.0, WeightedMean(data, weights), 1e-12)
	assert.Equal(t, 0.0, WeightedMean(data, []float64{1, 1}))
}

func TestReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	rets := Returns(prices)
	assert.Len(t, rets, 2)
	assert.InDelta(t, 0.10, rets[0], 1e-12)
	assert.InDelta(t, -0.10, rets[1], 1e-12)

	assert.Empty(t, Returns([]float64{100}))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.02, -0.02, 0.0}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-12)
}
