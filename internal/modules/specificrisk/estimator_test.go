package specificrisk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	var invalid *InvalidConfigError

	cfg := DefaultConfig()
	cfg.Method = "bogus"
	_, err := New(cfg)
	require.ErrorAs(t, err, &invalid)

	cfg = DefaultConfig()
	cfg.Method = MethodEWMA
	cfg.EWMADecay = 1.0
	_, err = New(cfg)
	require.ErrorAs(t, err, &invalid)

	cfg = DefaultConfig()
	cfg.ShrinkageStrength = 0
	_, err = New(cfg)
	require.ErrorAs(t, err, &invalid)
}

func TestIntensitySchedule(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	// Full shrinkage at or below MinObservations.
	assert.Equal(t, 1.0, e.intensity(1))
	assert.Equal(t, 1.0, e.intensity(20))

	// kappa / (kappa + excess) beyond it.
	assert.InDelta(t, 60.0/61.0, e.intensity(21), 1e-15)
	assert.InDelta(t, 0.25, e.intensity(200), 1e-15) // 60 / (60 + 180)
	assert.InDelta(t, 60.0/2040.0, e.intensity(2000), 1e-15)

	// Monotone decreasing in history length.
	prev := 1.0
	for n := 21; n < 500; n += 25 {
		cur := e.intensity(n)
		assert.Less(t, cur, prev, "n=%d", n)
		prev = cur
	}
}

func TestEstimateShrinksShortHistoriesToPrior(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	// Three securities with identical per-period vol except the second,
	// which is extreme but has a short history.
	long := make([]float64, 100)
	for i := range long {
		if i%2 == 0 {
			long[i] = 0.01
		} else {
			long[i] = -0.01
		}
	}
	short := []float64{0.08, -0.09, 0.085, -0.07, 0.09}

	batch, err := e.Estimate([][]float64{long, short, long})
	require.NoError(t, err)
	require.Len(t, batch.Risks, 3)

	// The short-history security is fully shrunk to the prior.
	assert.Equal(t, 1.0, batch.Risks[1].Intensity)
	assert.InDelta(t, batch.PriorVariance, batch.Risks[1].Variance, 1e-15)

	// The prior is the cross-sectional median; with two identical long
	// series it equals their variance, so the extreme security's estimate
	// sits far below its raw sample variance.
	rawShort := e.rawVariance(short)
	assert.Less(t, batch.Risks[1].Variance, rawShort/2)
}

func TestEstimateLongHistoryKeepsOwnVariance(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)

	series := make([]float64, 2000)
	for i := range series {
		if i%2 == 0 {
			series[i] = 0.02
		} else {
			series[i] = -0.02
		}
	}
	other := make([]float64, 2000)
	for i := range other {
		if i%2 == 0 {
			other[i] = 0.005
		} else {
			other[i] = -0.005
		}
	}

	batch, err := e.Estimate([][]float64{series, other})
	require.NoError(t, err)

	raw := e.rawVariance(series)
	got := batch.Risks[0].Variance

	// With 2000 observations the prior weight is ~3%, so the estimate is
	// close to the security's own variance.
	assert.InDelta(t, raw, got, raw*0.05)
	assert.Less(t, batch.Risks[0].Intensity, 0.05)
}

func TestEstimateZeroObservationsFails(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = e.Estimate([][]float64{{0.01, -0.01}, {}})
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Security)
}

func TestEstimateRejectsNonFinite(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = e.Estimate([][]float64{{0.01, math.NaN()}})
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
}

func TestPriorIsMedianOfRawVariances(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.InDelta(t, 0.02, e.priorVariance([]float64{0.01, 0.02, 5.0}), 1e-15)
	assert.InDelta(t, 0.015, e.priorVariance([]float64{0.01, 0.02}), 1e-15)

	// No usable variances falls back to the default prior.
	want := 0.30 * 0.30 / 252.0
	assert.InDelta(t, want, e.priorVariance(nil), 1e-15)
}

func TestEWMAMethodWeightsRecent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodEWMA
	cfg.MinObservations = 1
	e, err := New(cfg)
	require.NoError(t, err)

	calm := make([]float64, 99)
	for i := range calm {
		calm[i] = 0.001
	}
	recentShock := append(append([]float64{}, calm...), 0.05)
	oldShock := append([]float64{0.05}, calm...)

	assert.Greater(t, e.rawVariance(recentShock), e.rawVariance(oldShock))
}

func TestAnnualizationFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnnualizationFactor = 252
	e, err := New(cfg)
	require.NoError(t, err)

	unit, err := New(DefaultConfig())
	require.NoError(t, err)

	series := make([]float64, 50)
	for i := range series {
		if i%2 == 0 {
			series[i] = 0.01
		} else {
			series[i] = -0.01
		}
	}
	annual, err := e.Estimate([][]float64{series})
	require.NoError(t, err)
	daily, err := unit.Estimate([][]float64{series})
	require.NoError(t, err)

	assert.InDelta(t, daily.Risks[0].Variance*252, annual.Risks[0].Variance, 1e-15)
}

func TestBatchAccessors(t *testing.T) {
	b := &BatchEstimate{Risks: []Risk{
		{Vol: 0.1, Variance: 0.01},
		{Vol: 0.2, Variance: 0.04},
	}}
	assert.Equal(t, []float64{0.1, 0.2}, b.Vols())
	assert.Equal(t, []float64{0.01, 0.04}, b.Variances())
}
