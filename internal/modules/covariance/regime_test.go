package covariance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Regime
	}{
		{0.3, RegimeLow},
		{0.69, RegimeLow},
		{0.7, RegimeNormal},
		{1.0, RegimeNormal},
		{1.5, RegimeNormal},
		{1.51, RegimeHigh},
		{2.5, RegimeHigh},
		{2.51, RegimeCrisis},
		{5.0, RegimeCrisis},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classify(c.ratio), "ratio %v", c.ratio)
	}
}

func TestScaleForCapsBothDirections(t *testing.T) {
	d, err := NewRegimeDetector(DefaultRegimeConfig())
	require.NoError(t, err)

	// ratio 3 -> variance scale 9, capped at 3.
	assert.Equal(t, 3.0, d.scaleFor(3.0))
	// ratio 0.1 -> variance scale 0.01, floored at 1/3.
	assert.InDelta(t, 1.0/3.0, d.scaleFor(0.1), 1e-15)
	// ratio 1.2 -> 1.44, within the cap.
	assert.InDelta(t, 1.44, d.scaleFor(1.2), 1e-15)
}

func TestNewRegimeDetectorRejectsBadConfig(t *testing.T) {
	var invalid *InvalidConfigError

	_, err := NewRegimeDetector(RegimeConfig{ShortWindow: 1, LongWindow: 20, MaxScale: 3})
	require.ErrorAs(t, err, &invalid)

	_, err = NewRegimeDetector(RegimeConfig{ShortWindow: 20, LongWindow: 10, MaxScale: 3})
	require.ErrorAs(t, err, &invalid)

	_, err = NewRegimeDetector(RegimeConfig{ShortWindow: 5, LongWindow: 20, MaxScale: 0.5})
	require.ErrorAs(t, err, &invalid)
}

func TestDetectInsufficientData(t *testing.T) {
	d, err := NewRegimeDetector(RegimeConfig{ShortWindow: 5, LongWindow: 20, MaxScale: 3})
	require.NoError(t, err)

	_, err = d.Detect(make([]float64, 19))
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 20, insufficient.Required)
}

// alternating builds a +/-amplitude series of the given length.
func alternating(n int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestDetectCrisisAfterVolatilitySpike(t *testing.T) {
	d, err := NewRegimeDetector(RegimeConfig{ShortWindow: 5, LongWindow: 100, MaxScale: 3})
	require.NoError(t, err)

	series := alternating(95, 0.001)
	series = append(series, alternating(5, 0.05)...)

	state, err := d.Detect(series)
	require.NoError(t, err)
	assert.Equal(t, RegimeCrisis, state.Regime)
	assert.Greater(t, state.Ratio, 2.5)
	assert.Equal(t, 3.0, state.Scale, "variance scale capped at MaxScale")
}

func TestDetectNormalForStableSeries(t *testing.T) {
	d, err := NewRegimeDetector(RegimeConfig{ShortWindow: 5, LongWindow: 20, MaxScale: 3})
	require.NoError(t, err)

	state, err := d.Detect(alternating(20, 0.01))
	require.NoError(t, err)
	assert.Equal(t, RegimeNormal, state.Regime)
	assert.InDelta(t, 1.0, state.Ratio, 0.1)
}

func TestScaleEstimatePreservesDiagnostics(t *testing.T) {
	d, err := NewRegimeDetector(DefaultRegimeConfig())
	require.NoError(t, err)

	est := &Estimate{
		Cov:                mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.09}),
		ShrinkageIntensity: 0.42,
		Warnings:           []Warning{{Kind: WarnIllConditioned, Message: "x"}},
	}
	state := RegimeState{Regime: RegimeHigh, Ratio: 1.6, Scale: 2.56}

	scaled := d.ScaleEstimate(est, state)
	assert.InDelta(t, 0.04*2.56, scaled.Cov.At(0, 0), 1e-15)
	assert.InDelta(t, 0.01*2.56, scaled.Cov.At(0, 1), 1e-15)
	assert.Equal(t, est.ShrinkageIntensity, scaled.ShrinkageIntensity)
	assert.Equal(t, est.Warnings, scaled.Warnings)

	// Original untouched.
	assert.Equal(t, 0.04, est.Cov.At(0, 0))
}

func TestHistoryLength(t *testing.T) {
	d, err := NewRegimeDetector(RegimeConfig{ShortWindow: 5, LongWindow: 20, MaxScale: 3})
	require.NoError(t, err)

	series := alternating(30, 0.01)
	hist := d.History(series)
	require.Len(t, hist, 30)

	// Rolling stddev of an alternating +/-0.01 series settles near 0.01.
	assert.InDelta(t, 0.01, hist[29], 0.002)

	assert.Nil(t, d.History(alternating(3, 0.01)))
}
