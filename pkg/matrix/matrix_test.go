package matrix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSymFromDense(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{1, 0.5, 0.5, 2})
	sym, err := SymFromDense(d, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sym.At(0, 0))
	assert.Equal(t, 0.5, sym.At(0, 1))
	assert.Equal(t, 2.0, sym.At(1, 1))
}

func TestSymFromDenseRejectsAsymmetric(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{1, 0.5, 0.9, 2})
	_, err := SymFromDense(d, 0)
	var numErr *NumericalError
	require.ErrorAs(t, err, &numErr)
}

func TestSymFromDenseRejectsNonSquare(t *testing.T) {
	d := mat.NewDense(2, 3, nil)
	_, err := SymFromDense(d, 0)
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
}

func TestEigenSymDiagonal(t *testing.T) {
	m := mat.NewSymDense(3, []float64{
		3, 0, 0,
		0, 1, 0,
		0, 0, 2,
	})
	values, vectors, err := EigenSym(m)
	require.NoError(t, err)
	require.Len(t, values, 3)

	// Ascending order.
	assert.InDelta(t, 1.0, values[0], 1e-12)
	assert.InDelta(t, 2.0, values[1], 1e-12)
	assert.InDelta(t, 3.0, values[2], 1e-12)

	r, c := vectors.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
}

func TestProjectToPSDLeavesPSDInputUnchanged(t *testing.T) {
	m := mat.NewSymDense(2, []float64{2, 0.3, 0.3, 1})
	out, report, err := ProjectToPSD(m, DefaultPSDConfig())
	require.NoError(t, err)
	assert.False(t, report.Adjusted)
	assert.Zero(t, report.Correction)
	assert.True(t, mat.EqualApprox(m, out, 1e-14))
}

func TestProjectToPSDRepairsIndefinite(t *testing.T) {
	// Eigenvalues 3 and -1.
	m := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	out, report, err := ProjectToPSD(m, DefaultPSDConfig())
	require.NoError(t, err)

	assert.True(t, report.Adjusted)
	assert.Equal(t, 1, report.ClippedCount)
	assert.InDelta(t, -1.0, report.SmallestEigenvalue, 1e-12)
	assert.Greater(t, report.Correction, 0.0)

	values, _, err := EigenSym(out)
	require.NoError(t, err)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, DefaultEigenFloor-1e-14)
	}

	// Correction is the Frobenius norm of the change: the clipped eigenvalue
	// moves from -1 to the floor, so the norm is ~1.
	assert.InDelta(t, 1.0, report.Correction, 1e-6)
}

func TestProjectToPSDPreserveTrace(t *testing.T) {
	m := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	cfg := PSDConfig{MinEigenvalue: DefaultEigenFloor, PreserveTrace: true}
	out, report, err := ProjectToPSD(m, cfg)
	require.NoError(t, err)
	assert.True(t, report.Adjusted)

	assert.InDelta(t, mat.Trace(m), mat.Trace(out), 1e-10)
}

func TestIsPositiveDefinite(t *testing.T) {
	pd := mat.NewSymDense(2, []float64{2, 0.3, 0.3, 1})
	assert.True(t, IsPositiveDefinite(pd, 0))

	indefinite := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	assert.False(t, IsPositiveDefinite(indefinite, 0))

	singular := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	assert.False(t, IsPositiveDefinite(singular, 0))
}

func TestConditionNumber(t *testing.T) {
	m := mat.NewSymDense(2, []float64{100, 0, 0, 1})
	kappa, err := ConditionNumber(m)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, kappa, 1e-9)

	singular := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	kappa, err = ConditionNumber(singular)
	require.NoError(t, err)
	assert.True(t, math.IsInf(kappa, 1))
}
