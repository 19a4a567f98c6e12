package statutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrimmedMeanStdvConvergesOnGaussianSample(t *testing.T) {
	const (
		n   = 10000
		mu  = 120.0
		sig = 8.0
		snr = 6.0
	)
	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = mu + sig*rng.NormFloat64()
	}

	got := TrimmedMeanStdv(samples, snr)

	meanTol := sig / math.Sqrt(float64(n)) * 5
	stdvTol := sig / math.Sqrt(2*float64(n)) * 5

	require.InDelta(t, mu, got.Mean, meanTol)
	require.InDelta(t, sig, got.Stdv, stdvTol)
	require.Zero(t, got.NLowerOutliers, "snr=6 should reject no pixel as bad on a clean gaussian sample")
	require.Zero(t, got.NUpperOutliers)
}

func TestTrimmedMeanStdvRejectsInjectedOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = 100 + 2*rng.NormFloat64()
	}
	samples[0] = 10000
	samples[1] = -10000

	got := TrimmedMeanStdv(samples, 4)

	require.InDelta(t, 100, got.Mean, 1)
	require.Equal(t, 1, got.NLowerOutliers)
	require.Equal(t, 1, got.NUpperOutliers)
}

func TestTrimmedMeanStdvHandlesDegenerateWindow(t *testing.T) {
	got := TrimmedMeanStdv([]float64{42}, 6)
	require.Equal(t, 42.0, got.Mean)
	require.Equal(t, 1, got.NPointsUsed)
}

func TestMeanVarianceStdv(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	require.Equal(t, 3.0, Mean(xs))
	require.InDelta(t, 2.5, Variance(xs), 1e-9)
	require.InDelta(t, math.Sqrt(2.5), Stdv(xs), 1e-9)
}
