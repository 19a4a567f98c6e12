// Package statutil implements the numeric helpers shared by the
// standard and calibration processors: gonum-backed summary statistics
// for the common case, plus the outlier-trimmed iterative mean/stdv
// spec.md §4.I's dark-calibration training phase needs
// ("CummulativeStatisticsNoOutlier", ground-truthed on
// original_source/cass/statistics_calculator.hpp).
package statutil

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean, Variance and Stdv are thin gonum wrappers used anywhere a
// processor needs a plain (non-trimmed) summary over a slice of
// float64 samples — pp82's mean/stdv/variance probe, pp61's online
// equivalents validated in tests, etc.
func Mean(xs []float64) float64 { return stat.Mean(xs, nil) }

func Variance(xs []float64) float64 { return stat.Variance(xs, nil) }

func Stdv(xs []float64) float64 {
	_, v := stat.MeanVariance(xs, nil)
	return math.Sqrt(v)
}

// TrimmedStats is the result of the outlier-rejecting iterative
// mean/stdv calculation used by pp330's training phase.
type TrimmedStats struct {
	Mean           float64
	Stdv           float64
	NPointsUsed    int
	NLowerOutliers int
	NUpperOutliers int
}

// TrimmedMeanStdv repeatedly narrows the accepted window to
// [mean-snr*stdv, mean+snr*stdv] over the sorted sample until the
// window stops moving, exactly mirroring
// CummulativeStatisticsNoOutlier::updateStat: sort once, then loop
// {recompute mean/stdv over the current window, re-derive bounds,
// re-clip the window via binary search} until the window is a fixed
// point.
func TrimmedMeanStdv(samples []float64, snr float64) TrimmedStats {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	lo, hi := 0, len(sorted)
	for {
		window := sorted[lo:hi]
		if len(window) < 2 {
			mean := stat.Mean(window, nil)
			return TrimmedStats{
				Mean:           mean,
				NPointsUsed:    len(window),
				NLowerOutliers: lo,
				NUpperOutliers: len(sorted) - hi,
			}
		}
		mean, variance := stat.MeanVariance(window, nil)
		stdv := math.Sqrt(variance)

		lowBound := mean - snr*stdv
		upBound := mean + snr*stdv

		newLo := sort.SearchFloat64s(sorted, lowBound)
		newHi := sort.Search(len(sorted), func(i int) bool { return sorted[i] > upBound })

		if newLo == lo && newHi == hi {
			return TrimmedStats{
				Mean:           mean,
				Stdv:           stdv,
				NPointsUsed:    hi - lo,
				NLowerOutliers: lo,
				NUpperOutliers: len(sorted) - hi,
			}
		}
		lo, hi = newLo, newHi
	}
}
