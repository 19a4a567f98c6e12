package calib

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
	"github.com/lcls-cass/cassgo/cass/statutil"
)

// NewCommonModeBackground builds pp333: the flattened image is split
// into fixed-width parts (e.g. one ASIC row), each replaced with a
// single representative level — an outlier-trimmed mean or a median —
// computed over that part's own pixels. Unlike pp330-332 this is a
// plain per-event processor (original_source's pp333 inherits
// Processor, not AccumulatingProcessor): every event gets its own
// independent common-mode estimate.
func NewCommonModeBackground(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	width := store.Int(name, "width", -1)
	snr := store.Float(name, "snr", 4)
	calcType := store.String(name, "calculation_type", "mean")

	var calc func(part []float32) float32
	switch calcType {
	case "mean":
		calc = func(part []float32) float32 {
			samples := make([]float64, len(part))
			for i, v := range part {
				samples[i] = float64(v)
			}
			return float32(statutil.TrimmedMeanStdv(samples, snr).Mean)
		}
	case "median":
		calc = medianOf
	default:
		return nil, fmt.Errorf("calib %q: unknown common mode calculation type %q", name, calcType)
	}

	imageOperand := store.String(name, "image", "Image")
	var image proc.Processor

	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, result.Axis{}, result.Axis{}) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(imageOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		p, err := resolveOperand(resolve, name, imageOperand)
		if err != nil {
			return err
		}
		image = p
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		img, err := image.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		img.RLock()
		shape := img.Shape()
		cols, rows := img.NBinsX(), img.NBinsY()
		pixels := append([]float32(nil), img.Storage()...)
		img.RUnlock()
		if err := checkShape(shape, result.Shape2D); err != nil {
			return err
		}
		res.Assign(assignable2D(name, cols, rows))

		size := len(pixels)
		if width <= 0 || size%width != 0 {
			return fmt.Errorf("%w: image size %d not a multiple of width %d", proc.ErrInvalidData, size, width)
		}
		out := res.Storage()
		for start := 0; start < size; start += width {
			level := calc(pixels[start : start+width])
			for i := start; i < start+width; i++ {
				out[i] = level
			}
		}
		return nil
	}
	return b, nil
}

// medianOf sorts a copy of part and returns the middle value (or the
// average of the two middle values for an even-length part), grounded
// on original_source's MedianCalculator.
func medianOf(part []float32) float32 {
	sorted := append([]float32(nil), part...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func assignable2D(name string, cols, rows int) *result.Result {
	return result.New2D(name, result.Axis{NBins: cols}, result.Axis{NBins: rows})
}

// ASIC geometry constants for pp334's histogram-based common mode
// estimator, matching a pnCCD-style two-quadrant chip layout exactly
// as original_source hardcodes them.
const (
	asicCount        = 64
	asicsPerRow      = 2
	asicCols         = 194
	asicRows         = 185
	asicInputCols    = asicsPerRow * asicCols
	asicHistLow      = -60.0
	asicHistUp       = 100.0
	asicHistNBins    = int(asicHistUp - asicHistLow)
	asicUBPPerAsic   = 19
	asicChips        = 16
	asicColSpacing   = asicCols
	asicUBPSpacing   = 3696
	asicChipSpacing  = 1566
)

// NewASICCommonMode builds pp334: a per-ASIC common-mode background
// estimate derived from a 160-bin pixel-value histogram's first peak
// (center of mass within ±Width bins of the maximum), cross-checked
// against the mean of that ASIC's unbonded pixels; when the two values
// disagree by more than MaxDistance the unbonded-pixel mean is used
// instead, on the assumption that a sparse/low-fill histogram peak is
// the less reliable of the two.
func NewASICCommonMode(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	halfWidth := store.Int(name, "width", 30)
	maxDist := float32(store.Float(name, "max_distance", 5))
	checks := store.Bool(name, "enable_checks", false)

	imageOperand := store.String(name, "image", "Image")
	var image proc.Processor
	var cols, rows int

	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, result.Axis{}, result.Axis{}) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(imageOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		p, err := resolveOperand(resolve, name, imageOperand)
		if err != nil {
			return err
		}
		image = p
		img, err := p.Result(0)
		if err != nil {
			return err
		}
		img.RLock()
		cols, rows = img.NBinsX(), img.NBinsY()
		img.RUnlock()
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		img, err := image.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		img.RLock()
		shape := img.Shape()
		pixels := append([]float32(nil), img.Storage()...)
		img.RUnlock()
		if err := checkShape(shape, result.Shape2D); err != nil {
			return err
		}

		outRows := rows
		if checks {
			outRows += asicCount
		}
		res.Assign(result.New2D(name, result.Axis{NBins: cols}, result.Axis{NBins: outRows}))

		hists := make([]float64, asicCount*asicHistNBins)
		asicOf := func(i int) (asic int, inBounds bool) {
			if cols != asicInputCols {
				return 0, false
			}
			row := i / asicInputCols
			colInRow := i % asicInputCols
			asicOnChip := colInRow / asicCols
			chip := row / asicRows
			return asicsPerRow*chip + asicOnChip, true
		}

		for i, pix := range pixels {
			if pix == 0 {
				continue
			}
			asic, ok := asicOf(i)
			if !ok {
				continue
			}
			bin := int(float64(asicHistNBins) * (float64(pix) - asicHistLow) / (asicHistUp - asicHistLow))
			if bin < 0 || bin >= asicHistNBins {
				continue
			}
			hists[asic*asicHistNBins+bin]++
		}

		histCM := make([]float64, asicCount)
		for asic := 0; asic < asicCount; asic++ {
			hist := hists[asic*asicHistNBins : (asic+1)*asicHistNBins]
			peak, peakVal := 0, hist[0]
			for bi, v := range hist {
				if v > peakVal {
					peak, peakVal = bi, v
				}
			}
			if peak-halfWidth < 0 || peak+halfWidth+1 > asicHistNBins {
				histCM[asic] = 1e6
				continue
			}
			var integral, weight float64
			for b := peak - halfWidth; b < peak+halfWidth+1; b++ {
				x := asicHistLow + float64(b)*(asicHistUp-asicHistLow)/float64(asicHistNBins)
				integral += hist[b]
				weight += hist[b] * x
			}
			if integral == 0 {
				histCM[asic] = 1e6
				continue
			}
			histCM[asic] = weight / integral
		}

		unbondedCM := computeUnbondedPixelMeans(pixels)

		cmVals := make([]float32, asicCount)
		for asic := 0; asic < asicCount; asic++ {
			hv, uv := float32(histCM[asic]), unbondedCM[asic]
			if absF(uv-hv) < maxDist {
				cmVals[asic] = hv
			} else {
				cmVals[asic] = uv
			}
		}

		out := res.Storage()
		for i, pix := range pixels {
			if pix == 0 {
				continue
			}
			asic, ok := asicOf(i)
			if !ok {
				continue
			}
			out[i] = cmVals[asic]
		}

		if checks {
			base := len(pixels)
			for asic := 0; asic < asicCount; asic++ {
				row := out[base+asic*cols : base+(asic+1)*cols]
				hist := hists[asic*asicHistNBins : (asic+1)*asicHistNBins]
				n := copy(row, float64sToFloat32s(hist))
				if n < len(row) {
					row[n] = float32(histCM[asic])
					if n+1 < len(row) {
						row[n+1] = unbondedCM[asic]
					}
					if n+2 < len(row) {
						row[n+2] = cmVals[asic]
					}
				}
			}
		}
		return nil
	}
	return b, nil
}

// computeUnbondedPixelMeans walks the fixed unbonded-pixel layout of
// a two-quadrant chip (19 unbonded pixels per ASIC, spaced exactly as
// original_source hardcodes) and averages each ASIC's readings.
func computeUnbondedPixelMeans(pixels []float32) []float32 {
	sums := make([]float32, asicCount)
	ptr := 0
	for chip := 0; chip < asicChips; chip++ {
		asic := 2 * chip
		for up := 0; up < asicUBPPerAsic-1; up++ {
			if ptr < len(pixels) {
				sums[asic] += pixels[ptr]
			}
			ptr += asicColSpacing
			if ptr < len(pixels) {
				sums[asic+1] += pixels[ptr]
			}
			ptr += asicUBPSpacing
		}
		if ptr < len(pixels) {
			sums[asic] += pixels[ptr]
		}
		ptr += asicColSpacing
		if ptr < len(pixels) {
			sums[asic+1] += pixels[ptr]
		}
		ptr += asicChipSpacing
	}
	for i := range sums {
		sums[i] /= float32(asicUBPPerAsic)
	}
	return sums
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func float64sToFloat32s(xs []float64) []float32 {
	out := make([]float32, len(xs))
	for i, v := range xs {
		out[i] = float32(v)
	}
	return out
}
