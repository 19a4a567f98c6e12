package calib

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// Output row ordering of pp331's result.
const (
	gainGain = iota
	gainCount
	gainAve
	gainNOutputs
)

// gaincal accumulates, per pixel, the average ADU value of single-photon
// hits within a configured ADU range, then derives a gain map from the
// ratio of the global average to each pixel's own average.
type gaincal struct {
	cols, rows, size int
	isPnCCDNoCTE     bool

	counter       int
	nFrames       int
	aduLow, aduUp float32
	minPhotons    int
	constGain     float32
	filename      string
	write         bool

	image proc.Processor
}

// NewGain builds pp331: the single-photon gain calibration of
// original_source/cass/processing/pixel_detector_calibration.cpp. When
// IsPnCCDNoCTE is set, a pnCCD's CTE-less readout means every pixel in
// a column shares one gain value, so a hit anywhere in the column is
// broadcast across all 512 rows of that column's quadrant.
func NewGain(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	g := &gaincal{
		isPnCCDNoCTE: store.Bool(name, "is_pnccd_no_cte", false),
		nFrames:      store.Int(name, "nbr_of_frames", -1),
		filename:     store.String(name, "filename", "out.cal"),
		write:        store.Bool(name, "write_cal", true),
		aduLow:       float32(store.Float(name, "adu_range_low", 0)),
		aduUp:        float32(store.Float(name, "adu_range_high", 0)),
		minPhotons:   store.Int(name, "minimum_nbr_photons", 200),
		constGain:    float32(store.Float(name, "default_gain_value", 1)),
	}
	imageOperand := store.String(name, "image", "Image")

	b := proc.NewAccumulatingBase(name, result.New2D(name, result.Axis{}, result.Axis{}), newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(imageOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		p, err := resolveOperand(resolve, name, imageOperand)
		if err != nil {
			return err
		}
		g.image = p
		img, err := p.Result(0)
		if err != nil {
			return err
		}
		img.RLock()
		cols, rows := img.NBinsX(), img.NBinsY()
		img.RUnlock()
		if g.isPnCCDNoCTE && (cols != 1024 || rows != 1024) {
			return fmt.Errorf("%w: '%s' should be a pnCCD, but shape is %dx%d", proc.ErrInvalidData, name, cols, rows)
		}
		g.cols, g.rows = cols, rows
		g.size = cols * rows
		res, _ := b.Result(0)
		res.Lock()
		res.Assign(result.New2D(name, result.Axis{NBins: cols}, result.Axis{NBins: gainNOutputs * rows}))
		res.Unlock()
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		img, err := g.image.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		img.RLock()
		pixels := append([]float32(nil), img.Storage()...)
		img.RUnlock()
		if len(pixels) != g.size {
			return nil
		}

		storage := res.Storage()
		gain := storage[gainGain*g.size : (gainGain+1)*g.size]
		count := storage[gainCount*g.size : (gainCount+1)*g.size]
		ave := storage[gainAve*g.size : (gainAve+1)*g.size]

		for i, pix := range pixels {
			if !(g.aduLow < pix && pix < g.aduUp) {
				continue
			}
			count[i]++
			ave[i] += (pix - ave[i]) / count[i]

			if g.isPnCCDNoCTE {
				g.broadcastColumn(gain, count, ave, i)
			}
		}

		g.counter++
		if g.nFrames > 0 && g.counter%g.nFrames == 0 {
			g.calculateGainMap(storage)
		}
		return nil
	}
	b.AboutToQuitFunc = func() error {
		res, _ := b.Result(0)
		res.Lock()
		g.calculateGainMap(res.Storage())
		res.Unlock()
		if g.write {
			g.writeCalibration(res)
		}
		return nil
	}
	return b, nil
}

// broadcastColumn replicates the gain/count/ave triple for pixel i
// across all 512 rows of i's quadrant, matching pnCCD's CTE-less
// readout where an entire column shares one gain value.
func (g *gaincal) broadcastColumn(gain, count, ave []float32, i int) {
	col := i % g.cols
	row := i / g.cols
	base := col
	if row >= 512 {
		base += 512 * 1024
	}
	gv, cv, av := gain[i], count[i], ave[i]
	for r := 0; r < 512; r++ {
		idx := base + r*1024
		gain[idx] = gv
		count[idx] = cv
		ave[idx] = av
	}
}

// calculateGainMap derives each well-sampled pixel's gain as the ratio
// of the global average pixel value to its own average, falling back
// to a configured constant for pixels with too few photon hits.
func (g *gaincal) calculateGainMap(storage []float32) {
	count := storage[gainCount*g.size : (gainCount+1)*g.size]
	ave := storage[gainAve*g.size : (gainAve+1)*g.size]
	gain := storage[gainGain*g.size : (gainGain+1)*g.size]

	counter := 0
	var average float64
	for i := range count {
		if int(count[i]) < g.minPhotons {
			continue
		}
		counter++
		average += (float64(ave[i]) - average) / float64(counter)
	}

	for i := range count {
		if int(count[i]) < g.minPhotons {
			gain[i] = g.constGain
			continue
		}
		gain[i] = float32(average) / ave[i]
	}
}

func (g *gaincal) writeCalibration(res *result.Result) {
	f, err := os.Create(g.filename)
	if err != nil {
		return
	}
	defer f.Close()
	res.RLock()
	defer res.RUnlock()
	gain := res.Storage()[gainGain*g.size : (gainGain+1)*g.size]
	wr := wire.NewWriter(f)
	for _, v := range gain {
		wr.F32(v)
	}
}
