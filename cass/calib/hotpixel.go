package calib

import (
	"os"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// Output row ordering of pp332's result: the hot-pixel mask (-1 marks
// a pixel permanently hot) followed by the consecutive-hit counter.
const (
	hotpixMask = iota
	hotpixCount
	hotpixNOutputs
)

// hotpixel flags pixels that stay inside an ADU range for too many
// consecutive frames — a streak is a strong sign of a stuck, not a
// genuinely hit, pixel.
type hotpixel struct {
	cols, rows, size   int
	aduLow, aduUp      float32
	maxConsecutive     int
	maxADU             float32
	filename           string
	write              bool
	image              proc.Processor
}

// NewHotPixel builds pp332: per original_source, a pixel whose ADU
// value stays strictly inside (ADURangeLow, ADURangeUp) for MaximumConsecutiveFrames
// in a row is masked hot (-1) permanently; separately, any pixel whose
// value exceeds MaxADUValue is masked hot unconditionally regardless of
// streak length.
func NewHotPixel(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	h := &hotpixel{
		aduLow:         float32(store.Float(name, "adu_range_low", 0)),
		aduUp:          float32(store.Float(name, "adu_range_up", 0)),
		maxConsecutive: store.Int(name, "maximum_consecutive_frames", 5),
		maxADU:         float32(store.Float(name, "max_adu_value", 1e6)),
		filename:       store.String(name, "filename", "out.cal"),
		write:          store.Bool(name, "write_cal", true),
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
		h.image = p
		img, err := p.Result(0)
		if err != nil {
			return err
		}
		img.RLock()
		cols, rows := img.NBinsX(), img.NBinsY()
		img.RUnlock()
		h.cols, h.rows = cols, rows
		h.size = cols * rows
		res, _ := b.Result(0)
		res.Lock()
		res.Assign(result.New2D(name, result.Axis{NBins: cols}, result.Axis{NBins: hotpixNOutputs * rows}))
		res.Unlock()
		h.loadHotPixelMap(res)
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		img, err := h.image.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		img.RLock()
		pixels := append([]float32(nil), img.Storage()...)
		img.RUnlock()
		if len(pixels) != h.size {
			return nil
		}

		storage := res.Storage()
		mask := storage[hotpixMask*h.size : (hotpixMask+1)*h.size]
		count := storage[hotpixCount*h.size : (hotpixCount+1)*h.size]

		for i, pix := range pixels {
			if mask[i] == -1 {
				continue
			}
			if h.aduLow < pix && pix < h.aduUp {
				count[i]++
				if count[i] >= float32(h.maxConsecutive) {
					mask[i] = -1
				}
			} else {
				count[i] = 0
			}
			if pix > h.maxADU {
				mask[i] = -1
			}
		}
		return nil
	}
	b.AboutToQuitFunc = func() error {
		if h.write {
			res, _ := b.Result(0)
			h.writeHotPixelMap(res)
		}
		return nil
	}
	return b, nil
}

func (h *hotpixel) loadHotPixelMap(res *result.Result) {
	f, err := os.Open(h.filename)
	if err != nil {
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return
	}
	n := int(info.Size() / 4)
	if n != h.size {
		return
	}
	res.Lock()
	defer res.Unlock()
	mask := res.Storage()[hotpixMask*h.size : (hotpixMask+1)*h.size]
	rd := wire.NewReader(f)
	for i := range mask {
		mask[i] = rd.F32()
	}
}

func (h *hotpixel) writeHotPixelMap(res *result.Result) {
	f, err := os.Create(h.filename)
	if err != nil {
		return
	}
	defer f.Close()
	res.RLock()
	defer res.RUnlock()
	mask := res.Storage()[hotpixMask*h.size : (hotpixMask+1)*h.size]
	wr := wire.NewWriter(f)
	for _, v := range mask {
		wr.F32(v)
	}
}
