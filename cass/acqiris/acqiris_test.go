package acqiris

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
)

func newStore(kv map[string]any) *config.Store {
	v := viper.New()
	for k, val := range kv {
		v.Set(k, val)
	}
	return config.New(v)
}

func tdcEvent(mcpTimes []float64, wireends map[int][]float64) *event.CASSEvent {
	e := event.New()
	e.ID = event.NewID(1, 1)
	maxChan := 0
	for idx := range wireends {
		if idx > maxChan {
			maxChan = idx
		}
	}
	channels := make([]*device.TDCChannel, maxChan+1)
	for i := range channels {
		channels[i] = &device.TDCChannel{}
	}
	channels[0] = &device.TDCChannel{HitTimes: mcpTimes}
	for idx, times := range wireends {
		channels[idx] = &device.TDCChannel{HitTimes: times}
	}
	e.SetDevice(device.TagAcqirisTDC, &device.AcqirisTDC{Channels: channels})
	return e
}

func TestMCPSignalCount(t *testing.T) {
	store := newStore(map[string]any{
		"processor.det.use_tdc":     true,
		"processor.det.mcp_channel": 0,
	})
	p, err := NewMCPSignalCount("pp150", 1, store, NewDetectorRegistry(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Load())
	require.NoError(t, p.LoadSettings(func(string) (proc.Processor, error) { return nil, nil }))

	evt := tdcEvent([]float64{100, 200, 300}, nil)
	require.NoError(t, p.ProcessEvent(evt))
	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, float32(3), res.GetValue())
}

// TestLayerTimesum exercises the t1+t2-2*tMCP invariant the GLOSSARY
// names "Timesum", over a synthetic quad delay-line detector.
func TestLayerTimesum(t *testing.T) {
	store := newStore(map[string]any{
		"processor.det.use_tdc":             true,
		"processor.det.is_delayline":         true,
		"processor.det.mcp_channel":          0,
		"processor.det.x_wireend1_channel":   1,
		"processor.det.x_wireend2_channel":   2,
		"processor.det.y_wireend1_channel":   3,
		"processor.det.y_wireend2_channel":   4,
		"processor.ts.detector":              "det",
		"processor.ts.layer":                 "X",
		"processor.ts.time_range_low":        0,
		"processor.ts.time_range_high":       20000,
	})
	p, err := NewLayerTimesum("ts", 1, store, NewDetectorRegistry(), nil)
	require.NoError(t, err)

	evt := tdcEvent([]float64{1000}, map[int][]float64{
		1: {1100},
		2: {1105},
	})
	require.NoError(t, p.ProcessEvent(evt))
	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	// timesum = 1100+1105-2*1000 = 205
	require.InDelta(t, 205, res.GetValue(), 1e-3)
}

// TestPIPICOSelfPairingSkipsDiagonal confirms pp220 never pairs an MCP
// signal with itself when both detectors are the same.
func TestPIPICOSelfPairingSkipsDiagonal(t *testing.T) {
	store := newStore(map[string]any{
		"processor.det.use_tdc":            true,
		"processor.det.mcp_channel":        0,
		"processor.pp220.first_detector":   "det",
		"processor.pp220.second_detector":  "det",
	})
	p, err := NewPIPICO("pp220", 1, store, NewDetectorRegistry(), nil)
	require.NoError(t, err)

	evt := tdcEvent([]float64{100, 200, 300}, nil)
	require.NoError(t, p.ProcessEvent(evt))
	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	// C(3,2) = 3 pairs, never (i,i)
	count := 0
	for _, v := range res.Storage() {
		count += int(v)
	}
	require.Equal(t, 3, count)
}

func TestParticleEnergyConversion(t *testing.T) {
	hits := []DetectorHit{{X: 1, Y: 2, Tof: 10}}
	out := ReconstructParticles(hits, ParticleConfig{TofLow: 0, TofHigh: 100, EnergyConst: 400})
	require.Len(t, out, 1)
	require.InDelta(t, 4, out[0].Energy, 1e-9) // 400/10^2 = 4
}

func TestParticleEnergyConversionGatesOutOfRangeTof(t *testing.T) {
	hits := []DetectorHit{{Tof: 5}, {Tof: 50}}
	out := ReconstructParticles(hits, ParticleConfig{TofLow: 10, TofHigh: 40, EnergyConst: 1})
	require.Empty(t, out)
}

// TestParticleEnergySpectrumUsesMomentum implements pp5000: energy is
// the particle's momentum-proxy magnitude squared times the fixed
// 13.6 coefficient, not the tof-spectrometer EnergyConst/Tof² relation.
func TestParticleEnergySpectrumUsesMomentum(t *testing.T) {
	store := newStore(map[string]any{
		"processor.det.use_tdc":             true,
		"processor.det.is_delayline":        true,
		"processor.det.mcp_channel":         0,
		"processor.det.x_wireend1_channel":  1,
		"processor.det.x_wireend2_channel":  2,
		"processor.det.y_wireend1_channel":  3,
		"processor.det.y_wireend2_channel":  4,
		"processor.pp5000.detector":         "det",
		"processor.pp5000.nbins":            700,
		"processor.pp5000.low":              0.0,
		"processor.pp5000.up":               700.0,
	})
	p, err := NewParticleEnergySpectrum("pp5000", 1, store, NewDetectorRegistry(), nil)
	require.NoError(t, err)

	// X position 1003-1000=3, Y position 1004-1000=4: rho=hypot(3,4)=5,
	// energy = 5^2 * 13.6 = 340.
	evt := tdcEvent([]float64{1000}, map[int][]float64{
		1: {1003},
		2: {1000},
		3: {1004},
		4: {1000},
	})
	require.NoError(t, p.ProcessEvent(evt))
	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, float32(1), res.Storage()[340])
}

// TestTripleCoincidencePIPIPICO implements pp5001: every combinatorial
// triple i<j<k of one detector's own MCP signals lands in the
// (t1+t2, t3) histogram, so three signals give exactly C(3,3)=1 entry.
func TestTripleCoincidencePIPIPICO(t *testing.T) {
	store := newStore(map[string]any{
		"processor.det.use_tdc":     true,
		"processor.det.mcp_channel": 0,
		"processor.pp5001.detector": "det",
		"processor.pp5001.x_nbins":  10,
		"processor.pp5001.x_low":    0.0,
		"processor.pp5001.x_up":     1000.0,
		"processor.pp5001.y_nbins":  10,
		"processor.pp5001.y_low":    0.0,
		"processor.pp5001.y_up":     1000.0,
	})
	p, err := NewTripleCoincidence("pp5001", 1, store, NewDetectorRegistry(), nil)
	require.NoError(t, err)

	evt := tdcEvent([]float64{100, 200, 300}, nil)
	require.NoError(t, p.ProcessEvent(evt))
	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	count := 0
	for _, v := range res.Storage() {
		count += int(v)
	}
	require.Equal(t, 1, count)
}
