package stdproc

import (
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// constSource is a tiny stand-in operand: a processor whose result is
// a fixed 1-D array, used to drive the standard-processor constructors
// without a full manager.Manager.
func constSource(t *testing.T, name string, values []float32) proc.Processor {
	t.Helper()
	axis := result.Axis{NBins: len(values), Low: 0, Up: float64(len(values))}
	b := proc.NewBase(name, 1, func() *result.Result { return result.New1D(name, axis) }, nil)
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		copy(res.Storage(), values)
		return nil
	}
	return b
}

func constScalar(t *testing.T, name string, v float32) proc.Processor {
	t.Helper()
	b := proc.NewBase(name, 1, func() *result.Result { return result.NewValue(name) }, nil)
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(v)
		return nil
	}
	return b
}

func resolverOf(procs map[string]proc.Processor) func(string) (proc.Processor, error) {
	return func(name string) (proc.Processor, error) {
		if p, ok := procs[name]; ok {
			return p, nil
		}
		return nil, proc.ErrShapeMismatch // placeholder "not found" — unused in tests that always register operands
	}
}

func loadAndRun(t *testing.T, p proc.Processor, operands map[string]proc.Processor, evt *event.CASSEvent) {
	t.Helper()
	require.NoError(t, p.Load())
	resolve := resolverOf(operands)
	require.NoError(t, p.LoadSettings(resolve))
	for _, op := range operands {
		require.NoError(t, op.ProcessEvent(evt))
	}
	require.NoError(t, p.ProcessEvent(evt))
}

// TestAlgebraAdditionScenarioS1 implements spec.md's scenario S1: pp1
// with inputs A=[1,2,3], B=[4,5,6] and operation "+" yields [5,7,9].
func TestAlgebraAdditionScenarioS1(t *testing.T) {
	v := viper.New()
	v.Set("processor.sum.operation", "+")
	v.Set("processor.sum.operand_a", "A")
	v.Set("processor.sum.operand_b", "B")
	store := config.New(v)

	p, err := NewAlgebra("sum", 1, store, nil)
	require.NoError(t, err)

	a := constSource(t, "A", []float32{1, 2, 3})
	b := constSource(t, "B", []float32{4, 5, 6})

	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"A": a, "B": b}, evt)

	res, err := p.Result(uint64(evt.ID))
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{5, 7, 9}, res.Storage())
}

func TestAlgebraConstantOperand(t *testing.T) {
	v := viper.New()
	v.Set("processor.scaled.operation", "*")
	v.Set("processor.scaled.operand_a", "A")
	v.Set("processor.scaled.operand_b_is_constant", true)
	v.Set("processor.scaled.operand_b_constant", 2.0)
	store := config.New(v)

	p, err := NewAlgebra("scaled", 1, store, nil)
	require.NoError(t, err)

	a := constSource(t, "A", []float32{1, 2, 3})
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"A": a}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{2, 4, 6}, res.Storage())
}

// TestCumulativeMeanEquivalence implements property 5: after N
// distinct updates, pp61's result equals N⁻¹Σxᵢ within N·ε.
func TestCumulativeMeanEquivalence(t *testing.T) {
	v := viper.New()
	v.Set("processor.mean.operand", "src")
	store := config.New(v)

	p, err := NewCumulativeMean("mean", 1, store, nil)
	require.NoError(t, err)

	values := []float32{2, 4, 6, 8, 10}
	src := proc.NewBase("src", 1, func() *result.Result { return result.NewValue("src") }, nil)
	i := 0
	src.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(values[i])
		i++
		return nil
	}

	require.NoError(t, p.Load())
	resolve := resolverOf(map[string]proc.Processor{"src": src})
	require.NoError(t, p.LoadSettings(resolve))

	var sum float32
	for n, v := range values {
		evt := event.New()
		evt.ID = event.NewID(1, uint32(n+1))
		require.NoError(t, src.ProcessEvent(evt))
		require.NoError(t, p.ProcessEvent(evt))
		sum += v

		res, err := p.Result(0)
		require.NoError(t, err)
		res.RLock()
		got := res.GetValue()
		res.RUnlock()

		want := sum / float32(n+1)
		require.InDelta(t, want, got, float64(n+1)*1e-5)
	}
}

// TestShutdownSetsQuitFlag implements property 10's trigger half: pp76
// sets the shared quit flag exactly when its process runs.
func TestShutdownSetsQuitFlag(t *testing.T) {
	var quit atomic.Bool
	v := viper.New()
	store := config.New(v)

	p, err := NewShutdown("quit", 1, store, nil, &quit)
	require.NoError(t, err)

	require.False(t, quit.Load())
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	require.NoError(t, p.ProcessEvent(evt))
	require.True(t, quit.Load())
}

func TestProjectionSum(t *testing.T) {
	v := viper.New()
	v.Set("processor.proj.operand", "src")
	v.Set("processor.proj.axis", "x")
	v.Set("processor.proj.lo", 0.0)
	v.Set("processor.proj.up", 2.0)
	v.Set("processor.proj.out_nbins", 2)
	v.Set("processor.proj.out_low", 0.0)
	v.Set("processor.proj.out_up", 2.0)
	store := config.New(v)

	srcAxisX := result.Axis{NBins: 2, Low: 0, Up: 2}
	srcAxisY := result.Axis{NBins: 2, Low: 0, Up: 2}
	src := proc.NewBase("src", 1, func() *result.Result { return result.New2D("src", srcAxisX, srcAxisY) }, nil)
	src.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		copy(res.Storage(), []float32{1, 2, 3, 4}) // row0: [1,2], row1: [3,4]
		return nil
	}

	p, err := NewProjection("proj", 1, store, nil, false)
	require.NoError(t, err)
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"src": src}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{3, 7}, res.Storage())
}

// TestScatterValuePairHistogram2D implements pp65: two 0-D operands
// histogrammed into the 2-D bin they fall into.
func TestScatterValuePairHistogram2D(t *testing.T) {
	v := viper.New()
	v.Set("processor.sc.operand_x", "X")
	v.Set("processor.sc.operand_y", "Y")
	v.Set("processor.sc.x_nbins", 2)
	v.Set("processor.sc.x_low", 0.0)
	v.Set("processor.sc.x_up", 4.0)
	v.Set("processor.sc.y_nbins", 2)
	v.Set("processor.sc.y_low", 0.0)
	v.Set("processor.sc.y_up", 4.0)
	store := config.New(v)

	p, err := NewScatterValuePair("sc", 1, store, nil)
	require.NoError(t, err)

	x := constScalar(t, "X", 1)
	y := constScalar(t, "Y", 3)
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"X": x, "Y": y}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{0, 0, 1, 0}, res.Storage())
}

// TestScatterOuterProduct implements pp66: two 1-D operands, every
// (x, y) pair histogrammed into the 2-D result.
func TestScatterOuterProduct(t *testing.T) {
	v := viper.New()
	v.Set("processor.sc.operand_x", "X")
	v.Set("processor.sc.operand_y", "Y")
	v.Set("processor.sc.x_nbins", 2)
	v.Set("processor.sc.x_low", 0.0)
	v.Set("processor.sc.x_up", 4.0)
	v.Set("processor.sc.y_nbins", 2)
	v.Set("processor.sc.y_low", 0.0)
	v.Set("processor.sc.y_up", 4.0)
	store := config.New(v)

	p, err := NewScatterOuter("sc", 1, store, nil)
	require.NoError(t, err)

	x := constSource(t, "X", []float32{1, 3})
	y := constSource(t, "Y", []float32{1, 3})
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"X": x, "Y": y}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{1, 1, 1, 1}, res.Storage())
}

// TestWeightedHistogramCount implements pp67: row 0 accumulates the
// weighted sum per x bin, row 1 the number of entries landing in it.
func TestWeightedHistogramCount(t *testing.T) {
	v := viper.New()
	v.Set("processor.wh.values_operand", "V")
	v.Set("processor.wh.weights_operand", "W")
	v.Set("processor.wh.x_nbins", 2)
	v.Set("processor.wh.x_low", 0.0)
	v.Set("processor.wh.x_up", 2.0)
	store := config.New(v)

	p, err := NewWeightedHistogramCount("wh", 1, store, nil)
	require.NoError(t, err)

	values := constSource(t, "V", []float32{0.5, 1.5, 0.5})
	weights := constSource(t, "W", []float32{2, 3, 4})
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"V": values, "W": weights}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{6, 3, 2, 1}, res.Storage())
}

// TestRowInsert implements pp68: a 1-D operand is copied verbatim into
// the row a 0-D operand selects on the y axis.
func TestRowInsert(t *testing.T) {
	v := viper.New()
	v.Set("processor.ri.operand_x", "X")
	v.Set("processor.ri.operand_y", "Y")
	v.Set("processor.ri.x_nbins", 3)
	v.Set("processor.ri.x_low", 0.0)
	v.Set("processor.ri.x_up", 3.0)
	v.Set("processor.ri.y_nbins", 2)
	v.Set("processor.ri.y_low", 0.0)
	v.Set("processor.ri.y_up", 2.0)
	store := config.New(v)

	p, err := NewRowInsert("ri", 1, store, nil)
	require.NoError(t, err)

	x := constSource(t, "X", []float32{10, 20, 30})
	y := constScalar(t, "Y", 1)
	evt := event.New()
	evt.ID = event.NewID(1, 1)
	loadAndRun(t, p, map[string]proc.Processor{"X": x, "Y": y}, evt)

	res, _ := p.Result(uint64(evt.ID))
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{0, 0, 0, 10, 20, 30}, res.Storage())
}

// TestScatterSetOverwrites implements pp69: the bin x selects is set
// to y, not accumulated, and persists across events until rewritten.
func TestScatterSetOverwrites(t *testing.T) {
	v := viper.New()
	v.Set("processor.ss.operand_x", "X")
	v.Set("processor.ss.operand_y", "Y")
	v.Set("processor.ss.nbins", 2)
	v.Set("processor.ss.low", 0.0)
	v.Set("processor.ss.up", 2.0)
	store := config.New(v)

	p, err := NewScatterSet("ss", 1, store, nil)
	require.NoError(t, err)

	var x, y float32
	xSrc := proc.NewBase("X", 1, func() *result.Result { return result.NewValue("X") }, nil)
	xSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { res.SetValue(x); return nil }
	ySrc := proc.NewBase("Y", 1, func() *result.Result { return result.NewValue("Y") }, nil)
	ySrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { res.SetValue(y); return nil }

	require.NoError(t, p.Load())
	resolve := resolverOf(map[string]proc.Processor{"X": xSrc, "Y": ySrc})
	require.NoError(t, p.LoadSettings(resolve))

	run := func(id uint32, xv, yv float32) {
		x, y = xv, yv
		evt := event.New()
		evt.ID = event.NewID(1, id)
		require.NoError(t, xSrc.ProcessEvent(evt))
		require.NoError(t, ySrc.ProcessEvent(evt))
		require.NoError(t, p.ProcessEvent(evt))
	}

	run(1, 0, 5)
	run(2, 1, 7)
	run(3, 0, 9)

	res, err := p.Result(0)
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{9, 7}, res.Storage())
}

// TestCovarianceMapOnlineAlgorithm implements pp410 over two events.
// Event 1 supplies an average equal to its own data (a single-sample
// mean), so the covariance contribution is exactly zero. Event 2's
// supplied average is the true two-sample running mean, so pp410's
// leave-one-out recovers event 1's data as the pre-average and the
// product (data2[i]-data1[i])*(data2[j]-ave2[j]) is 8 in every cell; the
// map keeps the 1/n running average of the two events' contributions
// (0 and 8), so it is uniformly 4.
func TestCovarianceMapOnlineAlgorithm(t *testing.T) {
	v := viper.New()
	v.Set("processor.cov.hist_operand", "data")
	v.Set("processor.cov.ave_operand", "ave")
	store := config.New(v)

	p, err := NewCovarianceMap("cov", 1, store, nil)
	require.NoError(t, err)

	axis := result.Axis{NBins: 2, Low: 0, Up: 2}
	var data, ave []float32
	dataSrc := proc.NewBase("data", 1, func() *result.Result { return result.New1D("data", axis) }, nil)
	dataSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { copy(res.Storage(), data); return nil }
	aveSrc := proc.NewBase("ave", 1, func() *result.Result { return result.New1D("ave", axis) }, nil)
	aveSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { copy(res.Storage(), ave); return nil }

	require.NoError(t, p.Load())
	resolve := resolverOf(map[string]proc.Processor{"data": dataSrc, "ave": aveSrc})
	require.NoError(t, p.LoadSettings(resolve))

	run := func(id uint32, d, a []float32) {
		data, ave = d, a
		evt := event.New()
		evt.ID = event.NewID(1, id)
		require.NoError(t, dataSrc.ProcessEvent(evt))
		require.NoError(t, aveSrc.ProcessEvent(evt))
		require.NoError(t, p.ProcessEvent(evt))
	}

	run(1, []float32{2, 4}, []float32{2, 4})
	run(2, []float32{6, 8}, []float32{4, 6})

	res, err := p.Result(0)
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, []float32{4, 4, 4, 4}, res.Storage())
}

// TestIntensityCovarianceOnlineAlgorithm implements pp412: a 1-D
// wavetrace correlated against a 0-D intensity scalar, using
// original_source's inline pre-average formula
// (intensityAve - scale*(intensity-intensityAve), distinct from
// pp410's leave-one-out).
func TestIntensityCovarianceOnlineAlgorithm(t *testing.T) {
	v := viper.New()
	v.Set("processor.ic.hist_operand_1d", "wave")
	v.Set("processor.ic.ave_operand_1d", "waveAve")
	v.Set("processor.ic.hist_operand_0d", "intensity")
	v.Set("processor.ic.ave_operand_0d", "intensityAve")
	store := config.New(v)

	p, err := NewIntensityCovariance("ic", 1, store, nil)
	require.NoError(t, err)

	axis := result.Axis{NBins: 2, Low: 0, Up: 2}
	var wave, waveAve []float32
	var intensity, intensityAve float32
	waveSrc := proc.NewBase("wave", 1, func() *result.Result { return result.New1D("wave", axis) }, nil)
	waveSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { copy(res.Storage(), wave); return nil }
	waveAveSrc := proc.NewBase("waveAve", 1, func() *result.Result { return result.New1D("waveAve", axis) }, nil)
	waveAveSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { copy(res.Storage(), waveAve); return nil }
	intensitySrc := proc.NewBase("intensity", 1, func() *result.Result { return result.NewValue("intensity") }, nil)
	intensitySrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { res.SetValue(intensity); return nil }
	intensityAveSrc := proc.NewBase("intensityAve", 1, func() *result.Result { return result.NewValue("intensityAve") }, nil)
	intensityAveSrc.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error { res.SetValue(intensityAve); return nil }

	require.NoError(t, p.Load())
	operands := map[string]proc.Processor{
		"wave": waveSrc, "waveAve": waveAveSrc, "intensity": intensitySrc, "intensityAve": intensityAveSrc,
	}
	resolve := resolverOf(operands)
	require.NoError(t, p.LoadSettings(resolve))

	run := func(id uint32, w, wAve []float32, i, iAve float32) {
		wave, waveAve, intensity, intensityAve = w, wAve, i, iAve
		evt := event.New()
		evt.ID = event.NewID(1, id)
		for _, op := range operands {
			require.NoError(t, op.ProcessEvent(evt))
		}
		require.NoError(t, p.ProcessEvent(evt))
	}

	// n=1: scale=1, intensityPre = 3 - 1*(3-3) = 3, correction = (0 + (wave-waveAve)*(intensity-intensityPre))/1 = 0
	run(1, []float32{2, 4}, []float32{2, 4}, 3, 3)
	// n=2: scale=0.5, intensityPre = 5 - 0.5*(7-5) = 4
	// correction[i] = (0*1 + (wave2[i]-waveAve2[i])*(7-4))/2
	run(2, []float32{6, 8}, []float32{4, 6}, 7, 5)

	res, err := p.Result(0)
	require.NoError(t, err)
	res.RLock()
	defer res.RUnlock()
	// (6-4)*(7-4)/2=3, (8-6)*(7-4)/2=3
	require.Equal(t, []float32{3, 3}, res.Storage())
}
