package event

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/wire"
)

func TestEventIDString(t *testing.T) {
	require.Equal(t, "UnknownTime_0", ID(0).String())

	id := NewID(1000000000, 42)
	require.Equal(t, uint32(1000000000), id.Timestamp())
	require.Equal(t, uint32(42), id.Fiducial())
	require.Contains(t, id.String(), "_42")
}

// TestCASSEventRoundTrip exercises property 1 for CASSEvent with every
// supported device populated.
func TestCASSEventRoundTrip(t *testing.T) {
	e := New()
	e.ID = NewID(123, 7)
	e.SetDevice(device.TagPixelDetectors, &device.PixelDetectors{
		Detectors_: []*device.PixelFrame{{Columns: 2, Rows: 2, Frame: []float32{1, 2, 3, 4}}},
	})
	e.SetDevice(device.TagAcqiris, &device.Acqiris{
		Channels: []*device.Channel{{HorPos: 1, VertOffset: 2, Gain: 3, SampleInt: 4, Samples: []int16{-1, 0, 1}}},
	})
	e.SetDevice(device.TagAcqirisTDC, &device.AcqirisTDC{
		Channels: []*device.TDCChannel{{HitTimes: []float64{1.5, 2.5}}},
	})
	e.SetDevice(device.TagMachineData, &device.MachineData{
		Values: map[string]float64{"pressure": 1e-8},
	})

	var buf bytes.Buffer
	wr := wire.NewWriter(&buf)
	e.Serialize(wr)
	require.NoError(t, wr.Err())

	got := New()
	rd := wire.NewReader(&buf)
	got.Deserialize(rd, DefaultFactories())
	require.NoError(t, rd.Err())

	require.Equal(t, e.ID, got.ID)
	gotPD, err := got.Device(device.TagPixelDetectors)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, gotPD.(*device.PixelDetectors).Detectors_[0].Frame)

	gotMD, err := got.Device(device.TagMachineData)
	require.NoError(t, err)
	require.Equal(t, 1e-8, gotMD.(*device.MachineData).Values["pressure"])
}

func TestDeviceAbsentDistinctFromEmpty(t *testing.T) {
	e := New()
	_, err := e.Device(device.TagAcqiris)
	require.ErrorIs(t, err, ErrDeviceAbsent)

	e.SetDevice(device.TagAcqiris, &device.Acqiris{Channels: nil})
	got, err := e.Device(device.TagAcqiris)
	require.NoError(t, err)
	require.Equal(t, 0, got.(*device.Acqiris).NumDetectors())
}
