package device

import "github.com/lcls-cass/cassgo/cass/wire"

// Channel is one Acqiris digitizer channel: calibration metadata plus
// a 16-bit sample sequence.
type Channel struct {
	HorPos     float64
	VertOffset float64
	Gain       float64
	SampleInt  float64
	Samples    []int16
}

// Volts converts a raw sample to calibrated volts using Gain/VertOffset.
func (c *Channel) Volts(i int) float64 {
	return float64(c.Samples[i])*c.Gain - c.VertOffset
}

func (c *Channel) serialize(wr *wire.Writer) {
	wr.F64(c.HorPos)
	wr.F64(c.VertOffset)
	wr.F64(c.Gain)
	wr.F64(c.SampleInt)
	wr.U64(uint64(len(c.Samples)))
	for _, s := range c.Samples {
		wr.U16(uint16(s))
	}
}

func (c *Channel) deserialize(rd *wire.Reader) {
	c.HorPos = rd.F64()
	c.VertOffset = rd.F64()
	c.Gain = rd.F64()
	c.SampleInt = rd.F64()
	n := int(rd.U64())
	c.Samples = make([]int16, n)
	for i := range c.Samples {
		c.Samples[i] = int16(rd.U16())
	}
}

// Acqiris is the waveform digitizer device payload: an ordered
// sequence of channels.
type Acqiris struct {
	Channels []*Channel
}

func (a *Acqiris) NumDetectors() int { return len(a.Channels) }

func (a *Acqiris) Serialize(wr *wire.Writer) {
	wr.U32(uint32(len(a.Channels)))
	for _, c := range a.Channels {
		c.serialize(wr)
	}
}

func (a *Acqiris) Deserialize(rd *wire.Reader) {
	n := int(rd.U32())
	a.Channels = make([]*Channel, n)
	for i := range a.Channels {
		c := &Channel{}
		c.deserialize(rd)
		a.Channels[i] = c
	}
}
