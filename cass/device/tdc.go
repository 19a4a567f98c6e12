package device

import "github.com/lcls-cass/cassgo/cass/wire"

// TDCChannel carries a set of hit times (doubles) for one delay-line
// anode channel.
type TDCChannel struct {
	HitTimes []float64
}

func (c *TDCChannel) serialize(wr *wire.Writer) {
	wr.U64(uint64(len(c.HitTimes)))
	for _, t := range c.HitTimes {
		wr.F64(t)
	}
}

func (c *TDCChannel) deserialize(rd *wire.Reader) {
	n := int(rd.U64())
	c.HitTimes = make([]float64, n)
	for i := range c.HitTimes {
		c.HitTimes[i] = rd.F64()
	}
}

// AcqirisTDC is the time-to-digital-converter device payload: an
// ordered sequence of per-channel hit-time sets.
type AcqirisTDC struct {
	Channels []*TDCChannel
}

func (t *AcqirisTDC) NumDetectors() int { return len(t.Channels) }

func (t *AcqirisTDC) Serialize(wr *wire.Writer) {
	wr.U32(uint32(len(t.Channels)))
	for _, c := range t.Channels {
		c.serialize(wr)
	}
}

func (t *AcqirisTDC) Deserialize(rd *wire.Reader) {
	n := int(rd.U32())
	t.Channels = make([]*TDCChannel, n)
	for i := range t.Channels {
		c := &TDCChannel{}
		c.deserialize(rd)
		t.Channels[i] = c
	}
}
