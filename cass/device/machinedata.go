package device

import "github.com/lcls-cass/cassgo/cass/wire"

// MachineData carries scalar beamline readbacks (pressures, delays,
// photon energy, …) keyed by EPICS-style PV name.
type MachineData struct {
	Values map[string]float64
}

func (m *MachineData) Serialize(wr *wire.Writer) {
	wr.U32(uint32(len(m.Values)))
	for k, v := range m.Values {
		wr.String(k)
		wr.F64(v)
	}
}

func (m *MachineData) Deserialize(rd *wire.Reader) {
	n := int(rd.U32())
	m.Values = make(map[string]float64, n)
	for i := 0; i < n; i++ {
		k := rd.String()
		v := rd.F64()
		m.Values[k] = v
	}
}
