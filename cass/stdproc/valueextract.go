package stdproc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewMachineValue builds the component table's "value extraction"
// role: pull one named beamline channel out of the event's MachineData
// device into a 0-D result. No pp number in spec.md §4.H names this
// explicitly (it is the only entry in the component table's "value
// extraction" responsibility without a listed contract), so it is
// registered under its own "machinevalue" kind string rather than
// squeezed into a numbered family.
func NewMachineValue(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	channel := store.String(name, "channel", "")
	def := float32(store.Float(name, "default", 0))

	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		dev, err := evt.Device(device.TagMachineData)
		if err != nil {
			return err
		}
		md, ok := dev.(*device.MachineData)
		if !ok {
			return fmt.Errorf("%w: machinedata device has wrong type", proc.ErrInvalidData)
		}
		v, ok := md.Values[channel]
		if !ok {
			res.SetValue(def)
			return nil
		}
		res.SetValue(float32(v))
		return nil
	}
	return b, nil
}
