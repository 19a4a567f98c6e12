package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/result"
)

func newIdentityProc(name string, workers int) *Base {
	b := NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, nil)
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(float32(evt.ID))
		return nil
	}
	return b
}

func TestProcessEventPromotesOnTrueCondition(t *testing.T) {
	p := newIdentityProc("p1", 2)

	evt := event.New()
	evt.ID = event.NewID(1000, 1)
	require.NoError(t, p.ProcessEvent(evt))

	res, err := p.Result(0)
	require.NoError(t, err)
	res.RLock()
	got := res.GetValue()
	res.RUnlock()
	require.Equal(t, float32(evt.ID), got)
}

// TestFalseConditionLeavesLatestUnpromoted exercises the ground-truth
// behaviour from original_source/cass/processing/processor.cpp: a
// reserved-but-unpromoted slot never becomes "latest".
func TestFalseConditionLeavesLatestUnpromoted(t *testing.T) {
	p := newIdentityProc("p2", 2)

	alwaysFalse := NewBase("cond", 2, func() *result.Result { return result.NewValue("cond") }, nil)
	alwaysFalse.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(0)
		return nil
	}
	p.SetCondition(alwaysFalse)

	evt1 := event.New()
	evt1.ID = event.NewID(1000, 1)
	require.NoError(t, alwaysFalse.ProcessEvent(evt1))
	require.NoError(t, p.ProcessEvent(evt1))

	res, err := p.Result(0)
	require.NoError(t, err)
	res.RLock()
	got := res.GetValue()
	res.RUnlock()
	require.Equal(t, float32(0), got, "latest should still be the neutral default, never touched by process()")
}

func TestAccumulatingBaseSerializesAcrossEvents(t *testing.T) {
	b := NewAccumulatingBase("acc", result.NewValue("acc"), nil)
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(res.GetValue() + 1)
		return nil
	}

	for i := 0; i < 5; i++ {
		evt := event.New()
		evt.ID = event.NewID(1000, uint32(i))
		require.NoError(t, b.ProcessEvent(evt))
	}

	res, _ := b.Result(0)
	res.RLock()
	defer res.RUnlock()
	require.Equal(t, float32(5), res.GetValue())
	require.Equal(t, uint64(5), b.EventsAccumulated())
}
