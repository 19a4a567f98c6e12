package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFacadeAccumulates(t *testing.T) {
	f := New()
	f.EventProcessed()
	f.EventProcessed()
	f.ProcessorError("pp1")
	f.ProcessorError("pp1")
	f.ProcessorError("pp2")
	f.SetActiveProcessors(7)
	f.ObserveWrite("pp1002", 10*time.Millisecond)
	f.ObserveWrite("pp1002", 30*time.Millisecond)

	s := f.Snapshot()
	require.Equal(t, uint64(2), s.EventsProcessed)
	require.Equal(t, int64(7), s.ActiveProcessors)
	require.Equal(t, uint64(2), s.ProcessorErrors["pp1"])
	require.Equal(t, uint64(1), s.ProcessorErrors["pp2"])
	require.Equal(t, uint64(2), s.WriteCount["pp1002"])
	require.InDelta(t, 0.040, s.WriteSecondsTotal["pp1002"], 1e-6)
}

func TestFacadeSnapshotIsIndependentCopy(t *testing.T) {
	f := New()
	f.ProcessorError("pp1")
	s := f.Snapshot()
	f.ProcessorError("pp1")

	require.Equal(t, uint64(1), s.ProcessorErrors["pp1"])
	require.Equal(t, uint64(2), f.Snapshot().ProcessorErrors["pp1"])
}
