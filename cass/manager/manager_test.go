package manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// recorderCtor builds processors whose Process records the name it was
// called with, so tests can assert topological ordering directly
// (property 9).
func recorderCtor(depsOf map[string][]string, log *[]string) Constructor {
	return func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
		b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, logger)
		deps := depsOf[name]
		b.LoadFunc = func() error {
			for _, d := range deps {
				b.AddDependency(d)
			}
			return nil
		}
		b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
			*log = append(*log, name)
			res.SetValue(1)
			return nil
		}
		return b, nil
	}
}

func kindLookupAllSame(kind string) KindLookup {
	return func(name string) (string, error) { return kind, nil }
}

func TestLoadOrdersDependenciesBeforeDependents(t *testing.T) {
	var log []string
	deps := map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	}
	m := New(1, kindLookupAllSame("rec"), nil)
	m.RegisterKind("rec", recorderCtor(deps, &log))

	require.NoError(t, m.Load([]string{"c"}))
	require.Equal(t, []string{"a", "b", "c"}, m.ActiveList())

	evt := event.New()
	evt.ID = event.NewID(1, 1)
	require.NoError(t, m.ProcessEvent(evt))
	require.Equal(t, []string{"a", "b", "c"}, log)
}

func TestLoadDetectsCycle(t *testing.T) {
	deps := map[string][]string{
		"x": {"y"},
		"y": {"x"},
	}
	var log []string
	m := New(1, kindLookupAllSame("rec"), nil)
	m.RegisterKind("rec", recorderCtor(deps, &log))

	err := m.Load([]string{"x"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCyclicGraph))
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	m := New(1, func(string) (string, error) { return "bogus", nil }, nil)
	err := m.Load([]string{"a"})
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestLoadRejectsUnknownProcessor(t *testing.T) {
	m := New(1, func(string) (string, error) { return "", errNotFound }, nil)
	err := m.Load([]string{"missing"})
	require.True(t, errors.Is(err, ErrUnknownProcessor))
}

var errNotFound = errors.New("not found")

func TestAboutToQuitFansOutInReverseOrder(t *testing.T) {
	deps := map[string][]string{"a": nil, "b": {"a"}}

	var quitLog []string
	m := New(1, kindLookupAllSame("rec"), nil)
	m.RegisterKind("rec", func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
		b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, logger)
		localDeps := deps[name]
		b.LoadFunc = func() error {
			for _, d := range localDeps {
				b.AddDependency(d)
			}
			return nil
		}
		b.AboutToQuitFunc = func() error {
			quitLog = append(quitLog, name)
			return nil
		}
		return b, nil
	})
	require.NoError(t, m.Load([]string{"b"}))
	require.NoError(t, m.AboutToQuit())
	require.Equal(t, []string{"b", "a"}, quitLog)
}
