package config

import (
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestAccessorsFallBackToDefaults(t *testing.T) {
	v := viper.New()
	v.Set("processor.pp1.operand_a", "Input1")
	v.Set("processor.pp1.scale", 2.5)

	s := New(v)
	require.Equal(t, "Input1", s.String("pp1", "operand_a", "Unknown"))
	require.Equal(t, "Unknown", s.String("pp1", "operand_b", "Unknown"))
	require.Equal(t, 2.5, s.Float("pp1", "scale", 1.0))
	require.Equal(t, 1.0, s.Float("pp1", "missing", 1.0))
}

func TestKindLookupReportsMissingProcessor(t *testing.T) {
	v := viper.New()
	v.Set("processor.pp1.id", "1")
	s := New(v)

	kind, err := s.Kind("pp1")
	require.NoError(t, err)
	require.Equal(t, "1", kind)

	_, err = s.Kind("ghost")
	require.True(t, errors.Is(err, ErrNoSuchProcessor))
}
