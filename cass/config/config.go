// Package config wraps a viper-backed hierarchical key-value store
// with the "Processor/<name>/<key>" group layout of spec.md §6. Every
// processor constructor reads its own knobs through a Store, scoped to
// its own name, so pp implementations never reference viper directly —
// the same separation the teacher draws between its mux package (wire
// framing) and the callers that interpret chunk payloads.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Store is the read side of the configuration tree. Unknown keys are
// ignored (spec.md §6); every accessor takes a default used when the
// key is absent.
type Store struct {
	v *viper.Viper
}

// New wraps an already-populated viper instance (e.g. one that has
// read cass.yaml/cass.toml and any environment overrides).
func New(v *viper.Viper) *Store {
	return &Store{v: v}
}

// Load builds a Store from a config file at path plus "CASS_"-prefixed
// environment variable overrides, matching the teacher's convention of
// layering env vars over a file for container-friendly deploys.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "/", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return &Store{v: v}, nil
}

func (s *Store) key(procName, key string) string {
	return "processor." + procName + "." + key
}

// Kind returns the Processor/<name>/ID key: the pp-kind string the
// manager's registry is keyed on.
func (s *Store) Kind(procName string) (string, error) {
	k := s.key(procName, "id")
	if !s.v.IsSet(k) {
		return "", ErrNoSuchProcessor
	}
	return s.v.GetString(k), nil
}

// ActiveList returns the configured top-level activation set
// (spec.md §4.G step 1).
func (s *Store) ActiveList() []string {
	return s.v.GetStringSlice("processor.active")
}

func (s *Store) String(procName, key, def string) string {
	k := s.key(procName, key)
	if !s.v.IsSet(k) {
		return def
	}
	return s.v.GetString(k)
}

func (s *Store) Float(procName, key string, def float64) float64 {
	k := s.key(procName, key)
	if !s.v.IsSet(k) {
		return def
	}
	return s.v.GetFloat64(k)
}

func (s *Store) Int(procName, key string, def int) int {
	k := s.key(procName, key)
	if !s.v.IsSet(k) {
		return def
	}
	return s.v.GetInt(k)
}

func (s *Store) Bool(procName, key string, def bool) bool {
	k := s.key(procName, key)
	if !s.v.IsSet(k) {
		return def
	}
	return s.v.GetBool(k)
}

func (s *Store) StringSlice(procName, key string) []string {
	return s.v.GetStringSlice(s.key(procName, key))
}

// ErrNoSuchProcessor is returned by Kind when no Processor/<name>/ID
// key exists.
var ErrNoSuchProcessor = noSuchProcessorError{}

type noSuchProcessorError struct{}

func (noSuchProcessorError) Error() string { return "config: no such processor" }
