package sink

import (
	"fmt"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/proc"
)

// Entry names one operand result a sink copies into its container:
// the resolved Processor, the group it is filed under and the
// dataset/histogram name it is written as — original_source's
// entry_t(name, groupname, pp) from hdf5_converter.h/root_converter.h.
type Entry struct {
	Processor proc.Processor
	GroupName string
	ValName   string
}

// entrySpec is the unresolved, config-file form of an Entry.
type entrySpec struct {
	operand   string
	groupName string
	valName   string
}

// loadEntrySpecs reads the "<key>", "<key>_groups" and "<key>_names"
// parallel string-slice keys, the flat-store translation of
// original_source's CASSSettings::beginReadArray("Processor") array of
// {Name, GroupName, ValName} structs. A missing group defaults to "/"
// and a missing value name defaults to the operand's own name, exactly
// as s.value("GroupName","/") / s.value("ValName", pp->name()) do.
func loadEntrySpecs(store *config.Store, procName, key string) []entrySpec {
	operands := store.StringSlice(procName, key)
	groups := store.StringSlice(procName, key+"_groups")
	names := store.StringSlice(procName, key+"_names")
	specs := make([]entrySpec, len(operands))
	for i, op := range operands {
		s := entrySpec{operand: op, groupName: "/", valName: op}
		if i < len(groups) && groups[i] != "" {
			s.groupName = groups[i]
		}
		if i < len(names) && names[i] != "" {
			s.valName = names[i]
		}
		specs[i] = s
	}
	return specs
}

// resolveEntries resolves every spec's operand name to a live
// Processor through resolve. If any operand fails to resolve it
// returns the error immediately and no entries — callers then clear
// their whole entry list, matching pp1002/pp2000/pp1500's
// "allDepsAreThere" all-or-nothing gating in loadSettings().
func resolveEntries(resolve func(string) (proc.Processor, error), owner string, specs []entrySpec) ([]Entry, error) {
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		p, err := resolve(s.operand)
		if err != nil {
			return nil, fmt.Errorf("sink %q: operand %q: %w", owner, s.operand, err)
		}
		entries = append(entries, Entry{Processor: p, GroupName: s.groupName, ValName: s.valName})
	}
	return entries, nil
}
