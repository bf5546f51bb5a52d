// CLAUDE:SUMMARY Remap engine state machine: validate mapping against catalog, apply renames atomically, serialize.
package dimap

import (
	"fmt"
	"sort"
)

// RemapState is the phase a remap run is in. Runs move
// validating → applying → serializing → done; failed is reachable from any
// phase and the result records where the run stopped.
type RemapState string

const (
	StateValidating  RemapState = "validating"
	StateApplying    RemapState = "applying"
	StateSerializing RemapState = "serializing"
	StateDone        RemapState = "done"
	StateFailed      RemapState = "failed"
)

// RemapOptions controls remap behavior.
type RemapOptions struct {
	// Strict makes a mapping original with no matching catalog field fatal.
	// Off by default: callers may intentionally ship mappings for fields not
	// yet present in this workbook.
	Strict bool
}

// RemapResult describes one remap run.
type RemapResult struct {
	State        RemapState        `json:"state"`
	Report       *ValidationReport `json:"report"`
	Replacements map[string]int    `json:"replacements"` // original name → occurrences rewritten
	Total        int               `json:"total"`
	Output       []byte            `json:"-"` // serialized workbook, nil on failure
}

// Remap applies the mapping table to the workbook and serializes the result.
// All-or-nothing: validation problems, including rename collisions, are
// detected before the first mutation, so on error the workbook is untouched
// and Output is nil. The workbook is mutated in place on success; parse a
// fresh copy per run.
func Remap(table *MappingTable, wb *Workbook, opts RemapOptions) (*RemapResult, error) {
	res := &RemapResult{State: StateValidating, Report: &ValidationReport{}}
	lookup := table.Lookup()

	for _, e := range table.Entries() {
		if _, ok := wb.Field(e.Original); ok {
			continue
		}
		if opts.Strict {
			res.State = StateFailed
			res.Report.addError(fmt.Sprintf("mapping original %q matches no field in the workbook", e.Original))
			return res, fmt.Errorf("%w: %q", ErrUnknownField, e.Original)
		}
		res.Report.addWarning(fmt.Sprintf("mapping original %q matches no field in the workbook, entry skipped", e.Original))
	}

	// Collision check over the final-name multiset. Each catalog field lands
	// on lookup[name] if mapped, its own name otherwise; two fields landing
	// on the same final name is fatal. Checking final names rather than raw
	// replacements is what permits swap-style mappings like {A→B, B→C}.
	final := make(map[string][]string, len(wb.Catalog()))
	for _, fd := range wb.Catalog() {
		target := fd.Name
		if repl, ok := lookup[fd.Name]; ok {
			target = repl
		}
		final[target] = append(final[target], fd.Name)
	}
	for target, origins := range final {
		if len(origins) > 1 {
			sort.Strings(origins)
			res.State = StateFailed
			res.Report.addError(fmt.Sprintf("fields %v would all be named %q after remapping", origins, target))
			return res, fmt.Errorf("%w: %d fields would be named %q", ErrRenameCollision, len(origins), target)
		}
	}

	res.State = StateApplying
	counts, err := wb.applyRenames(lookup)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.Replacements = counts
	for _, n := range counts {
		res.Total += n
	}

	res.State = StateSerializing
	out, err := wb.Serialize()
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.Output = out
	res.State = StateDone
	return res, nil
}
