// CLAUDE:SUMMARY MappingTable: CSV parse, invariant validation, and serialization of original→replacement rename pairs.
package dimap

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// MappingEntry is one rename pair from the mapping CSV.
type MappingEntry struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// MappingTable is an ordered sequence of rename pairs with a derived
// original→replacement lookup. Entries are immutable after parsing.
type MappingTable struct {
	entries []MappingEntry
	lookup  map[string]string
}

// MappingParseOptions controls CSV parsing.
type MappingParseOptions struct {
	// SkipHeader drops the first row. Off by default: the mapping format has
	// no mandated header, and auto-detection could silently discard a real
	// mapping, so skipping is always an explicit caller decision.
	SkipHeader bool
}

// ParseMappingCSV reads rows of exactly two non-empty trimmed columns.
// All structural problems are collected into the report; if any are
// error-severity the table is nil and the returned error is the sentinel for
// the first problem found (ErrMalformedRow or ErrDuplicateSource).
// Identical duplicate rows are deduplicated silently.
func ParseMappingCSV(data []byte, opts MappingParseOptions) (*MappingTable, *ValidationReport, error) {
	report := &ValidationReport{}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	t := &MappingTable{lookup: make(map[string]string)}
	var firstErr error
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			report.addRowError(row, fmt.Sprintf("unreadable row: %v", err))
			if firstErr == nil {
				firstErr = ErrMalformedRow
			}
			continue
		}
		if opts.SkipHeader && row == 1 {
			continue
		}
		// Blank lines are already skipped by encoding/csv; a single empty
		// column can still arrive as a one-field record.
		if len(rec) < 2 {
			report.addRowError(row, fmt.Sprintf("row has %d column(s), need 2", len(rec)))
			if firstErr == nil {
				firstErr = ErrMalformedRow
			}
			continue
		}
		if len(rec) > 2 {
			report.addRowWarning(row, fmt.Sprintf("row has %d columns, extra columns ignored", len(rec)))
		}
		original := strings.TrimSpace(rec[0])
		replacement := strings.TrimSpace(rec[1])
		if original == "" || replacement == "" {
			report.addRowError(row, "empty column")
			if firstErr == nil {
				firstErr = ErrMalformedRow
			}
			continue
		}

		if prev, ok := t.lookup[original]; ok {
			if prev == replacement {
				continue // identical duplicate, dedup silently
			}
			report.addRowError(row, fmt.Sprintf("original %q already mapped to %q, conflicting with %q", original, prev, replacement))
			if firstErr == nil {
				firstErr = ErrDuplicateSource
			}
			continue
		}
		t.entries = append(t.entries, MappingEntry{Original: original, Replacement: replacement})
		t.lookup[original] = replacement
	}

	if firstErr != nil {
		return nil, report, fmt.Errorf("%w: %d problem(s) in mapping file", firstErr, report.Errors())
	}
	return t, report, nil
}

// Validate checks global invariants that parsing cannot decide row by row.
// It never fails for a table that parsed; everything is reported as findings.
func (t *MappingTable) Validate() *ValidationReport {
	report := &ValidationReport{}

	if len(t.entries) == 0 {
		report.addWarning("mapping table is empty")
		return report
	}

	// A replacement that is also another entry's original reads like a
	// two-step rename (A→B, B→C). Application is single-pass so no chaining
	// happens, but the intent is ambiguous enough to flag.
	byReplacement := make(map[string][]string)
	for _, e := range t.entries {
		byReplacement[e.Replacement] = append(byReplacement[e.Replacement], e.Original)
		if other, ok := t.lookup[e.Replacement]; ok && e.Replacement != e.Original {
			report.addWarning(fmt.Sprintf(
				"replacement %q is also an original (mapped to %q); renames apply in a single pass, a field named %q will not become %q",
				e.Replacement, other, e.Original, other))
		}
	}

	// Two originals sharing a replacement only collide if both fields exist
	// in the target workbook; that is decided at remap time. Warn here.
	for repl, origs := range byReplacement {
		if len(origs) > 1 {
			report.addWarning(fmt.Sprintf("replacement %q is the target of %d originals (%s); remap will fail if more than one exists in the workbook",
				repl, len(origs), strings.Join(origs, ", ")))
		}
	}

	return report
}

// Entries returns the rename pairs in file order.
func (t *MappingTable) Entries() []MappingEntry {
	out := make([]MappingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of (deduplicated) rename pairs.
func (t *MappingTable) Len() int { return len(t.entries) }

// Replacement returns the replacement for an original name.
func (t *MappingTable) Replacement(original string) (string, bool) {
	r, ok := t.lookup[original]
	return r, ok
}

// Lookup returns a snapshot copy of the original→replacement map. Remapping
// works exclusively from such a snapshot so renames never chain.
func (t *MappingTable) Lookup() map[string]string {
	out := make(map[string]string, len(t.lookup))
	for k, v := range t.lookup {
		out[k] = v
	}
	return out
}

// MarshalCSV serializes the table back to two-column CSV in entry order.
func (t *MappingTable) MarshalCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, e := range t.entries {
		if err := w.Write([]string{e.Original, e.Replacement}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newMappingTable builds a table from already-clean pairs (used by the
// suggestion engine and the TOML extractor). Duplicate originals keep the
// first occurrence.
func newMappingTable(entries []MappingEntry) *MappingTable {
	t := &MappingTable{lookup: make(map[string]string, len(entries))}
	for _, e := range entries {
		if _, ok := t.lookup[e.Original]; ok {
			continue
		}
		t.entries = append(t.entries, e)
		t.lookup[e.Original] = e.Replacement
	}
	return t
}
