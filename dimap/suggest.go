// CLAUDE:SUMMARY Deterministic name-normalization heuristics producing a mapping table of rename suggestions.
package dimap

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SuggestOptions controls the normalization pipeline.
type SuggestOptions struct {
	// ReorderNameFields rewrites two-word "<X> name" fields into the
	// "name <X>" convention ("Last name" → "name Last"). Off by default; the
	// convention is house style, not universal.
	ReorderNameFields bool
}

// abbreviations is the fixed expansion dictionary, keyed lowercase. Every
// expansion must itself be a normalization fixpoint or suggestions stop
// being idempotent.
var abbreviations = map[string]string{
	"qty":  "Quantity",
	"amt":  "Amount",
	"num":  "Number",
	"pct":  "Percent",
	"avg":  "Average",
	"cust": "Customer",
	"addr": "Address",
	"desc": "Description",
	"id":   "ID",
	"dept": "Department",
	"yr":   "Year",
}

// Suggest derives a replacement name for each candidate field and returns
// the result as a mapping table. The pipeline is deterministic and
// idempotent: running it over already-normalized names yields only identity
// suggestions, and identity suggestions are omitted, so a second pass over a
// remapped workbook produces an empty table. Never fails; an empty candidate
// list yields an empty table.
func Suggest(candidates []FieldDescriptor, opts SuggestOptions) *MappingTable {
	var entries []MappingEntry
	for _, fd := range candidates {
		base := fd.Caption
		if base == "" {
			base = fd.Name
		}
		repl := normalizeName(base, opts)
		if repl == "" || repl == fd.Name {
			continue
		}
		entries = append(entries, MappingEntry{Original: fd.Name, Replacement: repl})
	}
	return newMappingTable(entries)
}

// normalizeName trims and collapses whitespace, expands abbreviations,
// title-cases fully-lowercase words, and optionally applies the "name <X>"
// reorder. Acronyms and mixed-case words pass through untouched.
func normalizeName(name string, opts SuggestOptions) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	if opts.ReorderNameFields && len(words) == 2 {
		// Already in "name <X>" form: a fixpoint, leave it alone. Without
		// this check title-casing would flip it to "Name <X>" on the next
		// pass and idempotence would be lost.
		if words[0] == "name" {
			return strings.Join(words, " ")
		}
		if strings.EqualFold(words[1], "name") {
			return "name " + normalizeWord(words[0])
		}
	}
	for i, w := range words {
		words[i] = normalizeWord(w)
	}
	return strings.Join(words, " ")
}

func normalizeWord(w string) string {
	if full, ok := abbreviations[strings.ToLower(w)]; ok {
		return full
	}
	if w == strings.ToLower(w) {
		return titleWord(w)
	}
	return w
}

// titleWord upper-cases the first rune only.
func titleWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
