// CLAUDE:SUMMARY Bracket-delimited field-reference tokenizer and single-pass rewriter for formulas and shelf expressions.
package dimap

import "strings"

// fieldRef is one [Field Name] token found in a formula or shelf expression.
// Start/End index the full token including brackets; Name is the unescaped
// field name.
type fieldRef struct {
	Start, End int
	Name       string
}

// scanFieldRefs tokenizes bracket-delimited field references in s.
// Inside a reference, "]]" is an escaped literal "]" (Tableau convention);
// a single "]" closes the token. An unterminated "[" yields no token.
//
// Tokenizing instead of substring matching is what keeps renames safe:
// [Sales] and [SalesTax] are distinct tokens, never overlapping matches.
func scanFieldRefs(s string) []fieldRef {
	var refs []fieldRef
	for i := 0; i < len(s); {
		if s[i] != '[' {
			i++
			continue
		}
		var name strings.Builder
		j := i + 1
		closed := false
		for j < len(s) {
			if s[j] == ']' {
				if j+1 < len(s) && s[j+1] == ']' {
					name.WriteByte(']')
					j += 2
					continue
				}
				closed = true
				j++
				break
			}
			name.WriteByte(s[j])
			j++
		}
		if !closed {
			break
		}
		refs = append(refs, fieldRef{Start: i, End: j, Name: name.String()})
		i = j
	}
	return refs
}

// rewriteFieldRefs replaces every bracketed reference whose name has an
// entry in lookup, in a single pass. Because each token is consulted against
// the immutable lookup exactly once, renames never chain: with {A→B, B→C} a
// token [A] becomes [B] and stays [B].
//
// counts, when non-nil, is incremented per original name replaced.
func rewriteFieldRefs(s string, lookup map[string]string, counts map[string]int) (string, bool) {
	refs := scanFieldRefs(s)
	if len(refs) == 0 {
		return s, false
	}

	var b strings.Builder
	last := 0
	changed := false
	for _, ref := range refs {
		repl, ok := lookup[ref.Name]
		if !ok {
			continue
		}
		b.WriteString(s[last:ref.Start])
		b.WriteByte('[')
		b.WriteString(escapeFieldName(repl))
		b.WriteByte(']')
		last = ref.End
		changed = true
		if counts != nil {
			counts[ref.Name]++
		}
	}
	if !changed {
		return s, false
	}
	b.WriteString(s[last:])
	return b.String(), true
}

// escapeFieldName escapes "]" as "]]" for embedding in a bracketed reference.
func escapeFieldName(name string) string {
	return strings.ReplaceAll(name, "]", "]]")
}

// bracketName wraps a plain field name in reference brackets.
func bracketName(name string) string {
	return "[" + escapeFieldName(name) + "]"
}

// unbracketName strips one level of reference brackets, unescaping "]]".
// Names without brackets are returned unchanged.
func unbracketName(s string) string {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return s
	}
	inner := s[1 : len(s)-1]
	return strings.ReplaceAll(inner, "]]", "]")
}
