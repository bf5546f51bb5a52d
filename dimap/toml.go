// CLAUDE:SUMMARY TOML config mining: pull original→replacement rename pairs out of sections like [columns.other_renames].
package dimap

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// ExtractTOMLMappings mines rename pairs from a TOML configuration file.
// With a section given (dotted path, e.g. "columns.other_renames") every
// string-valued key directly under it becomes an original→replacement pair.
// With section empty, tables whose path mentions "rename" or "mapping" are
// used; if none exist, any string leaf nested at least two tables deep is
// taken as a pair. Key order follows the file.
func ExtractTOMLMappings(data []byte, section string) (*MappingTable, error) {
	var root map[string]any
	md, err := toml.Decode(string(data), &root)
	if err != nil {
		return nil, fmt.Errorf("dimap: parse toml: %w", err)
	}

	type leaf struct {
		path  []string
		value string
	}
	var leaves []leaf
	for _, key := range md.Keys() {
		path := []string(key)
		if len(path) < 2 {
			continue
		}
		if v, ok := lookupString(root, path); ok {
			leaves = append(leaves, leaf{path: path, value: v})
		}
	}

	var entries []MappingEntry
	add := func(l leaf) {
		entries = append(entries, MappingEntry{Original: l.path[len(l.path)-1], Replacement: l.value})
	}

	if section != "" {
		for _, l := range leaves {
			if strings.Join(l.path[:len(l.path)-1], ".") == section {
				add(l)
			}
		}
		return newMappingTable(entries), nil
	}

	for _, l := range leaves {
		if pathMentionsRename(l.path[:len(l.path)-1]) {
			add(l)
		}
	}
	if len(entries) == 0 {
		for _, l := range leaves {
			if len(l.path) >= 3 {
				add(l)
			}
		}
	}
	return newMappingTable(entries), nil
}

func pathMentionsRename(parent []string) bool {
	for _, p := range parent {
		lower := strings.ToLower(p)
		if strings.Contains(lower, "rename") || strings.Contains(lower, "mapping") {
			return true
		}
	}
	return false
}

func lookupString(root map[string]any, path []string) (string, bool) {
	cur := any(root)
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[p]; !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
