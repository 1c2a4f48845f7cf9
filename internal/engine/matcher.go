package engine

import (
	"sort"
	"strings"
)

// matcher associates free-text order names with tracked tender codes.
//
// Order names frequently embed the tender code (or its prefix, the part
// before the final segment) verbatim. When several codes match, the longest
// one wins; equal lengths break lexicographically. Candidates are sorted
// once so results are stable across runs.
type matcher struct {
	codes []string
	set   map[string]bool
}

func newMatcher(codes []string) *matcher {
	sorted := make([]string, len(codes))
	copy(sorted, codes)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	set := make(map[string]bool, len(sorted))
	for _, c := range sorted {
		set[c] = true
	}
	return &matcher{codes: sorted, set: set}
}

// matchName finds the tracked tender a free-text order name refers to.
// A verbatim code match beats any prefix match.
func (m *matcher) matchName(name string) (string, bool) {
	for _, code := range m.codes {
		if strings.Contains(name, code) {
			return code, true
		}
	}
	for _, code := range m.codes {
		if p := codePrefix(code); p != "" && strings.Contains(name, p) {
			return code, true
		}
	}
	return "", false
}

func (m *matcher) known(code string) bool {
	return m.set[code]
}

// codePrefix strips the final separator segment: "1234-56-LE26" -> "1234-56".
func codePrefix(code string) string {
	idx := strings.LastIndex(code, "-")
	if idx <= 0 {
		return ""
	}
	return code[:idx]
}
