package linkpreview

import "slices"

// prefixMap allows fast checks against predefined set of url prefixes: only
// one map lookup per distinct prefix length is done.
type prefixMap struct {
	prefixes map[string]struct{}
	lengths  []int // unique, ascending
}

// newPrefixMap initializes new prefixMap from given slice of prefixes. It
// returns nil if there are no non-empty prefixes.
func newPrefixMap(prefixes []string) *prefixMap {
	m := &prefixMap{prefixes: make(map[string]struct{}, len(prefixes))}
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		m.prefixes[p] = struct{}{}
		m.lengths = append(m.lengths, len(p))
	}
	if len(m.lengths) == 0 {
		return nil
	}
	slices.Sort(m.lengths)
	m.lengths = slices.Compact(m.lengths)
	return m
}

// Match reports whether url starts with any of the prefixes. Nil prefixMap
// matches nothing.
func (m *prefixMap) Match(url string) bool {
	if m == nil {
		return false
	}
	for _, n := range m.lengths {
		if n > len(url) {
			return false
		}
		if _, ok := m.prefixes[url[:n]]; ok {
			return true
		}
	}
	return false
}
