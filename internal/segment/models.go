package segment

import (
	"sort"

	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

// MainKey names the main-line list in a Map.
const MainKey = "main"

// BranchRef tells a main segment which branches its breakpoint can lead to
// and how many segments each one plays.
type BranchRef struct {
	Type         string `json:"type" yaml:"type"`
	SegmentCount int    `json:"segment_count" yaml:"segment_count"`
}

// Segment is one playable media unit. Segments are derived from a script and
// never edited; rebuild the Map instead.
type Segment struct {
	Number        int                          `json:"segment_number" yaml:"segment_number"`
	ListKey       string                       `json:"list_key" yaml:"list_key"`
	HasBreakpoint bool                         `json:"has_breakpoint" yaml:"has_breakpoint"`
	Breakpoint    *scenario.BreakpointQuestion `json:"breakpoint,omitempty" yaml:"breakpoint,omitempty"`
	BranchOptions []BranchRef                  `json:"branch_options,omitempty" yaml:"branch_options,omitempty"`
	// SourceBlockIndices are script indices. Branch segments point at their anchor block.
	SourceBlockIndices []int `json:"source_block_indices" yaml:"source_block_indices"`
	// Sources addresses every line the segment plays, in order.
	Sources []scenario.Address `json:"-" yaml:"-"`
}

func (s Segment) IsBranch() bool { return s.ListKey != MainKey }

// Map holds the main list under MainKey plus one list per branch type.
type Map map[string][]Segment

// Lookup returns segment n (1-based) of the named list.
func (m Map) Lookup(listKey string, n int) (Segment, bool) {
	list := m[listKey]
	if n < 1 || n > len(list) {
		return Segment{}, false
	}
	return list[n-1], true
}

func (m Map) Len(listKey string) int { return len(m[listKey]) }

// Keys returns list keys with MainKey first and branches in lexical order.
func (m Map) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != MainKey {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if _, ok := m[MainKey]; ok {
		out = append([]string{MainKey}, out...)
	}
	return out
}

// Total counts segments across all lists.
func (m Map) Total() int {
	n := 0
	for _, l := range m {
		n += len(l)
	}
	return n
}
