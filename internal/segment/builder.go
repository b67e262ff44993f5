// Package segment partitions a scenario script into numbered, playable
// segments: one main list plus one list per branch type.
//
// Main-line rules, applied in one pass over the script:
//   - blocks with role, dialogue or image accumulate into the open segment;
//   - an image closes the open segment first when an earlier block of that
//     segment already brought an image (the first image never splits);
//   - a breakpoint closes the open segment, its own content included, as a
//     breakpoint segment, even if that segment is empty;
//   - a branch anchor closes a non-empty open segment without breakpoint and
//     never contributes content;
//   - whatever is still open at the end becomes the last main segment.
//
// Branch dialogue is split with the image rule only. A non-empty branch
// always yields at least one segment.
package segment

import (
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

type openSegment struct {
	indices       []int
	imageInEffect bool
}

func (o *openSegment) add(i int, hasImage bool) {
	o.indices = append(o.indices, i)
	if hasImage {
		o.imageInEffect = true
	}
}

func (o *openSegment) empty() bool { return len(o.indices) == 0 }

type builder struct {
	script []scenario.ScriptBlock
	out    Map
	open   openSegment
}

// Build returns a fresh Map for script. It never fails and never shares
// state between calls.
func Build(script []scenario.ScriptBlock) Map {
	b := &builder{script: script, out: Map{MainKey: []Segment{}}}
	for i, blk := range script {
		if blk.IsAnchor() {
			if !b.open.empty() {
				b.pushMain(nil, nil)
			}
			b.addBranchLists(i, blk)
		} else {
			if blk.Image != nil && b.open.imageInEffect {
				b.pushMain(nil, nil)
			}
			if blk.HasContent() {
				b.open.add(i, blk.Image != nil)
			}
		}
		if blk.Breakpoint != nil {
			b.pushMain(blk.Breakpoint, b.branchRefsAfter(i))
		}
	}
	if !b.open.empty() {
		b.pushMain(nil, nil)
	}
	b.countRefs()
	return b.out
}

func (b *builder) pushMain(bp *scenario.BreakpointQuestion, refs []BranchRef) {
	list := b.out[MainKey]
	indices := append([]int{}, b.open.indices...)
	sources := make([]scenario.Address, 0, len(indices))
	for _, i := range indices {
		sources = append(sources, scenario.MainBlock{Index: i})
	}
	seg := Segment{
		Number:             len(list) + 1,
		ListKey:            MainKey,
		HasBreakpoint:      bp != nil,
		Breakpoint:         bp,
		BranchOptions:      refs,
		SourceBlockIndices: indices,
		Sources:            sources,
	}
	b.out[MainKey] = append(list, seg)
	b.open = openSegment{}
}

// branchRefsAfter names the branches of the block following i, if that
// block is an anchor. Counts are filled in by countRefs once every list exists.
func (b *builder) branchRefsAfter(i int) []BranchRef {
	if i+1 >= len(b.script) || !b.script[i+1].IsAnchor() {
		return nil
	}
	opts := b.script[i+1].BranchOptions
	refs := make([]BranchRef, 0, len(opts))
	for _, o := range opts {
		refs = append(refs, BranchRef{Type: o.Type})
	}
	return refs
}

// countRefs sets every branch ref to the length of the list that an answer
// targeting it plays, so refs and lists never disagree.
func (b *builder) countRefs() {
	for _, seg := range b.out[MainKey] {
		for j := range seg.BranchOptions {
			ref := &seg.BranchOptions[j]
			if ref.Type == MainKey {
				ref.SegmentCount = 0
				continue
			}
			ref.SegmentCount = len(b.out[ref.Type])
		}
	}
}

// addBranchLists registers one list per branch type of the anchor. A type
// already registered by an earlier anchor keeps its first definition; the
// reserved main key and empty types are skipped.
func (b *builder) addBranchLists(anchor int, blk scenario.ScriptBlock) {
	for bi, o := range blk.BranchOptions {
		if o.Type == "" || o.Type == MainKey {
			continue
		}
		if _, exists := b.out[o.Type]; exists {
			continue
		}
		groups := splitLines(o.Dialogue)
		list := make([]Segment, 0, len(groups))
		for gi, g := range groups {
			sources := make([]scenario.Address, 0, len(g))
			for _, d := range g {
				sources = append(sources, scenario.BranchBlock{AnchorIndex: anchor, BranchIndex: bi, DialogueIndex: d})
			}
			list = append(list, Segment{
				Number:             gi + 1,
				ListKey:            o.Type,
				SourceBlockIndices: []int{anchor},
				Sources:            sources,
			})
		}
		b.out[o.Type] = list
	}
}

// splitLines groups branch dialogue indices by the image rule.
func splitLines(lines []scenario.DialogueLine) [][]int {
	var (
		groups [][]int
		open   openSegment
	)
	for j, l := range lines {
		if l.Image != nil && open.imageInEffect {
			groups = append(groups, open.indices)
			open = openSegment{}
		}
		if l.HasContent() {
			open.add(j, l.Image != nil)
		}
	}
	if !open.empty() {
		groups = append(groups, open.indices)
	}
	if len(groups) == 0 && len(lines) > 0 {
		groups = [][]int{{}}
	}
	return groups
}
