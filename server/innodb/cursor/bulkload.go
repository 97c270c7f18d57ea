package cursor

import (
	"github.com/ixrow/storage-core/server/innodb/latch"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// BuildFromSorted constructs a tree directly from an already-sorted
// ascending sequence of entries, without the page-split churn ordinary
// one-at-a-time insertion would cause. Leaves are packed to fillFraction
// of order (spec §4.5: "fills leaf pages to a configured fraction"); the
// non-leaf levels are then built bottom-up, one level at a time, each
// internal node taking up to order children (the fill fraction applies to
// leaves only), so fan-out stays within order at every level (spec §4.5:
// "builds non-leaf levels bottom-up"). Used by the
// bulk builder once a new index's final merged run is ready to load.
func BuildFromSorted(order int, entries []Entry, fillFraction float64) *Tree {
	if order < 3 {
		order = DefaultOrder
	}
	t := &Tree{Order: order, index: latch.NewIndexLatch()}

	if len(entries) == 0 {
		t.root = newLeaf()
		return t
	}

	chunk := int(float64(order) * fillFraction)
	if chunk < 1 {
		chunk = 1
	}

	var leaves []*node
	var prev *node
	for i := 0; i < len(entries); i += chunk {
		end := i + chunk
		if end > len(entries) {
			end = len(entries)
		}
		n := newLeaf()
		n.entries = append(n.entries, entries[i:end]...)
		if prev != nil {
			prev.next = n
			n.prev = prev
		}
		leaves = append(leaves, n)
		prev = n
	}

	level := leaves
	for len(level) > 1 {
		level = buildParentLevel(level, order)
	}
	t.root = level[0]
	return t
}

// buildParentLevel groups children into internal nodes of at most order
// children each, using each group's first child's leading key as the
// separator into the next group (the group's own first entry never needs
// a separator, since it is reached by "less than everything to its
// right").
func buildParentLevel(children []*node, order int) []*node {
	var parents []*node
	for i := 0; i < len(children); i += order {
		end := i + order
		if end > len(children) {
			end = len(children)
		}
		group := children[i:end]
		p := newInternal()
		p.children = append(p.children, group...)
		for _, c := range group[1:] {
			p.keys = append(p.keys, firstKey(c))
		}
		parents = append(parents, p)
	}
	return parents
}

func firstKey(n *node) []recordcodec.Value {
	if n.leaf {
		return n.entries[0].Key
	}
	return firstKey(n.children[0])
}
