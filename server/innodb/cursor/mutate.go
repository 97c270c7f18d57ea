package cursor

import (
	"github.com/ixrow/storage-core/server/innodb/latch"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// Path is a root-to-leaf walk with every node exclusively latched, used by
// pessimistic operations that may need to split or merge along the way
// (spec §4.1 step 4: "restart the descent holding an X-latch on the whole
// path").
type Path struct {
	Nodes []*node
}

// DescendPessimistic X-latches every node from root to the destined leaf.
func (t *Tree) DescendPessimistic(key []recordcodec.Value) Path {
	cur := t.root
	cur.latch.Lock()
	nodes := []*node{cur}
	for !cur.leaf {
		idx := searchInternal(cur.keys, key)
		child := cur.children[idx]
		child.latch.Lock()
		nodes = append(nodes, child)
		cur = child
	}
	return Path{Nodes: nodes}
}

// Release unlatches every node in the path, leaf-first.
func (p Path) Release() {
	for i := len(p.Nodes) - 1; i >= 0; i-- {
		p.Nodes[i].latch.Unlock()
	}
}

// Leaf returns the destined leaf of a pessimistic path.
func (p Path) Leaf() *node { return p.Nodes[len(p.Nodes)-1] }

// HasRoom reports whether the leaf has space for one more entry without
// splitting.
func (t *Tree) HasRoom(n *node) bool {
	return len(n.entries) < t.Order
}

// InsertAt inserts e at position idx in an already-latched leaf. The
// caller (clust) is responsible for having located idx via Descend/search
// and for having confirmed HasRoom; InsertAt itself does not split.
func InsertAt(n *node, idx int, e Entry) {
	n.entries = append(n.entries, Entry{})
	copy(n.entries[idx+1:], n.entries[idx:])
	n.entries[idx] = e
}

// ReplaceAt overwrites the record at idx (update-in-place).
func ReplaceAt(n *node, idx int, rec recordcodec.Record) {
	n.entries[idx].Record = rec
}

// RemoveAt physically removes the entry at idx (pessimistic delete).
func RemoveAt(n *node, idx int) {
	n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
}

// SplitLeafAndInsert inserts e into a full leaf by splitting it in half and
// propagating a new separator key upward (spec §4.1 step 4), growing the
// root if the split reaches it. Returns the separator key that was pushed
// up, for callers (e.g. tests) that want to observe it.
func (t *Tree) SplitLeafAndInsert(path Path, idx int, e Entry) []recordcodec.Value {
	leaf := path.Leaf()
	InsertAt(leaf, idx, e)

	mid := len(leaf.entries) / 2
	right := newLeaf()
	right.entries = append(right.entries, leaf.entries[mid:]...)
	leaf.entries = leaf.entries[:mid]

	right.next = leaf.next
	if right.next != nil {
		right.next.prev = right
	}
	leaf.next = right
	right.prev = leaf

	sep := right.entries[0].Key
	t.propagateSplit(path.Nodes[:len(path.Nodes)-1], leaf, right, sep)
	return sep
}

// propagateSplit inserts (sep, right) into the parent named by the last
// element of ancestors, splitting that internal node too if it is full,
// recursing up to the root and growing the tree by one level if the root
// itself splits.
func (t *Tree) propagateSplit(ancestors []*node, left, right *node, sep []recordcodec.Value) {
	if len(ancestors) == 0 {
		newRoot := newInternal()
		newRoot.keys = [][]recordcodec.Value{sep}
		newRoot.children = []*node{left, right}
		t.root = newRoot
		return
	}

	parent := ancestors[len(ancestors)-1]
	idx := searchInternal(parent.keys, sep)
	parent.keys = append(parent.keys, nil)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = sep
	parent.children = append(parent.children, nil)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = right

	if len(parent.children) <= t.Order {
		return
	}

	// Parent overflowed: split it too.
	midKey := len(parent.keys) / 2
	newRight := newInternal()
	newRight.keys = append(newRight.keys, parent.keys[midKey+1:]...)
	newRight.children = append(newRight.children, parent.children[midKey+1:]...)
	upSep := parent.keys[midKey]
	parent.keys = parent.keys[:midKey]
	parent.children = parent.children[:midKey+1]

	t.propagateSplit(ancestors[:len(ancestors)-1], parent, newRight, upSep)
}

// Height reports the number of levels from root to leaf, for tests.
func (t *Tree) Height() int {
	n := t.root
	h := 1
	for !n.leaf {
		h++
		n = n.children[0]
	}
	return h
}

// RootLatch exposes the tree-level index latch (distinct from any single
// node's page latch) for operations needing "update" mode across a
// structural change.
func (t *Tree) RootLatch() *latch.IndexLatch { return t.index }
