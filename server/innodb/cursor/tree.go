// Package cursor implements the tree cursor: binary search within a page,
// root-to-leaf descent, and leaf sibling walk (spec §2, L3). The physical
// buffer pool and page byte layout are out of scope (spec.md §1); this
// package works over an in-memory node representation whose nodes are
// linked by plain Go pointers (NodeRef is *node), so the descent and
// latching discipline is real even though physical I/O is not.
package cursor

import (
	"github.com/ixrow/storage-core/server/innodb/latch"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// Order bounds the number of entries a node holds before it must split.
// Kept small so split/merge behavior is easy to exercise in tests.
const DefaultOrder = 4

// NodeRef is an opaque reference to one tree page, returned by Descend/
// DescendPessimistic/FirstLeaf/Next and consumed by InsertAt/ReplaceAt/
// RemoveAt/SearchInLeaf/NodeEntries. Callers outside this package carry it
// around without ever naming its underlying representation.
type NodeRef = *node

// Entry is one leaf-level (key, record) pair.
type Entry struct {
	Key    []recordcodec.Value
	Record recordcodec.Record
}

// node is one B+tree page. Internal nodes hold separator keys and child
// pointers (I4: separator keys ascending, child ranges contained in the
// separator interval); leaf nodes hold Entries in ascending key order (I4)
// and are doubly linked to their siblings (I5).
type node struct {
	latch    *latch.Latch
	leaf     bool
	keys     [][]recordcodec.Value // internal: separators; leaf: unused, Entries carry keys
	children []*node
	entries  []Entry
	next     *node
	prev     *node
}

func newLeaf() *node {
	return &node{latch: latch.NewLatch(), leaf: true}
}

func newInternal() *node {
	return &node{latch: latch.NewLatch(), leaf: false}
}

// Tree is a clustered or secondary B+tree index. Order bounds fan-out and
// leaf capacity.
type Tree struct {
	root  *node
	Order int
	index *latch.IndexLatch
}

// NewTree creates an empty tree with one empty leaf as root.
func NewTree(order int) *Tree {
	if order < 3 {
		order = DefaultOrder
	}
	return &Tree{root: newLeaf(), Order: order, index: latch.NewIndexLatch()}
}

// SearchMode names the comparison a caller asks for, per spec §6
// (cursor.search(key, mode ∈ {GE, LE, EXACT}, latch)). Descend does not
// branch on it: every mode lands on the first entry whose key is >= the
// search key, with Found reporting an exact match, so ModeLE does not
// step back to a preceding smaller entry.
type SearchMode int

const (
	ModeExact SearchMode = iota
	ModeGE
	ModeLE
)

// Position names where a descent landed: the latched leaf, the index of
// the matching (or insertion) point within it, and the savepoint stack of
// every ancestor latch acquired along the way.
type Position struct {
	Leaf       *node
	Index      int
	Found      bool
	Savepoints *latch.Stack
}

// Descend performs the root-to-leaf walk spec §4.1 step 1 describes:
// S-latch every internal page, X-latch (exclusive=true) or S-latch
// (exclusive=false) the destined leaf only.
func (t *Tree) Descend(key []recordcodec.Value, mode SearchMode, exclusive bool) Position {
	stack := latch.NewStack()
	cur := t.root
	cur.latch.RLock()
	stack.PushShared(cur.latch)

	for !cur.leaf {
		idx := searchInternal(cur.keys, key)
		child := cur.children[idx]
		child.latch.RLock()
		stack.PushShared(child.latch)
		cur = child
	}

	// Drop the leaf's shared hold and re-acquire in the requested mode;
	// this mirrors real engines briefly coupling latches during descent.
	stack.ReleaseAbove(stack.Len() - 2)
	if exclusive {
		cur.latch.Lock()
	} else {
		cur.latch.RLock()
	}

	idx, found := searchLeaf(cur.entries, key)
	return Position{Leaf: cur, Index: idx, Found: found, Savepoints: stack}
}

// Release releases every latch a Position holds, including the leaf's own
// (which Descend re-acquired outside the tracked stack).
func (p Position) Release(exclusive bool) {
	if exclusive {
		p.Leaf.latch.Unlock()
	} else {
		p.Leaf.latch.RUnlock()
	}
	p.Savepoints.ReleaseAll()
}

func searchInternal(keys [][]recordcodec.Value, key []recordcodec.Value) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if recordcodec.CompareKeys(keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// SearchInLeaf finds key's position within an already-latched leaf,
// without touching any latch itself. Used by pessimistic operations that
// reach the leaf via DescendPessimistic instead of Descend.
func SearchInLeaf(n *node, key []recordcodec.Value) (int, bool) {
	return searchLeaf(n.entries, key)
}

func searchLeaf(entries []Entry, key []recordcodec.Value) (int, bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		c := recordcodec.CompareKeys(entries[mid].Key, key)
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(entries) && recordcodec.CompareKeys(entries[lo].Key, key) == 0 {
		return lo, true
	}
	return lo, false
}

// Next returns the leaf's right sibling, or nil at the end of the tree
// (spec §2 L3: "leaf sibling walk").
func (n *node) Next() *node { return n.next }

// Entries exposes the entries of the leaf behind a Position for callers in
// clust/fk/bulkload that need direct entry access.
func (p Position) Entries() []Entry { return p.Leaf.entries }

// FirstLeaf returns the leftmost leaf of the tree for a full ascending scan
// (used by the bulk builder's clustered-index scan). It takes no latch;
// callers latch the leaf themselves with LockShared.
func (t *Tree) FirstLeaf() *node {
	n := t.root
	for !n.leaf {
		n = n.children[0]
	}
	return n
}

// NodeEntries exposes a node's entries for scan callers walking sibling
// links directly (bypassing Descend) once positioned via FirstLeaf/Next.
func NodeEntries(n *node) []Entry { return n.entries }

// LockShared/UnlockShared let scan callers latch a node reached via
// FirstLeaf/Next without going through Descend.
func LockShared(n *node)   { n.latch.RLock() }
func UnlockShared(n *node) { n.latch.RUnlock() }
