package fk

// CascadeOp names what a cascade step did to the row it touched, so a
// later step in the same chain can ask "has this table already been
// updated" rather than just "how deep are we" (spec §4.3 "refuses any
// path in which the same table would be updated (not deleted) twice").
type CascadeOp int

const (
	CascadeDelete CascadeOp = iota
	CascadeUpdate
)

// CascadeNode is one link in the cascade's ancestor chain (row0ins.cc
// row_ins_cascade_n_ancestors): not a flat depth counter but an actual
// linked list the checker walks to both count depth and detect the
// same-table-updated-twice cycle.
type CascadeNode struct {
	Table  string
	Op     CascadeOp
	Parent *CascadeNode
}

// depth counts this node and every ancestor; nil has depth 0.
func (n *CascadeNode) depth() int {
	d := 0
	for c := n; c != nil; c = c.Parent {
		d++
	}
	return d
}

// hasUpdateOf reports whether table was already the target of an UPDATE
// cascade step somewhere up the chain.
func (n *CascadeNode) hasUpdateOf(table string) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Op == CascadeUpdate && c.Table == table {
			return true
		}
	}
	return false
}
