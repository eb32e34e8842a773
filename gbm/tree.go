package gbm

import (
	"math"
	"sort"
)

// NodeType distinguishes leaves from the two kinds of split.
type NodeType int

const (
	LeafNode NodeType = iota
	NumericNode
	CategoricalNode
)

// Node is one tree node. Children are indices into Tree.Nodes.
type Node struct {
	ID        int      `json:"id"`
	Type      NodeType `json:"type"`
	Feature   int      `json:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	// LeftLevels holds the sorted category indices sent left.
	LeftLevels []int   `json:"left_levels,omitempty"`
	NALeft     bool    `json:"na_left,omitempty"`
	Left       int     `json:"left"`
	Right      int     `json:"right"`
	Value      float64 `json:"value"`
	Count      int     `json:"count"`
	// Improvement is the squared-error reduction of the split.
	Improvement float64 `json:"improvement,omitempty"`
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Type == LeafNode
}

// Tree is one regression tree fitted for class Class of an iteration.
// Leaf values already include the learning rate.
type Tree struct {
	Class int    `json:"class"`
	Nodes []Node `json:"nodes"`
}

// Score walks the tree for one row of predictor values; categorical values
// are domain indices and NaN is missing.
func (t *Tree) Score(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	id := 0
	for {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		if n.goesLeft(row[n.Feature]) {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}

func (n *Node) goesLeft(x float64) bool {
	if math.IsNaN(x) {
		return n.NALeft
	}
	if n.Type == CategoricalNode {
		level := int(x)
		i := sort.SearchInts(n.LeftLevels, level)
		return i < len(n.LeftLevels) && n.LeftLevels[i] == level
	}
	return x <= n.Threshold
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

// NumLeaves counts the leaves.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}
