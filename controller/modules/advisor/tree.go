package advisor

import (
	"fmt"
)

// Node is one entry of a flattened decision tree. Leaves have Left == -1.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// Tree is a flattened binary decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) validate(valueWidth int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left == -1 {
			if len(n.Value) != valueWidth {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), valueWidth)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= FeatureWidth {
			return fmt.Errorf("node %d splits on feature %d", i, n.Feature)
		}
		// children always follow their parent, so walks terminate
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children %d/%d outside tree of %d", i, n.Left, n.Right, len(t.Nodes))
		}
	}
	return nil
}

// leaf walks x to a leaf. With strict set the split is x < threshold,
// otherwise x <= threshold.
func (t *Tree) leaf(x []float64, strict bool) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n.Value
		}
		v := x[n.Feature]
		if v < n.Threshold || (!strict && v == n.Threshold) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// argmax returns the first index holding the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
