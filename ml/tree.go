package ml

import "math"

// negInfThreshold stands in for minus infinity on splits that only
// separate missing values. It stays finite so the model survives JSON
// encoding.
const negInfThreshold = -math.MaxFloat64

// treeNode is one node in a flat tree array. Internal nodes route on
// Feature and Threshold, leaves carry the additive Value. Children
// are indices into the same array and the root is index 0.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

// regTree is one boosted regression tree. Leaf values already include
// the learning-rate shrinkage, so a model prediction is the base
// score plus the sum of tree outputs.
type regTree struct {
	Nodes []treeNode `json:"nodes"`
}

// predictRow walks the tree for one feature row. Missing values route
// to the left child, matching the training-side convention that the
// missing bin sorts lowest.
func (t *regTree) predictRow(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := row[n.Feature]
		if math.IsNaN(v) || v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// depth returns the maximum node depth, for logging.
func (t *regTree) depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := &t.Nodes[i]
		if n.Leaf {
			return d
		}
		l := walk(n.Left, d+1)
		r := walk(n.Right, d+1)
		if l > r {
			return l
		}
		return r
	}
	return walk(0, 1)
}
