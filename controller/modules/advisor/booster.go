package advisor

import (
	"fmt"
)

// BoostedTree contributes its leaf value to one class margin.
type BoostedTree struct {
	Class int    `json:"class"`
	Nodes []Node `json:"nodes"`
}

// Booster is a gradient boosted tree ensemble with one margin per class.
type Booster struct {
	NClasses  int           `json:"n_classes"`
	BaseScore float64       `json:"base_score"`
	Trees     []BoostedTree `json:"trees"`
}

func (b *Booster) validate() error {
	if b.NClasses < 2 {
		return fmt.Errorf("booster declares %d classes", b.NClasses)
	}
	if len(b.Trees) == 0 {
		return fmt.Errorf("booster has no trees")
	}
	for i, bt := range b.Trees {
		if bt.Class < 0 || bt.Class >= b.NClasses {
			return fmt.Errorf("tree %d targets class %d", i, bt.Class)
		}
		t := Tree{Nodes: bt.Nodes}
		if err := t.validate(1); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (b *Booster) Predict(x []float64) int {
	margins := make([]float64, b.NClasses)
	for k := range margins {
		margins[k] = b.BaseScore
	}
	for _, bt := range b.Trees {
		t := Tree{Nodes: bt.Nodes}
		margins[bt.Class] += t.leaf(x, true)[0]
	}
	return argmax(margins)
}
