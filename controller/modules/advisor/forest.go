package advisor

import (
	"fmt"
)

// Forest is a random forest classifier. Each leaf holds per-class sample
// counts; the prediction is the argmax of the mean normalized distribution.
type Forest struct {
	NClasses int    `json:"n_classes"`
	Trees    []Tree `json:"trees"`
}

func (f *Forest) validate() error {
	if f.NClasses < 2 {
		return fmt.Errorf("forest declares %d classes", f.NClasses)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.NClasses); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *Forest) Predict(x []float64) int {
	proba := make([]float64, f.NClasses)
	for i := range f.Trees {
		dist := f.Trees[i].leaf(x, false)
		total := 0.0
		for _, c := range dist {
			total += c
		}
		if total == 0 {
			continue
		}
		for k, c := range dist {
			proba[k] += c / total
		}
	}
	return argmax(proba)
}
