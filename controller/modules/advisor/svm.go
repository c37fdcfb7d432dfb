package advisor

import (
	"fmt"
	"math"
)

const (
	KernelLinear = "linear"
	KernelRBF    = "rbf"
)

// SVM is a one-vs-rest support vector classifier. Class k scores
// coef[k]·x + intercept[k] for the linear kernel, or
// sum_i dual_coef[k][i]·exp(-gamma·|x - sv_i|²) + intercept[k] for rbf.
type SVM struct {
	Kernel         string      `json:"kernel"`
	Gamma          float64     `json:"gamma"`
	Coef           [][]float64 `json:"coef"`
	Intercept      []float64   `json:"intercept"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       [][]float64 `json:"dual_coef"`
}

// Classes is the number of one-vs-rest decision functions.
func (s *SVM) Classes() int { return len(s.Intercept) }

func (s *SVM) validate() error {
	n := len(s.Intercept)
	if n < 2 {
		return fmt.Errorf("svm has %d decision functions", n)
	}
	switch s.Kernel {
	case KernelLinear:
		if len(s.Coef) != n {
			return fmt.Errorf("svm coef rows %d, want %d", len(s.Coef), n)
		}
		for k, row := range s.Coef {
			if len(row) != FeatureWidth {
				return fmt.Errorf("svm coef row %d width %d, want %d", k, len(row), FeatureWidth)
			}
		}
	case KernelRBF:
		if s.Gamma <= 0 {
			return fmt.Errorf("svm gamma %v must be positive", s.Gamma)
		}
		if len(s.SupportVectors) == 0 {
			return fmt.Errorf("svm has no support vectors")
		}
		for i, sv := range s.SupportVectors {
			if len(sv) != FeatureWidth {
				return fmt.Errorf("support vector %d width %d, want %d", i, len(sv), FeatureWidth)
			}
		}
		if len(s.DualCoef) != n {
			return fmt.Errorf("svm dual_coef rows %d, want %d", len(s.DualCoef), n)
		}
		for k, row := range s.DualCoef {
			if len(row) != len(s.SupportVectors) {
				return fmt.Errorf("svm dual_coef row %d width %d, want %d", k, len(row), len(s.SupportVectors))
			}
		}
	default:
		return fmt.Errorf("unsupported svm kernel %q", s.Kernel)
	}
	return nil
}

func (s *SVM) Predict(x []float64) int {
	scores := make([]float64, len(s.Intercept))
	for k := range scores {
		scores[k] = s.Intercept[k]
		switch s.Kernel {
		case KernelLinear:
			for j, w := range s.Coef[k] {
				scores[k] += w * x[j]
			}
		case KernelRBF:
			for i, sv := range s.SupportVectors {
				d := 0.0
				for j := range sv {
					diff := x[j] - sv[j]
					d += diff * diff
				}
				scores[k] += s.DualCoef[k][i] * math.Exp(-s.Gamma*d)
			}
		}
	}
	return argmax(scores)
}
