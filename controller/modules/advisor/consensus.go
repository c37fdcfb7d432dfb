package advisor

import (
	"github.com/pepper-guardian/guardian/controller/fault"
	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

// HealthyLabel is the class presented as a good outcome.
const HealthyLabel = "Healthy"

// Model names in evaluation order. Ties resolve to the earliest.
const (
	RandomForest     = "Random Forest"
	GradientBoosting = "Gradient Boosting"
	SupportVector    = "SVM"
)

var ModelOrder = []string{RandomForest, GradientBoosting, SupportVector}

type Vote struct {
	Model string `json:"model"`
	Label string `json:"label"`
}

// Verdict holds the three individual labels and their consensus.
type Verdict struct {
	Votes     []Vote `json:"votes"`
	Consensus string `json:"consensus"`
}

func (v Verdict) Healthy() bool { return v.Consensus == HealthyLabel }

// Label returns the vote cast by model.
func (v Verdict) Label(model string) string {
	for _, vote := range v.Votes {
		if vote.Model == model {
			return vote.Label
		}
	}
	return ""
}

// Consensus returns the most frequent label. Among equally frequent labels
// the one voted first wins.
func Consensus(labels []string) string {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	best := ""
	for _, l := range labels {
		if best == "" || counts[l] > counts[best] {
			best = l
		}
	}
	return best
}

// Classify runs the three classifiers over a scaled vector and resolves the
// consensus. It does not mutate b.
func Classify(x []float64, b *Bundle) (Verdict, error) {
	if b == nil {
		return Verdict{}, fault.Newf(fault.Configuration, "advisor", "classify", "inference disabled: no classifier bundle")
	}
	if len(x) != FeatureWidth {
		return Verdict{}, fault.Newf(fault.Configuration, "advisor", "classify",
			"feature vector width %d, want %d", len(x), FeatureWidth)
	}
	codes := []int{b.Forest.Predict(x), b.Booster.Predict(x), b.SVM.Predict(x)}
	v := Verdict{Votes: make([]Vote, len(codes))}
	labels := make([]string, len(codes))
	for i, code := range codes {
		label, err := b.Encoder.Decode(code)
		if err != nil {
			return Verdict{}, fault.New(fault.Configuration, "advisor", "decode "+ModelOrder[i], err)
		}
		v.Votes[i] = Vote{Model: ModelOrder[i], Label: label}
		labels[i] = label
	}
	v.Consensus = Consensus(labels)
	return v, nil
}

// Advise vectorizes r, scales it and classifies it.
func (b *Bundle) Advise(r soil.Reading) (Verdict, error) {
	if b == nil {
		return Classify(nil, nil)
	}
	return Classify(b.Vectorize(r), b)
}
