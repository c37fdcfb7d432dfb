package advisor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pepper-guardian/guardian/controller/fault"
	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

var testClasses = []string{"Deficient", "Healthy", "Excess"}

func oneHot(n, k int, v float64) []float64 {
	out := make([]float64, n)
	out[k] = v
	return out
}

// fixedBundle returns a bundle whose models always vote rf, gb and svm.
func fixedBundle(rf, gb, svm int) *Bundle {
	n := len(testClasses)
	return &Bundle{
		Forest: &Forest{NClasses: n, Trees: []Tree{
			{Nodes: []Node{{Left: -1, Right: -1, Value: oneHot(n, rf, 7)}}},
		}},
		Booster: &Booster{NClasses: n, BaseScore: 0.5, Trees: []BoostedTree{
			{Class: gb, Nodes: []Node{{Left: -1, Right: -1, Value: []float64{1}}}},
		}},
		SVM: &SVM{
			Kernel:    KernelLinear,
			Coef:      [][]float64{make([]float64, 6), make([]float64, 6), make([]float64, 6)},
			Intercept: oneHot(n, svm, 1),
		},
		Scaler:  &Scaler{Mean: make([]float64, 6), Scale: []float64{1, 1, 1, 1, 1, 1}},
		Encoder: &LabelEncoder{Classes: testClasses},
	}
}

func TestVectorOrderExcludesHumidity(t *testing.T) {
	r := soil.Reading{Temperature: 1, Moisture: 2, Nitrogen: 3, Phosphorus: 4, Potassium: 5, PH: 6, Humidity: 7}
	v := Vector(r)
	want := []float64{1, 2, 3, 4, 5, 6}
	if len(v) != FeatureWidth {
		t.Fatalf("vector width %d, want %d", len(v), FeatureWidth)
	}
	for i := range want {
		if v[i] != want[i] {
			t.Errorf("v[%d] = %v, want %v", i, v[i], want[i])
		}
	}

	r.Humidity = 1e9
	for i, x := range Vector(r) {
		if x != want[i] {
			t.Errorf("humidity leaked into feature %d", i)
		}
	}
	if n := len(Vector(soil.Reading{})); n != FeatureWidth {
		t.Errorf("zero reading width %d", n)
	}
}

func TestScalerTransform(t *testing.T) {
	s := &Scaler{
		Mean:  []float64{25, 60, 175, 35, 225, 6.5},
		Scale: []float64{5, 10, 25, 0, 50, 0.5},
	}
	got := s.Transform([]float64{30, 40, 400, 40, 225, 5.5})
	want := []float64{1, -2, 9, 5, 0, -2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scaled[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConsensusTieGoesToRandomForest(t *testing.T) {
	b := fixedBundle(2, 0, 1)
	x := make([]float64, FeatureWidth)
	for i := 0; i < 20; i++ {
		v, err := Classify(x, b)
		if err != nil {
			t.Fatal(err)
		}
		if v.Consensus != "Excess" {
			t.Fatalf("run %d: consensus %q, want random forest label Excess", i, v.Consensus)
		}
		if v.Label(RandomForest) != "Excess" || v.Label(GradientBoosting) != "Deficient" || v.Label(SupportVector) != "Healthy" {
			t.Fatalf("unexpected votes %+v", v.Votes)
		}
	}
}

func TestConsensusMajority(t *testing.T) {
	cases := []struct {
		labels []string
		want   string
	}{
		{[]string{"Healthy", "Healthy", "Deficient"}, "Healthy"},
		{[]string{"Deficient", "Healthy", "Healthy"}, "Healthy"},
		{[]string{"Healthy", "Deficient", "Healthy"}, "Healthy"},
		{[]string{"Excess", "Excess", "Excess"}, "Excess"},
		{[]string{"A", "B", "C"}, "A"},
		{[]string{"C", "B", "A"}, "C"},
	}
	for _, c := range cases {
		if got := Consensus(c.labels); got != c.want {
			t.Errorf("Consensus(%v) = %q, want %q", c.labels, got, c.want)
		}
	}

	v, err := Classify(make([]float64, FeatureWidth), fixedBundle(1, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if v.Consensus != "Healthy" || !v.Healthy() {
		t.Errorf("verdict %+v should be Healthy", v)
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	if _, err := Classify(make([]float64, 7), fixedBundle(0, 0, 0)); fault.KindOf(err) != fault.Configuration {
		t.Errorf("width 7: expected configuration failure, got %v", err)
	}
	if _, err := Classify(make([]float64, FeatureWidth), nil); fault.KindOf(err) != fault.Configuration {
		t.Errorf("nil bundle: expected configuration failure, got %v", err)
	}
	var b *Bundle
	if _, err := b.Advise(soil.Reading{}); fault.KindOf(err) != fault.Configuration {
		t.Errorf("nil bundle advise: expected configuration failure, got %v", err)
	}
}

func TestTreeSplitRules(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 2, Threshold: 1.5, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: []float64{1, 0}},
		{Left: -1, Right: -1, Value: []float64{0, 1}},
	}}
	x := []float64{0, 0, 1.5, 0, 0, 0}
	if got := tree.leaf(x, false); got[0] != 1 {
		t.Error("x <= threshold should go left")
	}
	if got := tree.leaf(x, true); got[1] != 1 {
		t.Error("x < threshold should go right at equality")
	}
	if err := tree.validate(2); err != nil {
		t.Errorf("validate: %v", err)
	}

	loop := Tree{Nodes: []Node{{Feature: 0, Left: 0, Right: 0}}}
	if loop.validate(2) == nil {
		t.Error("self-referencing node should be rejected")
	}
}

func TestForestAveragesNormalizedLeaves(t *testing.T) {
	f := &Forest{NClasses: 2, Trees: []Tree{
		{Nodes: []Node{{Left: -1, Value: []float64{90, 10}}}},
		{Nodes: []Node{{Left: -1, Value: []float64{0, 2}}}},
		{Nodes: []Node{{Left: -1, Value: []float64{0, 3}}}},
	}}
	if got := f.Predict(make([]float64, FeatureWidth)); got != 1 {
		t.Errorf("Predict = %d, want 1", got)
	}
}

func TestSVMKernels(t *testing.T) {
	linear := &SVM{
		Kernel:    KernelLinear,
		Coef:      [][]float64{{1, 0, 0, 0, 0, 0}, {-1, 0, 0, 0, 0, 0}},
		Intercept: []float64{0, 0},
	}
	if err := linear.validate(); err != nil {
		t.Fatal(err)
	}
	if linear.Predict([]float64{2, 0, 0, 0, 0, 0}) != 0 || linear.Predict([]float64{-2, 0, 0, 0, 0, 0}) != 1 {
		t.Error("linear decision function")
	}

	rbf := &SVM{
		Kernel:         KernelRBF,
		Gamma:          1,
		SupportVectors: [][]float64{{0, 0, 0, 0, 0, 0}, {3, 3, 3, 3, 3, 3}},
		DualCoef:       [][]float64{{1, -1}, {-1, 1}},
		Intercept:      []float64{0, 0},
	}
	if err := rbf.validate(); err != nil {
		t.Fatal(err)
	}
	if rbf.Predict([]float64{0.1, 0, 0, 0, 0, 0}) != 0 || rbf.Predict([]float64{3, 3, 3, 3, 3, 2.9}) != 1 {
		t.Error("rbf decision function")
	}

	if (&SVM{Kernel: "poly", Intercept: []float64{0, 0}}).validate() == nil {
		t.Error("unsupported kernel should be rejected")
	}
}

func writeBundle(t *testing.T, b *Bundle) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]interface{}{
		ForestFile:  b.Forest,
		BoosterFile: b.Booster,
		SVMFile:     b.SVM,
		ScalerFile:  b.Scaler,
		EncoderFile: b.Encoder,
	}
	for name, v := range files {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadBundle(t *testing.T) {
	dir := writeBundle(t, fixedBundle(1, 1, 1))
	b, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	v, err := b.Advise(soil.Reading{Temperature: 28, PH: 6.5})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Healthy() {
		t.Errorf("verdict %+v", v)
	}
	if len(b.Labels()) != 3 {
		t.Errorf("labels %v", b.Labels())
	}
}

func TestLoadBundleAllOrNothing(t *testing.T) {
	for _, missing := range []string{ForestFile, BoosterFile, SVMFile, ScalerFile, EncoderFile} {
		dir := writeBundle(t, fixedBundle(0, 0, 0))
		if err := os.Remove(filepath.Join(dir, missing)); err != nil {
			t.Fatal(err)
		}
		b, err := LoadBundle(dir)
		if b != nil || fault.KindOf(err) != fault.Configuration {
			t.Errorf("without %s: got bundle=%v err=%v", missing, b != nil, err)
		}
	}

	dir := writeBundle(t, fixedBundle(0, 0, 0))
	if err := os.WriteFile(filepath.Join(dir, SVMFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBundle(dir); fault.KindOf(err) != fault.Configuration {
		t.Errorf("corrupt svm: expected configuration failure, got %v", err)
	}

	bad := fixedBundle(0, 0, 0)
	bad.Scaler.Mean = bad.Scaler.Mean[:5]
	if _, err := LoadBundle(writeBundle(t, bad)); fault.KindOf(err) != fault.Configuration {
		t.Errorf("5-wide scaler: expected configuration failure, got %v", err)
	}

	mismatch := fixedBundle(0, 0, 0)
	mismatch.Encoder.Classes = []string{"Deficient", "Healthy"}
	if _, err := LoadBundle(writeBundle(t, mismatch)); fault.KindOf(err) != fault.Configuration {
		t.Errorf("class count mismatch: expected configuration failure, got %v", err)
	}
}
