package advisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pepper-guardian/guardian/controller/fault"
)

const (
	ForestFile  = "random_forest.json"
	BoosterFile = "gradient_boosting.json"
	SVMFile     = "svm.json"
	ScalerFile  = "scaler.json"
	EncoderFile = "label_encoder.json"
)

// Bundle is the immutable set of classifiers, scaler and label encoder used
// for inference. It is loaded once and shared read-only between cycles.
type Bundle struct {
	Forest  *Forest
	Booster *Booster
	SVM     *SVM
	Scaler  *Scaler
	Encoder *LabelEncoder
}

type validator interface {
	validate() error
}

// LoadBundle reads all five artifacts from dir. Any missing, corrupt or
// inconsistent artifact fails the whole load with a Configuration failure.
func LoadBundle(dir string) (*Bundle, error) {
	b := &Bundle{
		Forest:  new(Forest),
		Booster: new(Booster),
		SVM:     new(SVM),
		Scaler:  new(Scaler),
		Encoder: new(LabelEncoder),
	}
	artifacts := []struct {
		file string
		v    validator
	}{
		{ForestFile, b.Forest},
		{BoosterFile, b.Booster},
		{SVMFile, b.SVM},
		{ScalerFile, b.Scaler},
		{EncoderFile, b.Encoder},
	}
	for _, a := range artifacts {
		if err := loadArtifact(filepath.Join(dir, a.file), a.v); err != nil {
			return nil, fault.New(fault.Configuration, "advisor", "load "+a.file, err)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func loadArtifact(path string, v validator) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return v.validate()
}

// Validate checks that every model agrees with the label encoder.
func (b *Bundle) Validate() error {
	fail := func(format string, args ...any) error {
		return fault.Newf(fault.Configuration, "advisor", "validate bundle", format, args...)
	}
	if b.Forest == nil || b.Booster == nil || b.SVM == nil || b.Scaler == nil || b.Encoder == nil {
		return fail("incomplete bundle")
	}
	n := len(b.Encoder.Classes)
	if b.Forest.NClasses != n {
		return fail("random forest has %d classes, label encoder %d", b.Forest.NClasses, n)
	}
	if b.Booster.NClasses != n {
		return fail("gradient boosting has %d classes, label encoder %d", b.Booster.NClasses, n)
	}
	if b.SVM.Classes() != n {
		return fail("svm has %d classes, label encoder %d", b.SVM.Classes(), n)
	}
	return nil
}

// Labels returns the known class labels.
func (b *Bundle) Labels() []string {
	return append([]string(nil), b.Encoder.Classes...)
}
