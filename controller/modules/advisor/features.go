package advisor

import (
	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

// FeatureWidth is the number of inputs every classifier was fit on.
const FeatureWidth = 6

// FeatureOrder is the classifier input order. Humidity is not a feature.
var FeatureOrder = [FeatureWidth]soil.Field{
	soil.Temperature,
	soil.Moisture,
	soil.Nitrogen,
	soil.Phosphorus,
	soil.Potassium,
	soil.PH,
}

// Vector projects r onto FeatureOrder. Values are not clipped or imputed.
func Vector(r soil.Reading) []float64 {
	v := make([]float64, FeatureWidth)
	for i, f := range FeatureOrder {
		v[i] = r.Get(f)
	}
	return v
}

// Vectorize projects r and applies the bundle's scaler.
func (b *Bundle) Vectorize(r soil.Reading) []float64 {
	return b.Scaler.Transform(Vector(r))
}
