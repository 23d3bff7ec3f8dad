package ml

// Regressor is the model surface the prediction stage consumes. A
// trained Booster implements it; an ensemble is simply a slice of
// them.
type Regressor interface {
	// PredictRow returns the raw prediction for one feature row, on
	// the training target scale.
	PredictRow(row []float64) float64
}
