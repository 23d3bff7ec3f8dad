package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PredictEnsemble applies each model to X row by row, inverts the
// log1p target transform per model with expm1, averages the restored
// values across models, clamps negatives to exactly zero and rounds
// to two decimal places. Rows are streamed, so the only allocation
// besides the result is one row buffer.
func PredictEnsemble(models []Regressor, X *mat.Dense) ([]float64, error) {
	if len(models) == 0 {
		return nil, errors.New("predict: no models")
	}
	if X == nil {
		return nil, errors.New("predict: nil feature matrix")
	}
	n, d := X.Dims()
	out := make([]float64, n)
	row := make([]float64, d)
	scale := 1 / float64(len(models))
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		sum := 0.0
		for _, m := range models {
			sum += math.Expm1(m.PredictRow(row))
		}
		v := sum * scale
		if v < 0 {
			v = 0
		}
		out[i] = math.Round(v*100) / 100
	}
	return out, nil
}
