package ml

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/scigo/metrics"
	"gonum.org/v1/gonum/mat"
)

// Metrics summarizes model quality on a validation set.
type Metrics struct {
	RMSE float64
	MAE  float64
	R2   float64
}

func toVecs(truth, pred []float64) (*mat.VecDense, *mat.VecDense, error) {
	if len(truth) != len(pred) {
		return nil, nil, fmt.Errorf("metrics: %d truths but %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return nil, nil, fmt.Errorf("metrics: empty input")
	}
	t := mat.NewVecDense(len(truth), nil)
	p := mat.NewVecDense(len(pred), nil)
	for i := range truth {
		t.SetVec(i, truth[i])
		p.SetVec(i, pred[i])
	}
	return t, p, nil
}

// RMSE computes the root mean squared error.
func RMSE(truth, pred []float64) (float64, error) {
	t, p, err := toVecs(truth, pred)
	if err != nil {
		return 0, err
	}
	mse, err := metrics.MSE(t, p)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// Summary computes RMSE, MAE and R2 for a prediction set.
func Summary(truth, pred []float64) (Metrics, error) {
	t, p, err := toVecs(truth, pred)
	if err != nil {
		return Metrics{}, err
	}
	mse, err := metrics.MSE(t, p)
	if err != nil {
		return Metrics{}, err
	}
	mae, err := metrics.MAE(t, p)
	if err != nil {
		return Metrics{}, err
	}
	r2, err := metrics.R2Score(t, p)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{RMSE: math.Sqrt(mse), MAE: mae, R2: r2}, nil
}
