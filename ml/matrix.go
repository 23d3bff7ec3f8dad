package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"enercast/dataset"
)

// TableMatrix converts a fully numeric table into a dense feature
// matrix plus its column names. Int columns widen to float64. A text
// column is an error; the encoding stage must run first.
func TableMatrix(t *dataset.Table) (*mat.Dense, []string, error) {
	rows, cols := t.NumRows(), t.NumCols()
	if rows == 0 || cols == 0 {
		return nil, nil, fmt.Errorf("matrix: table %s is empty", t.Name())
	}
	names := t.ColumnNames()
	data := make([]float64, rows*cols)
	for j, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, nil, err
		}
		switch c.Kind {
		case dataset.KindFloat:
			for i, v := range c.Floats {
				data[i*cols+j] = v
			}
		case dataset.KindInt:
			for i, v := range c.Ints {
				data[i*cols+j] = float64(v)
			}
		default:
			return nil, nil, fmt.Errorf("matrix: table %s: column %s holds text, encode it before training", t.Name(), name)
		}
	}
	return mat.NewDense(rows, cols, data), names, nil
}

// RowSubset copies the given rows into a new matrix. Returns nil for
// an empty index set.
func RowSubset(X *mat.Dense, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}
	_, d := X.Dims()
	out := mat.NewDense(len(idx), d, nil)
	row := make([]float64, d)
	for k, i := range idx {
		mat.Row(row, i, X)
		out.SetRow(k, row)
	}
	return out
}

// Subset copies the given elements of a vector.
func Subset(xs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = xs[i]
	}
	return out
}
