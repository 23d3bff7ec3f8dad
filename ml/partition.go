package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StratifiedSplit partitions row indices into train and validation
// sets at the given fraction, preserving the target distribution by
// splitting inside quantile strata rather than over a flat shuffle.
// The index sets are disjoint, cover every row, and are reproducible
// for a fixed seed.
func StratifiedSplit(y []float64, fraction float64, strata int, seed int64) (train, val []int, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("partition: fraction %v outside (0,1)", fraction)
	}
	if strata < 1 {
		return nil, nil, fmt.Errorf("partition: strata must be at least 1, got %d", strata)
	}
	if len(y) == 0 {
		return nil, nil, fmt.Errorf("partition: empty target")
	}
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, nil, fmt.Errorf("partition: target contains NaN at row %d", i)
		}
	}

	sorted := append([]float64(nil), y...)
	sort.Float64s(sorted)
	edges := make([]float64, 0, strata-1)
	for k := 1; k < strata; k++ {
		q := stat.Quantile(float64(k)/float64(strata), stat.Empirical, sorted, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	buckets := make([][]int, len(edges)+1)
	for i, v := range y {
		b := sort.SearchFloat64s(edges, v)
		buckets[b] = append(buckets[b], i)
	}

	rng := rand.New(rand.NewSource(seed))
	for _, bucket := range buckets {
		rng.Shuffle(len(bucket), func(i, j int) {
			bucket[i], bucket[j] = bucket[j], bucket[i]
		})
		cut := int(math.Round(fraction * float64(len(bucket))))
		train = append(train, bucket[:cut]...)
		val = append(val, bucket[cut:]...)
	}
	sort.Ints(train)
	sort.Ints(val)
	return train, val, nil
}
