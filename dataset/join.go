package dataset

import (
	"fmt"
	"math"
)

// joinKey supports the two join shapes this pipeline uses, a single
// identifier key and an (identifier, timestamp) pair. Unused slots
// stay zero; the key count is fixed per join so there is no
// ambiguity.
type joinKey [2]int64

// LeftJoin annotates every row of left with the non-key columns of
// right, matching on the named key columns, which must be int columns
// present in both tables. Left's columns are moved into the result;
// the caller must treat left as consumed.
//
// With required true, a left row without a match is an input error
// naming the key values. Otherwise misses fill float columns with NaN
// and string columns with "", and the miss count is returned for
// quality accounting. Duplicate keys on the right keep the first
// occurrence.
func LeftJoin(left, right *Table, keys []string, required bool) (*Table, int, error) {
	if len(keys) == 0 || len(keys) > 2 {
		return nil, 0, fmt.Errorf("join %s with %s: %d keys given, want 1 or 2", left.Name(), right.Name(), len(keys))
	}
	if right.NumRows() >= math.MaxInt32 {
		return nil, 0, fmt.Errorf("join %s with %s: right table too large", left.Name(), right.Name())
	}

	leftKeys := make([][]int64, len(keys))
	rightKeys := make([][]int64, len(keys))
	for i, name := range keys {
		lk, err := left.Ints(name)
		if err != nil {
			return nil, 0, fmt.Errorf("join: left key: %w", err)
		}
		rk, err := right.Ints(name)
		if err != nil {
			return nil, 0, fmt.Errorf("join: right key: %w", err)
		}
		leftKeys[i] = lk
		rightKeys[i] = rk
	}

	if !required {
		for _, name := range right.ColumnNames() {
			if contains(keys, name) {
				continue
			}
			c, _ := right.Column(name)
			if c.Kind == KindInt {
				return nil, 0, fmt.Errorf("join %s with %s: int column %s cannot fill missing values in an optional join", left.Name(), right.Name(), name)
			}
		}
	}

	index := make(map[joinKey]int32, right.NumRows())
	for i := 0; i < right.NumRows(); i++ {
		var k joinKey
		for j := range rightKeys {
			k[j] = rightKeys[j][i]
		}
		if _, ok := index[k]; !ok {
			index[k] = int32(i)
		}
	}

	n := left.NumRows()
	matches := make([]int32, n)
	misses := 0
	for i := 0; i < n; i++ {
		var k joinKey
		for j := range leftKeys {
			k[j] = leftKeys[j][i]
		}
		ri, ok := index[k]
		if !ok {
			if required {
				return nil, 0, fmt.Errorf("join %s with %s: no match for %s", left.Name(), right.Name(), describeKey(keys, k))
			}
			matches[i] = -1
			misses++
			continue
		}
		matches[i] = ri
	}

	out := NewTable(left.Name())
	for _, name := range left.ColumnNames() {
		c, _ := left.Column(name)
		if err := out.addColumn(*c); err != nil {
			return nil, 0, fmt.Errorf("join: %w", err)
		}
	}
	for _, name := range right.ColumnNames() {
		if contains(keys, name) {
			continue
		}
		c, _ := right.Column(name)
		var err error
		switch c.Kind {
		case KindFloat:
			vals := make([]float64, n)
			for i, m := range matches {
				if m < 0 {
					vals[i] = math.NaN()
				} else {
					vals[i] = c.Floats[m]
				}
			}
			err = out.AddFloats(name, vals)
		case KindInt:
			vals := make([]int64, n)
			for i, m := range matches {
				vals[i] = c.Ints[m]
			}
			err = out.AddInts(name, vals)
		default:
			vals := make([]string, n)
			for i, m := range matches {
				if m >= 0 {
					vals[i] = c.Strings[m]
				}
			}
			err = out.AddStrings(name, vals)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("join: %w", err)
		}
	}
	return out, misses, nil
}

func describeKey(names []string, k joinKey) string {
	s := ""
	for i, name := range names {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", name, k[i])
	}
	return s
}
