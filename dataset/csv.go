package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultTimeLayout matches the source export format of the meter and
// weather files.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// timeCacheSize bounds the timestamp parse cache. Hourly data repeats
// the same timestamp text across every building at a site, so the hit
// rate is close to 1 on the large files.
const timeCacheSize = 16384

// ReadOptions declares the schema of a CSV file. Columns not listed
// in IntCols, TimeCols or StringCols are parsed as float64, with the
// empty string read as NaN.
type ReadOptions struct {
	// IntCols are identifier columns parsed as int64. Empty values
	// are an input error.
	IntCols []string
	// TimeCols are parsed with TimeLayout and stored as int64 unix
	// seconds (UTC).
	TimeCols []string
	// StringCols pass through as text.
	StringCols []string
	// TimeLayout overrides DefaultTimeLayout when set.
	TimeLayout string
	// MaxRows stops reading after this many data rows when > 0.
	// Used for sampled development runs.
	MaxRows int
}

type colKind int

const (
	parseFloat colKind = iota
	parseInt
	parseTime
	parseString
)

// ReadCSV loads a delimiter-separated file with a header row into a
// Table. A UTF-8 byte order mark is stripped when present. The table
// name is the file's base name.
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	layout := opts.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: header: %w", path, err)
	}
	names := make([]string, len(header))
	kinds := make([]colKind, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		names[i] = name
		switch {
		case contains(opts.IntCols, name):
			kinds[i] = parseInt
		case contains(opts.TimeCols, name):
			kinds[i] = parseTime
		case contains(opts.StringCols, name):
			kinds[i] = parseString
		default:
			kinds[i] = parseFloat
		}
	}
	for _, want := range [][]string{opts.IntCols, opts.TimeCols, opts.StringCols} {
		for _, name := range want {
			if !contains(names, name) {
				return nil, fmt.Errorf("read %s: %w: %s", path, ErrMissingColumn, name)
			}
		}
	}

	floats := make(map[int][]float64)
	ints := make(map[int][]int64)
	strs := make(map[int][]string)
	for i, k := range kinds {
		switch k {
		case parseInt, parseTime:
			ints[i] = make([]int64, 0, 1024)
		case parseString:
			strs[i] = make([]string, 0, 1024)
		default:
			floats[i] = make([]float64, 0, 1024)
		}
	}

	timeCache, err := lru.New[string, int64](timeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: time cache: %w", path, err)
	}

	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: row %d: %w", path, row+1, err)
		}
		row++
		for i, field := range rec {
			switch kinds[i] {
			case parseInt:
				v, err := strconv.ParseInt(field, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("read %s: row %d, column %s: %w", path, row, names[i], err)
				}
				ints[i] = append(ints[i], v)
			case parseTime:
				v, ok := timeCache.Get(field)
				if !ok {
					ts, err := time.Parse(layout, field)
					if err != nil {
						return nil, fmt.Errorf("read %s: row %d, column %s: %w", path, row, names[i], err)
					}
					v = ts.Unix()
					timeCache.Add(field, v)
				}
				ints[i] = append(ints[i], v)
			case parseString:
				strs[i] = append(strs[i], field)
			default:
				if field == "" {
					floats[i] = append(floats[i], math.NaN())
					continue
				}
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("read %s: row %d, column %s: %w", path, row, names[i], err)
				}
				floats[i] = append(floats[i], v)
			}
		}
		if opts.MaxRows > 0 && row >= opts.MaxRows {
			break
		}
	}

	t := NewTable(filepath.Base(path))
	for i, name := range names {
		var err error
		switch kinds[i] {
		case parseInt, parseTime:
			err = t.AddInts(name, ints[i])
		case parseString:
			err = t.AddStrings(name, strs[i])
		default:
			err = t.AddFloats(name, floats[i])
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return t, nil
}

// WriteSubmission writes a two-column prediction file in the given
// row order. Values are printed with exactly two decimal places.
func WriteSubmission(path, idName, valueName string, ids []int64, values []float64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("write %s: %d ids but %d values", path, len(ids), len(values))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{idName, valueName}); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	rec := make([]string, 2)
	for i, id := range ids {
		rec[0] = strconv.FormatInt(id, 10)
		rec[1] = strconv.FormatFloat(values[i], 'f', 2, 64)
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("write %s: row %d: %w", path, i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
