package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"enercast/dataset"
)

// unknownCode is assigned to values absent from the fitted domain and
// to empty strings, which the joins use for missing text.
const unknownCode = -1

// Encoder maps text columns onto integer codes. Fit learns a sorted
// value domain per column, Apply replaces each text column with its
// rank codes. The encoder fitted on training data is persisted and
// reused verbatim for the test table, so the same value always gets
// the same code on both sides.
type Encoder struct {
	Domains map[string][]string `json:"domains"`

	codes map[string]map[string]float64
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{Domains: make(map[string][]string)}
}

// Fit learns the sorted value domain of every text column in the
// table. Empty strings mark missing values and stay out of the
// domains. Refitting resets previous state.
func (e *Encoder) Fit(t *dataset.Table) error {
	for _, name := range t.ColumnNames() {
		c, err := t.Column(name)
		if err != nil {
			return err
		}
		if c.Kind != dataset.KindString {
			continue
		}
		seen := make(map[string]struct{})
		for _, v := range c.Strings {
			if v == "" {
				continue
			}
			seen[v] = struct{}{}
		}
		domain := make([]string, 0, len(seen))
		for v := range seen {
			domain = append(domain, v)
		}
		sort.Strings(domain)
		e.Domains[name] = domain
	}
	e.codes = nil
	return nil
}

func (e *Encoder) codeMap(name string) map[string]float64 {
	if e.codes == nil {
		e.codes = make(map[string]map[string]float64)
	}
	m, ok := e.codes[name]
	if !ok {
		m = make(map[string]float64, len(e.Domains[name]))
		for i, v := range e.Domains[name] {
			m[v] = float64(i)
		}
		e.codes[name] = m
	}
	return m
}

// Apply replaces every text column in the table with float64 rank
// codes. Values outside the fitted domain and empty strings encode as
// -1; the per-column count of genuinely unseen values is returned for
// quality accounting. A text column the encoder was never fitted on
// is an error.
func (e *Encoder) Apply(t *dataset.Table) (map[string]int, error) {
	unseen := make(map[string]int)
	for _, name := range t.ColumnNames() {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != dataset.KindString {
			continue
		}
		if _, ok := e.Domains[name]; !ok {
			return nil, fmt.Errorf("encode: column %s not in fitted encoder", name)
		}
		m := e.codeMap(name)
		codes := make([]float64, len(c.Strings))
		for i, v := range c.Strings {
			if v == "" {
				codes[i] = unknownCode
				continue
			}
			code, ok := m[v]
			if !ok {
				unseen[name]++
				codes[i] = unknownCode
				continue
			}
			codes[i] = code
		}
		if err := t.ReplaceFloats(name, codes); err != nil {
			return nil, err
		}
	}
	return unseen, nil
}

// Save writes the fitted domains as JSON.
func (e *Encoder) Save(path string) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("save encoder: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("save encoder: %w", err)
	}
	return nil
}

// LoadEncoder restores a saved encoder.
func LoadEncoder(path string) (*Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}
	var e Encoder
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}
	if e.Domains == nil {
		e.Domains = make(map[string][]string)
	}
	return &e, nil
}
