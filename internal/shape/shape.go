// Package shape converts lookup rows into the response payload and renders
// the canonical payload bytes for the wire.
package shape

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/apien/apien/internal/query"
	"github.com/apien/apien/internal/request"
)

// Tuple is one flat fact: country code, indicator id, year and value. The
// value is null when the store holds no measurement.
type Tuple [4]*string

// Tree is the structured shape: three levels keyed by the dimensions of the
// requested permutation.
type Tree map[string]map[string]map[string]*string

// Payload is the response body before encoding. IndicatorValue holds either
// []Tuple or Tree.
type Payload struct {
	IndicatorValue any               `json:"indicator_value"`
	CountryName    map[string]string `json:"country_name"`
	IndicatorName  map[string]string `json:"indicator_name"`
}

// Empty reports whether the payload carries no facts.
func (p *Payload) Empty() bool {
	switch v := p.IndicatorValue.(type) {
	case []Tuple:
		return len(v) == 0
	case Tree:
		return len(v) == 0
	default:
		return true
	}
}

// Shape builds the payload for rows. A flat structure keeps store order; a
// nested structure is keyed by the dimensions of the permutation in order.
// Name maps are deduplicated by key in both shapes. Names come from the
// store as entered, so they are NFC-normalized to keep equal names
// byte-identical in the payload.
func Shape(rows []query.Row, structure request.Structure) (*Payload, error) {
	p := &Payload{
		CountryName:   make(map[string]string),
		IndicatorName: make(map[string]string),
	}
	for _, r := range rows {
		p.CountryName[r.CountryCode] = norm.NFC.String(r.CountryName)
		p.IndicatorName[r.IndicatorID] = norm.NFC.String(r.IndicatorName)
	}

	if !structure.Nested() {
		tuples := make([]Tuple, 0, len(rows))
		for _, r := range rows {
			tuples = append(tuples, Tuple{strPtr(r.CountryCode), strPtr(r.IndicatorID), strPtr(r.Year), r.Value})
		}
		p.IndicatorValue = tuples
		return p, nil
	}

	order, err := structure.Order()
	if err != nil {
		return nil, err
	}
	tree := make(Tree)
	for _, r := range rows {
		k0, k1, k2 := key(r, order[0]), key(r, order[1]), key(r, order[2])
		level1, ok := tree[k0]
		if !ok {
			level1 = make(map[string]map[string]*string)
			tree[k0] = level1
		}
		level2, ok := level1[k1]
		if !ok {
			level2 = make(map[string]*string)
			level1[k1] = level2
		}
		level2[k2] = r.Value
	}
	p.IndicatorValue = tree
	return p, nil
}

func key(r query.Row, d request.Dimension) string {
	switch d {
	case request.DimCountryCode:
		return r.CountryCode
	case request.DimIndicatorID:
		return r.IndicatorID
	default:
		return r.Year
	}
}

func strPtr(s string) *string { return &s }

// Encode returns the canonical JSON form of p: map keys sorted, no HTML
// escaping and no trailing newline. These are the bytes the cache stores.
func Encode(p *Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("shape: failed to encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
