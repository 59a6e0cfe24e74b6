// Package request parses and validates lookup requests. A request is a
// sequence of path segments read pairwise as (dimension, csv values) plus a
// small set of query-string options. Everything that leaves this package has
// been matched against a strict allow-list.
package request

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	apierrors "github.com/apien/apien/internal/errors"
)

// Dimension names a filterable column of the indicator_value fact table.
type Dimension string

const (
	DimCountryCode Dimension = "country_code"
	DimIndicatorID Dimension = "indicator_id"
	DimYear        Dimension = "year"
)

// Dimensions lists every dimension in canonical order. Statement building and
// fingerprinting iterate in this order.
var Dimensions = []Dimension{DimCountryCode, DimIndicatorID, DimYear}

type dimensionRule struct {
	pattern   *regexp.Regexp
	numeric   bool
	normalize func(string) string
}

var dimensionRules = map[Dimension]dimensionRule{
	DimCountryCode: {pattern: regexp.MustCompile(`(?i)^[a-z]{3}$`), normalize: strings.ToLower},
	DimIndicatorID: {pattern: regexp.MustCompile(`^[0-9]+$`), numeric: true},
	DimYear:        {pattern: regexp.MustCompile(`^[0-9]{4}$`), numeric: true},
}

// Valid reports whether d is one of the enumerated dimensions.
func (d Dimension) Valid() bool {
	_, ok := dimensionRules[d]
	return ok
}

// Numeric reports whether the dimension's column holds integers.
func (d Dimension) Numeric() bool {
	return dimensionRules[d].numeric
}

// ValidateValue checks a single value against the dimension's pattern and
// returns its normalized form.
func (d Dimension) ValidateValue(value string) (string, error) {
	rule, ok := dimensionRules[d]
	if !ok {
		return "", apierrors.NewValidationError(apierrors.CodeInvalidResource,
			fmt.Sprintf("Unknown resource %s.", d))
	}
	if !rule.pattern.MatchString(value) {
		return "", invalidValue(value, d)
	}
	if rule.normalize != nil {
		value = rule.normalize(value)
	}
	return value, nil
}

func invalidValue(value string, d Dimension) *apierrors.APIError {
	return apierrors.NewValidationError(apierrors.CodeInvalidResource,
		fmt.Sprintf("Invalid value %s provided for resource %s.", value, d)).
		WithDetails(map[string]interface{}{"resource": string(d), "value": value})
}

// FilterSet maps each requested dimension to its non-empty, de-duplicated
// value list in request order.
type FilterSet map[Dimension][]string

// Dimensions returns the dimensions present in the set, in canonical order.
func (f FilterSet) Dimensions() []Dimension {
	dims := make([]Dimension, 0, len(f))
	for _, d := range Dimensions {
		if _, ok := f[d]; ok {
			dims = append(dims, d)
		}
	}
	return dims
}

// Request is a validated lookup request.
type Request struct {
	// Path is the raw request path as received, used for logging.
	Path    string
	Filters FilterSet
	Options OptionSet
}

// Canonical returns the request as plain maps: filter values keyed by
// dimension name and option values keyed by option name. Options are
// always complete, defaults included.
func (r *Request) Canonical() (map[string][]string, map[string]string) {
	filters := make(map[string][]string, len(r.Filters))
	for d, values := range r.Filters {
		cp := make([]string, len(values))
		copy(cp, values)
		filters[string(d)] = cp
	}
	return filters, r.Options.Values()
}

// ParsePath splits a "/"-delimited path and parses it together with the
// query-string options.
func ParsePath(path string, raw url.Values) (*Request, error) {
	req, err := Parse(strings.Split(path, "/"), raw)
	if err != nil {
		return nil, err
	}
	req.Path = path
	return req, nil
}

// Parse validates path segments and raw options. It fails on the first
// violation with a VALIDATION error.
func Parse(segments []string, raw url.Values) (*Request, error) {
	filters, err := ParseResources(segments)
	if err != nil {
		return nil, err
	}
	options, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	return &Request{
		Path:    strings.Join(segments, "/"),
		Filters: filters,
		Options: options,
	}, nil
}

var repeatedCommas = regexp.MustCompile(`,+`)

// ParseResources reads segments pairwise. A segment that is not a dimension
// name is skipped without consuming the next one. A dimension may appear
// only once per request.
func ParseResources(segments []string) (FilterSet, error) {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}

	filters := make(FilterSet)
	for i := 0; i < len(parts); i++ {
		dim := Dimension(parts[i])
		if !dim.Valid() {
			continue
		}
		if i+1 >= len(parts) {
			return nil, apierrors.NewValidationError(apierrors.CodeMissingValue,
				fmt.Sprintf("Resource value not specified for resource %s", dim))
		}
		if _, seen := filters[dim]; seen {
			return nil, apierrors.NewValidationError(apierrors.CodeDuplicateResource,
				fmt.Sprintf("Resource %s specified more than once", dim))
		}

		values, err := parseValues(dim, parts[i+1])
		if err != nil {
			return nil, err
		}
		filters[dim] = values
		i++
	}
	return filters, nil
}

func parseValues(dim Dimension, segment string) ([]string, error) {
	cleaned := repeatedCommas.ReplaceAllString(segment, ",")
	cleaned = strings.Trim(cleaned, ", \t\n\r")

	tokens := strings.Split(cleaned, ",")
	values := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		value, err := dim.ValidateValue(token)
		if err != nil {
			return nil, err
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}
	return values, nil
}
