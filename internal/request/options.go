package request

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	apierrors "github.com/apien/apien/internal/errors"
)

// Option names accepted in the query string.
const (
	OptLanguage  = "language"
	OptStructure = "structure"
	OptGzip      = "gzip"
	OptPretty    = "pretty"
)

// DefaultLanguage is used when no language option is given.
const DefaultLanguage = "EN"

var optionPatterns = map[string]*regexp.Regexp{
	OptGzip:      regexp.MustCompile(`^(true|false)$`),
	OptLanguage:  regexp.MustCompile(`(?i)^[a-z]{2}$`),
	OptStructure: regexp.MustCompile(`(?i)^(ciy|cyi|yci|yic|icy|iyc|false)$`),
	OptPretty:    regexp.MustCompile(`^(true|false)$`),
}

// optionOrder fixes the order options are validated in, so the first
// violation reported is deterministic.
var optionOrder = []string{OptGzip, OptLanguage, OptStructure, OptPretty}

// Structure selects the output shape: "false" for the flat tuple list, or a
// permutation of c, i and y naming the nesting order of the tree.
type Structure string

// StructureFlat is the default flat shape.
const StructureFlat Structure = "false"

var structureLetters = map[byte]Dimension{
	'c': DimCountryCode,
	'i': DimIndicatorID,
	'y': DimYear,
}

// Nested reports whether the structure is a nesting permutation.
func (s Structure) Nested() bool {
	return s != StructureFlat && len(s) == 3
}

// Order resolves the permutation to dimensions, outermost first.
func (s Structure) Order() ([3]Dimension, error) {
	var out [3]Dimension
	if !s.Nested() {
		return out, fmt.Errorf("structure %q is not a permutation", string(s))
	}
	seen := make(map[Dimension]bool, 3)
	for i := 0; i < 3; i++ {
		d, ok := structureLetters[s[i]]
		if !ok || seen[d] {
			return out, fmt.Errorf("structure %q is not a permutation", string(s))
		}
		seen[d] = true
		out[i] = d
	}
	return out, nil
}

// OptionSet holds validated options with defaults applied.
type OptionSet struct {
	Language  string
	Structure Structure
	Gzip      bool
	Pretty    bool
}

// DefaultOptions returns the options used when the query string is empty.
func DefaultOptions() OptionSet {
	return OptionSet{
		Language:  DefaultLanguage,
		Structure: StructureFlat,
	}
}

// Values renders the options as their query-string form. Every option is
// present, so an explicit default and an absent option are identical.
func (o OptionSet) Values() map[string]string {
	return map[string]string{
		OptLanguage:  o.Language,
		OptStructure: string(o.Structure),
		OptGzip:      boolString(o.Gzip),
		OptPretty:    boolString(o.Pretty),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseOptions validates the known options in raw; unknown keys are ignored.
func ParseOptions(raw url.Values) (OptionSet, error) {
	opts := DefaultOptions()
	for _, name := range optionOrder {
		if _, present := raw[name]; !present {
			continue
		}
		value := raw.Get(name)
		if !optionPatterns[name].MatchString(value) {
			return OptionSet{}, apierrors.NewValidationError(apierrors.CodeInvalidOption,
				fmt.Sprintf("Invalid value %s provided for option %s.", value, name)).
				WithDetails(map[string]interface{}{"option": name, "value": value})
		}

		switch name {
		case OptLanguage:
			opts.Language = strings.ToUpper(value)
		case OptStructure:
			opts.Structure = Structure(strings.ToLower(value))
		case OptGzip:
			opts.Gzip = value == "true"
		case OptPretty:
			opts.Pretty = value == "true"
		}
	}
	return opts, nil
}
