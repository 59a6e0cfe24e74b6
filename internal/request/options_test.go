package request

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := ParseOptions(url.Values{"unknown": {"whatever"}})
	require.NoError(t, err)
	assert.Equal(t, OptionSet{Language: "EN", Structure: StructureFlat}, opts)
}

func TestParseOptions_Valid(t *testing.T) {
	opts, err := ParseOptions(url.Values{
		"language":  {"fr"},
		"structure": {"CYI"},
		"gzip":      {"true"},
		"pretty":    {"false"},
	})
	require.NoError(t, err)
	assert.Equal(t, "FR", opts.Language)
	assert.Equal(t, Structure("cyi"), opts.Structure)
	assert.True(t, opts.Gzip)
	assert.False(t, opts.Pretty)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := []url.Values{
		{"language": {"eng"}},
		{"language": {""}},
		{"structure": {"cci"}},
		{"structure": {"true"}},
		{"gzip": {"TRUE"}},
		{"gzip": {"1"}},
		{"pretty": {"yes"}},
	}
	for _, raw := range tests {
		_, err := ParseOptions(raw)
		requireValidationError(t, err)
	}
}

func TestStructure_Order(t *testing.T) {
	order, err := Structure("yci").Order()
	require.NoError(t, err)
	assert.Equal(t, [3]Dimension{DimYear, DimCountryCode, DimIndicatorID}, order)

	_, err = StructureFlat.Order()
	assert.Error(t, err)
	_, err = Structure("cci").Order()
	assert.Error(t, err)

	assert.True(t, Structure("ciy").Nested())
	assert.False(t, StructureFlat.Nested())
}

func TestOptionSet_ValuesExplicitDefaultEqualsAbsent(t *testing.T) {
	explicit, err := ParseOptions(url.Values{"language": {"EN"}, "gzip": {"false"}})
	require.NoError(t, err)
	absent, err := ParseOptions(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, absent.Values(), explicit.Values())
}
