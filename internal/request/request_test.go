package request

import (
	"net/url"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/apien/apien/internal/errors"
)

func requireValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrCategoryValidation, apierrors.GetCategory(err))
	assert.Equal(t, 400, apierrors.HTTPStatus(err))
}

func TestParseResources_ValidationBoundaries(t *testing.T) {
	tests := []struct {
		dim   Dimension
		value string
		ok    bool
	}{
		{DimCountryCode, "usa", true},
		{DimCountryCode, "USA", true},
		{DimCountryCode, "usax", false},
		{DimCountryCode, "us", false},
		{DimCountryCode, "us1", false},
		{DimIndicatorID, "1", true},
		{DimIndicatorID, "123456", true},
		{DimIndicatorID, "12ab", false},
		{DimIndicatorID, "99999999999999999999", true},
		{DimYear, "2024", true},
		{DimYear, "202", false},
		{DimYear, "20245", false},
		{DimYear, "20a4", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.dim)+"="+tt.value, func(t *testing.T) {
			_, err := ParseResources([]string{string(tt.dim), tt.value})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				requireValidationError(t, err)
			}
		})
	}
}

func TestParseResources_PairwiseAndSkipping(t *testing.T) {
	filters, err := ParseResources([]string{"", "api", "country_code", "usa,can", "junk", "year", "2020", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{"usa", "can"}, filters[DimCountryCode])
	assert.Equal(t, []string{"2020"}, filters[DimYear])
	_, hasIndicator := filters[DimIndicatorID]
	assert.False(t, hasIndicator)
}

func TestParseResources_UnknownSegmentDoesNotConsumeNext(t *testing.T) {
	// "v1" is skipped on its own; "year" is still recognized.
	filters, err := ParseResources([]string{"v1", "year", "2021"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2021"}, filters[DimYear])
}

func TestParseResources_CommaCleanup(t *testing.T) {
	filters, err := ParseResources([]string{"indicator_id", ",,1,,,2,\t\n"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, filters[DimIndicatorID])
}

func TestParseResources_DeduplicatesValues(t *testing.T) {
	filters, err := ParseResources([]string{"country_code", "usa,USA,can,usa"})
	require.NoError(t, err)
	assert.Equal(t, []string{"usa", "can"}, filters[DimCountryCode])
}

func TestParseResources_MissingValue(t *testing.T) {
	_, err := ParseResources([]string{"year", "2020", "country_code"})
	requireValidationError(t, err)
	assert.Equal(t, apierrors.CodeMissingValue, apierrors.GetCode(err))
}

func TestParseResources_EmptyValueList(t *testing.T) {
	_, err := ParseResources([]string{"year", ",,,"})
	requireValidationError(t, err)
}

func TestParseResources_RejectsDuplicateDimension(t *testing.T) {
	_, err := ParseResources([]string{"year", "2020", "year", "2021"})
	requireValidationError(t, err)
	assert.Equal(t, apierrors.CodeDuplicateResource, apierrors.GetCode(err))
}

func TestParseResources_EmptyIsValid(t *testing.T) {
	filters, err := ParseResources(nil)
	require.NoError(t, err)
	assert.Empty(t, filters)
}

func TestFilterSet_DimensionsCanonicalOrder(t *testing.T) {
	f := FilterSet{DimYear: {"2020"}, DimCountryCode: {"usa"}}
	assert.Equal(t, []Dimension{DimCountryCode, DimYear}, f.Dimensions())
}

func TestParsePath(t *testing.T) {
	req, err := ParsePath("/country_code/usa/indicator_id/1/year/2020", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "/country_code/usa/indicator_id/1/year/2020", req.Path)
	assert.Len(t, req.Filters, 3)
	assert.Equal(t, DefaultOptions(), req.Options)
}

func TestRequest_CanonicalCopiesValues(t *testing.T) {
	req := &Request{Filters: FilterSet{DimYear: {"2020"}}, Options: DefaultOptions()}
	filters, options := req.Canonical()
	filters["year"][0] = "1999"

	assert.Equal(t, "2020", req.Filters[DimYear][0])
	assert.Equal(t, map[string]string{
		"language": "EN", "structure": "false", "gzip": "false", "pretty": "false",
	}, options)
}

func TestProperty_CountryCodeLength(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("only three-letter alphabetic country codes validate", prop.ForAll(
		func(n int, c rune) bool {
			s := strings.Repeat(string(c), n)
			_, err := DimCountryCode.ValidateValue(s)
			return (err == nil) == (n == 3)
		},
		gen.IntRange(0, 6),
		gen.AlphaChar(),
	))

	properties.Property("year accepts exactly four digits", prop.ForAll(
		func(n int) bool {
			s := strings.Repeat("1", n)
			_, err := DimYear.ValidateValue(s)
			return (err == nil) == (n == 4)
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
