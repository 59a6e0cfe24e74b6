// Package query turns validated filters into a single SQL statement over the
// indicator fact table and executes it.
//
// Every filter value is bound as a parameter. The keyword denylist is applied
// to the statement text and to every bound value before anything is executed.
package query

import (
	"regexp"
	"strconv"
	"strings"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/request"
)

// Statement is a SQL string plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// ForbiddenKeywords are rejected anywhere in an assembled statement.
var ForbiddenKeywords = []string{
	"UPDATE", "INSERT", "DROP", "DELETE", "TRUNCATE", "DATABASE",
	"TABLE", "ALTER", "ROLLBACK", "CREATE", "KILL",
}

var forbiddenPattern = regexp.MustCompile(`(?i)(` + strings.Join(ForbiddenKeywords, "|") + `)`)

const baseSelect = `SELECT iv.country_code, iv.indicator_id, iv.year, iv.value, ` +
	`cn.name AS country_name, inm.name AS indicator_name ` +
	`FROM indicator_value AS iv ` +
	`INNER JOIN country_name AS cn ON cn.code = iv.country_code ` +
	`INNER JOIN indicator_name AS inm ON inm.id = iv.indicator_id ` +
	`WHERE cn.language = ? AND inm.language = ?`

const orderBy = ` ORDER BY iv.country_code, iv.indicator_id, iv.year`

// Build assembles the lookup statement for the given filters and language.
// Filters are appended in canonical dimension order so equal requests yield
// byte-identical statements. A denylisted keyword fails with FORBIDDEN.
func Build(filters request.FilterSet, language string) (Statement, error) {
	var sb strings.Builder
	sb.WriteString(baseSelect)
	args := []any{language, language}

	for _, dim := range filters.Dimensions() {
		values := filters[dim]
		if len(values) == 0 {
			continue
		}
		sb.WriteString(" AND iv.")
		sb.WriteString(string(dim))
		sb.WriteString(" IN (")
		for i, v := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, bindValue(dim, v))
		}
		sb.WriteString(")")
	}
	sb.WriteString(orderBy)

	st := Statement{SQL: sb.String(), Args: args}
	if err := CheckForbidden(st); err != nil {
		return Statement{}, err
	}
	return st, nil
}

// bindValue converts a filter value to the column's Go type. Values that do
// not parse are bound as text; they simply match nothing.
func bindValue(dim request.Dimension, v string) any {
	if dim.Numeric() {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return v
}

// CheckForbidden scans the statement text and every string argument for a
// denylisted keyword, case-insensitively.
func CheckForbidden(st Statement) error {
	if kw := forbiddenPattern.FindString(st.SQL); kw != "" {
		return apierrors.NewForbiddenError(strings.ToUpper(kw))
	}
	for _, arg := range st.Args {
		s, ok := arg.(string)
		if !ok {
			continue
		}
		if kw := forbiddenPattern.FindString(s); kw != "" {
			return apierrors.NewForbiddenError(strings.ToUpper(kw))
		}
	}
	return nil
}
