package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/metrics"
)

// Row is one joined fact: the four tuple columns plus the localized names.
type Row struct {
	CountryCode   string
	IndicatorID   string
	Year          string
	Value         *string
	CountryName   string
	IndicatorName string
}

// Querier is the read side of the relational store.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs lookup statements against the store.
type Executor struct {
	db      Querier
	log     *logger.Logger
	metrics *metrics.Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for per-statement debug output.
func WithLogger(l *logger.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

// WithMetrics records statement durations and row counts.
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor over db.
func NewExecutor(db Querier, opts ...ExecutorOption) *Executor {
	e := &Executor{db: db, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs st and returns its rows in store order. The denylist is
// checked again here so no caller can reach the store with an unchecked
// statement. Driver failures are QUERY errors.
func (e *Executor) Execute(ctx context.Context, st Statement) ([]Row, error) {
	if err := CheckForbidden(st); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		e.observe(start, 0, err)
		return nil, apierrors.NewQueryError(apierrors.CodeExecutionFailed, "query failed", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r     Row
			value any
		)
		if err := rows.Scan(&r.CountryCode, &r.IndicatorID, &r.Year, &value, &r.CountryName, &r.IndicatorName); err != nil {
			e.observe(start, len(out), err)
			return nil, apierrors.NewQueryError(apierrors.CodeScanFailed, "failed to read row", err)
		}
		r.Value = FormatValue(value)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		e.observe(start, len(out), err)
		return nil, apierrors.NewQueryError(apierrors.CodeExecutionFailed, "query failed", err)
	}

	e.observe(start, len(out), nil)
	return out, nil
}

// FormatValue renders a driver value of the value column in plain decimal
// notation. Floats never use an exponent, so 331000000 stays "331000000".
// A NULL column yields nil.
func FormatValue(v any) *string {
	var s string
	switch v := v.(type) {
	case nil:
		return nil
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int64:
		s = strconv.FormatInt(v, 10)
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	return &s
}

func (e *Executor) observe(start time.Time, count int, err error) {
	d := time.Since(start)
	e.log.LogDbOperation("lookup", d, count, err)
	if e.metrics != nil {
		e.metrics.RecordDbQuery("lookup", d)
		if err == nil {
			e.metrics.DbRowsReturned.Observe(float64(count))
		}
	}
}
