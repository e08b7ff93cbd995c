package store

import (
	"fmt"
	"time"
)

// Dialect abstracts database-specific SQL generation.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// InExpr builds a SQL expression for the IN operator, one placeholder per
	// value so the server infers each parameter type from the column.
	InExpr(field string, pb ParamBuilder, values []any) string

	// NotInExpr builds a SQL expression for the NOT IN operator.
	NotInExpr(field string, pb ParamBuilder, values []any) string

	// LikeOperator returns the case-insensitive pattern operator.
	// PostgreSQL: ILIKE. SQLite: LIKE (case-insensitive for ASCII).
	LikeOperator() string

	// TimeParam encodes a timestamp bound for comparison with a date column.
	// PostgreSQL: time.Time as-is. SQLite: "YYYY-MM-DD HH:MM:SS" UTC text.
	TimeParam(t time.Time) any
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// paramBuilder numbers placeholders with format, "$%d" for PostgreSQL and
// "?%d" for SQLite.
type paramBuilder struct {
	format string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf(p.format, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return len(p.params) }
