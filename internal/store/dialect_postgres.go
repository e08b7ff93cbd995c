package store

import (
	"fmt"
	"strings"
	"time"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string         { return "postgres" }
func (d *PostgresDialect) DriverName() string   { return "pgx" }
func (d *PostgresDialect) LikeOperator() string { return "ILIKE" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{format: "$%d"}
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "FALSE"
	}
	return fmt.Sprintf("%s IN (%s)", field, placeholders(pb, values))
}

func (d *PostgresDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "TRUE"
	}
	return fmt.Sprintf("%s NOT IN (%s)", field, placeholders(pb, values))
}

func (d *PostgresDialect) TimeParam(t time.Time) any { return t }

func placeholders(pb ParamBuilder, values []any) string {
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return strings.Join(phs, ", ")
}
