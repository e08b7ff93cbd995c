package store

import (
	"fmt"
	"time"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string         { return "sqlite" }
func (d *SQLiteDialect) DriverName() string   { return "sqlite" }
func (d *SQLiteDialect) LikeOperator() string { return "LIKE" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{format: "?%d"}
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	return fmt.Sprintf("%s IN (%s)", field, placeholders(pb, values))
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=1" // always true
	}
	return fmt.Sprintf("%s NOT IN (%s)", field, placeholders(pb, values))
}

// TimeParam matches the text layout of SQLite's datetime('now').
func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format("2006-01-02 15:04:05")
}
