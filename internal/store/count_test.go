package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permission-gate/internal/filter"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		status TEXT,
		amount REAL,
		email TEXT,
		created_at TEXT,
		deleted_at TEXT
	)`)
	require.NoError(t, err)

	rows := []struct {
		id        int
		status    string
		amount    float64
		email     any
		createdAt string
		deletedAt any
	}{
		{1, "paid", 150, "a@example.com", "2024-03-10 08:00:00", nil},
		{2, "paid", 50, "b@Example.com", "2024-03-09 08:00:00", nil},
		{3, "pending", 500, nil, "2024-03-10 09:00:00", nil},
		{4, "paid", 900, "d@other.org", "2024-03-10 10:00:00", "2024-03-10 11:00:00"},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO orders (id, status, amount, email, created_at, deleted_at) VALUES (?, ?, ?, ?, ?, ?)`,
			r.id, r.status, r.amount, r.email, r.createdAt, r.deletedAt)
		require.NoError(t, err)
	}
	return NewWithDB(db, &SQLiteDialect{})
}

func mustParse(t *testing.T, raw string) filter.Node {
	t.Helper()
	n, err := filter.Parse([]byte(raw))
	require.NoError(t, err)
	return n
}

func TestCountMatching_SQLite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		filter   string
		selector *filter.Selector
		want     int
	}{
		{"no filter explicit ids", `null`, &filter.Selector{IDs: []string{"1", "2", "2"}}, 2},
		{"equal", `{"field":"status","operator":"equal","value":"paid"}`, &filter.Selector{IDs: []string{"1", "2", "3"}}, 2},
		{"greater than", `{"field":"amount","operator":"greater_than","value":100}`, &filter.Selector{IDs: []string{"1", "2", "3"}}, 2},
		{"all records with exclusion", `{"field":"status","operator":"equal","value":"paid"}`, &filter.Selector{AllRecords: true, ExcludedIDs: []string{"1"}}, 1},
		{"all records soft deleted hidden", `null`, &filter.Selector{AllRecords: true}, 3},
		{"ends with case-insensitive", `{"field":"email","operator":"ends_with","value":"@example.com"}`, &filter.Selector{AllRecords: true}, 2},
		{"not contains keeps nulls", `{"field":"email","operator":"not_contains","value":"a@"}`, &filter.Selector{AllRecords: true}, 2},
		{"blank", `{"field":"email","operator":"blank"}`, &filter.Selector{AllRecords: true}, 1},
		{"in", `{"field":"status","operator":"in","value":["pending","refunded"]}`, &filter.Selector{AllRecords: true}, 1},
		{"today", `{"field":"created_at","operator":"today"}`, &filter.Selector{AllRecords: true}, 2},
		{"or aggregation", `{"aggregator":"or","conditions":[
			{"field":"status","operator":"equal","value":"pending"},
			{"field":"amount","operator":"less_than","value":100}
		]}`, &filter.Selector{AllRecords: true}, 2},
		{"empty id list", `null`, &filter.Selector{IDs: []string{}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := s.CountMatching(ctx, CountQuery{
				Table:      "orders",
				PrimaryKey: "id",
				SoftDelete: true,
				Filter:     mustParse(t, tc.filter),
				Selector:   tc.selector,
				Location:   time.UTC,
				Now:        now,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestCountMatching_UnknownColumn(t *testing.T) {
	s := newSQLiteStore(t)
	_, err := s.CountMatching(context.Background(), CountQuery{
		Table:  "orders",
		Filter: &filter.Condition{Field: "missing", Operator: "present"},
	})
	require.Error(t, err)
}

func TestBuildCountSQL_Postgres(t *testing.T) {
	q, err := BuildCountSQL(&PostgresDialect{}, CountQuery{
		Table:      "orders",
		PrimaryKey: "id",
		SoftDelete: true,
		Filter: &filter.Aggregation{Aggregator: "and", Conditions: []filter.Node{
			&filter.Condition{Field: "status", Operator: "not_equal", Value: "void"},
			&filter.Condition{Field: "email", Operator: "contains", Value: "acme"},
		}},
		Selector: &filter.Selector{IDs: []string{"7", "9"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT COUNT(*) FROM orders WHERE deleted_at IS NULL AND (((status != $1 OR status IS NULL)) AND (email ILIKE $2)) AND id IN ($3, $4)",
		q.SQL)
	assert.Equal(t, []any{"void", "%acme%", "7", "9"}, q.Params)
}

func TestBuildCountSQL_Rejects(t *testing.T) {
	_, err := BuildCountSQL(&PostgresDialect{}, CountQuery{Table: "orders; DROP TABLE x"})
	assert.True(t, errors.Is(err, filter.ErrMalformed))

	_, err = BuildCountSQL(&PostgresDialect{}, CountQuery{Table: "orders", PrimaryKey: "id--"})
	assert.True(t, errors.Is(err, filter.ErrMalformed))

	_, err = BuildCountSQL(&PostgresDialect{}, CountQuery{
		Table:    "orders",
		HasField: func(f string) bool { return f == "status" },
		Filter:   &filter.Condition{Field: "amount", Operator: "present"},
	})
	assert.True(t, errors.Is(err, filter.ErrMalformed))
}

func TestCountMatching_PostgresMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db, &PostgresDialect{})
	mock.ExpectQuery("SELECT COUNT(*) FROM orders WHERE (status = $1) AND id NOT IN ($2)").
		WithArgs("paid", "3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := s.CountMatching(context.Background(), CountQuery{
		Table:    "orders",
		Filter:   &filter.Condition{Field: "status", Operator: "equal", Value: "paid"},
		Selector: &filter.Selector{AllRecords: true, ExcludedIDs: []string{"3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMatching_PostgresMockError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewWithDB(db, &PostgresDialect{})
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))

	_, err = s.CountMatching(context.Background(), CountQuery{Table: "orders"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
