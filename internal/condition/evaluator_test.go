package condition

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"permission-gate/internal/apperror"
	"permission-gate/internal/filter"
	"permission-gate/internal/metadata"
	"permission-gate/internal/store"
)

var orders = &metadata.Collection{
	Name:   "orders",
	Fields: []metadata.Field{{Name: "status", Type: "string"}, {Name: "amount", Type: "decimal"}},
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT, amount REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders (id, status, amount) VALUES
		(1, 'paid', 150), (2, 'paid', 80), (3, 'pending', 300), (4, 'paid', 500)`)
	require.NoError(t, err)

	src := SQLSource{Store: store.NewWithDB(db, &store.SQLiteDialect{})}
	return NewEvaluator(src, nil)
}

var paid = &filter.Condition{Field: "status", Operator: "equal", Value: "paid"}

func TestMatches_ExplicitIDs(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()

	ok, err := e.Matches(ctx, orders, paid, "", filter.Selector{IDs: []string{"1", "2", "4"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Matches(ctx, orders, paid, "", filter.Selector{IDs: []string{"1", "2", "3"}})
	require.NoError(t, err)
	assert.False(t, ok, "one non-matching record fails the whole selection")

	ok, err = e.Matches(ctx, orders, paid, "", filter.Selector{IDs: []string{"1", "1", "2"}})
	require.NoError(t, err)
	assert.True(t, ok, "duplicate ids count once")
}

func TestMatches_AllRecords(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()

	ok, err := e.Matches(ctx, orders, paid, "", filter.Selector{AllRecords: true, ExcludedIDs: []string{"3"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Matches(ctx, orders, paid, "", filter.Selector{AllRecords: true})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountMatching(t *testing.T) {
	e := newEvaluator(t)
	n, err := e.CountMatching(context.Background(), orders,
		&filter.Condition{Field: "amount", Operator: "greater_than", Value: 100},
		"Europe/Paris",
		filter.Selector{AllRecords: true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountMatching_Errors(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()
	sel := filter.Selector{IDs: []string{"1"}}

	cases := []struct {
		name     string
		cond     filter.Node
		timezone string
	}{
		{"unknown field", &filter.Condition{Field: "customer", Operator: "equal", Value: 1}, ""},
		{"unknown operator", &filter.Condition{Field: "status", Operator: "sounds_like", Value: "x"}, ""},
		{"relation field", &filter.Condition{Field: "customer:name", Operator: "equal", Value: "x"}, ""},
		{"unknown timezone", paid, "Mars/Olympus"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CountMatching(ctx, orders, tc.cond, tc.timezone, sel)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrCondition))

			_, err = e.Matches(ctx, orders, tc.cond, tc.timezone, sel)
			assert.True(t, errors.Is(err, apperror.ErrCondition))
		})
	}

	_, err := e.CountMatching(ctx, nil, paid, "", sel)
	assert.True(t, errors.Is(err, apperror.ErrCondition))
}

func TestMatches_StorageError(t *testing.T) {
	e := newEvaluator(t)
	missing := &metadata.Collection{Name: "ghosts", Fields: []metadata.Field{{Name: "status"}}}

	_, err := e.Matches(context.Background(), missing, paid, "", filter.Selector{IDs: []string{"1"}})
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeConditionError, appErr.Code)
	assert.NotNil(t, errors.Unwrap(appErr))
}

func TestMatches_VirtualCollection(t *testing.T) {
	issued := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	invoices := &metadata.Collection{
		Name:       "invoices",
		Virtual:    true,
		SoftDelete: true,
		Fields:     []metadata.Field{{Name: "status"}, {Name: "issued_at", Type: "timestamp"}, {Name: "deleted_at", Type: "timestamp"}},
		Records: []map[string]any{
			{"id": float64(1), "status": "sent", "issued_at": issued},
			{"id": float64(2), "status": "sent", "issued_at": issued.AddDate(0, 0, -3)},
			{"id": float64(3), "status": "draft", "issued_at": issued},
			{"id": float64(4), "status": "draft", "issued_at": issued, "deleted_at": issued},
		},
	}
	e := NewEvaluator(nil, nil).WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	ctx := context.Background()

	sent := &filter.Condition{Field: "status", Operator: "equal", Value: "sent"}
	ok, err := e.Matches(ctx, invoices, sent, "", filter.Selector{IDs: []string{"1", "2"}})
	require.NoError(t, err)
	assert.True(t, ok)

	today := &filter.Condition{Field: "issued_at", Operator: "today"}
	n, err := e.CountMatching(ctx, invoices, today, "", filter.Selector{AllRecords: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "soft-deleted records are not counted")

	ok, err = e.Matches(ctx, invoices, today, "", filter.Selector{AllRecords: true, ExcludedIDs: []string{"2"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCount_NoTableStore(t *testing.T) {
	e := NewEvaluator(nil, nil)
	_, err := e.CountMatching(context.Background(), orders, paid, "", filter.Selector{IDs: []string{"1"}})
	assert.True(t, errors.Is(err, apperror.ErrCondition))
}
