package condition

import (
	"context"
	"fmt"
	"time"

	"permission-gate/internal/filter"
	"permission-gate/internal/metadata"
	"permission-gate/internal/store"
)

// Query asks how many records of Collection satisfy Filter and Selector.
type Query struct {
	Collection *metadata.Collection
	Filter     filter.Node
	Selector   filter.Selector
	Location   *time.Location
	Now        time.Time
}

// RecordCounter is a record store able to count filtered records.
type RecordCounter interface {
	CountMatching(ctx context.Context, q Query) (int, error)
}

// SQLSource counts table-backed collections through the SQL store.
type SQLSource struct {
	Store *store.Store
}

func (s SQLSource) CountMatching(ctx context.Context, q Query) (int, error) {
	c := q.Collection
	sel := q.Selector
	return s.Store.CountMatching(ctx, store.CountQuery{
		Table:      c.TableName(),
		PrimaryKey: c.PrimaryKeyField(),
		SoftDelete: c.SoftDelete,
		HasField:   c.HasField,
		Filter:     q.Filter,
		Selector:   &sel,
		Location:   q.Location,
		Now:        q.Now,
	})
}

// MemorySource counts the in-memory records of virtual collections.
type MemorySource struct{}

func (MemorySource) CountMatching(ctx context.Context, q Query) (int, error) {
	c := q.Collection
	if err := filter.Validate(q.Filter, c.HasField); err != nil {
		return 0, err
	}
	prog, err := filter.Compile(q.Filter, q.Location, q.Now)
	if err != nil {
		return 0, err
	}

	pk := c.PrimaryKeyField()
	var ids map[string]bool
	if q.Selector.AllRecords {
		ids = toSet(q.Selector.ExcludedIDs)
	} else {
		ids = toSet(q.Selector.Explicit())
	}

	count := 0
	for _, rec := range c.Records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if c.SoftDelete && rec["deleted_at"] != nil {
			continue
		}
		id := filter.IDStrings(rec[pk])
		if len(id) != 1 {
			return 0, fmt.Errorf("record of %s has no %s", c.Name, pk)
		}
		listed := ids[id[0]]
		if q.Selector.AllRecords && listed || !q.Selector.AllRecords && !listed {
			continue
		}
		ok, err := prog.Match(rec)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
