package permission

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"permission-gate/internal/apperror"
	"permission-gate/internal/filter"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
)

// Fetcher retrieves the raw permission document of a rendering.
type Fetcher interface {
	FetchRendering(ctx context.Context, renderingID int64) ([]byte, error)
}

// sharedKey holds the snapshot serving every rendering in roles ACL mode.
const sharedKey = "shared"

// Cache serves permission snapshots per rendering. A check that passes on a
// fresh snapshot never reaches the permission source; a check that fails is
// retried once against a forced refetch.
type Cache struct {
	fetcher Fetcher
	store   SnapshotStore
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group    singleflight.Group
	open     atomic.Bool
	rolesACL atomic.Bool
}

type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrNop(l) }
}

// WithClock overrides the time source used for freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(fetcher Fetcher, store SnapshotStore, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		store:   store,
		ttl:     ttl,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check is one permission question asked of the cache.
type Check struct {
	Kind       Kind
	Collection string
	User       *metadata.UserContext

	// Action names the smart action when Kind is Actions.
	Action string
	// ListFilter is the caller's list filter, checked against the collection
	// scope when Kind is Browse.
	ListFilter filter.Node
}

// Open reports whether the permission source declared that no permission
// system is configured. Every check passes until Reset.
func (c *Cache) Open() bool {
	return c.open.Load()
}

// Snapshot returns the snapshot governing renderingID, fetching it when
// absent or stale. A failed refetch falls back to the stale snapshot. The
// result is nil in open mode.
func (c *Cache) Snapshot(ctx context.Context, renderingID int64) (*Snapshot, error) {
	if c.open.Load() {
		return nil, nil
	}
	snap := c.lookup(ctx, c.collectionsKey(renderingID))
	if snap.Fresh(c.now(), c.ttl) {
		return snap, nil
	}
	fresh, err := c.fetch(ctx, renderingID)
	if err != nil {
		if snap != nil {
			c.logger.Warn("serving stale permissions", zap.Int64("rendering_id", renderingID), zap.Error(err))
			return snap, nil
		}
		return nil, err
	}
	return fresh, nil
}

// IsAuthorized answers a CRUD, list-scope or smart action trigger check for
// the user's rendering.
func (c *Cache) IsAuthorized(ctx context.Context, check Check) (bool, error) {
	return c.Resolve(ctx, renderingOf(check.User), func(s *Snapshot) (bool, error) {
		return c.evaluate(s, check), nil
	})
}

// CheckChart reports whether the chart described by params is on the
// rendering's allow-list. Allow-lists are per rendering in every mode.
func (c *Cache) CheckChart(ctx context.Context, user *metadata.UserContext, params map[string]any) (bool, error) {
	hash, err := ChartHash(params)
	if err != nil {
		return false, apperror.ValidationError(err.Error())
	}
	renderingID := renderingOf(user)
	return c.resolve(ctx, renderingID, renderingKey(renderingID), func(s *Snapshot) (bool, error) {
		return s.Charts[hash], nil
	})
}

// Resolve runs eval against the snapshot governing renderingID under the
// refresh policy of IsAuthorized. An eval error is returned as is, without
// a refetch. Open mode passes without calling eval.
func (c *Cache) Resolve(ctx context.Context, renderingID int64, eval func(*Snapshot) (bool, error)) (bool, error) {
	return c.resolve(ctx, renderingID, c.collectionsKey(renderingID), eval)
}

func (c *Cache) resolve(ctx context.Context, renderingID int64, key string, eval func(*Snapshot) (bool, error)) (bool, error) {
	if c.open.Load() {
		return true, nil
	}

	snap := c.lookup(ctx, key)
	if snap.Fresh(c.now(), c.ttl) {
		ok, err := eval(snap)
		if err != nil || ok {
			return ok, err
		}
		// Denied on a fresh snapshot: the grant may have just been widened.
		fresh, err := c.fetch(ctx, renderingID)
		if err != nil {
			return false, err
		}
		if fresh == nil {
			return true, nil
		}
		return eval(fresh)
	}

	fresh, err := c.fetch(ctx, renderingID)
	if err != nil {
		if snap != nil {
			if ok, evalErr := eval(snap); evalErr == nil && ok {
				c.logger.Warn("authorized from stale permissions",
					zap.Int64("rendering_id", renderingID), zap.Error(err))
				return true, nil
			}
		}
		return false, err
	}
	if fresh == nil {
		return true, nil
	}
	return eval(fresh)
}

// Reset drops every snapshot and forgets open and roles ACL mode.
func (c *Cache) Reset(ctx context.Context) error {
	c.open.Store(false)
	c.rolesACL.Store(false)
	if err := c.store.Purge(ctx); err != nil {
		return err
	}
	c.logger.Info("permission cache reset")
	return nil
}

func (c *Cache) evaluate(s *Snapshot, check Check) bool {
	cp := s.Collection(check.Collection)
	if cp == nil {
		c.logger.Warn("no permissions for collection", zap.String("collection", check.Collection))
		return false
	}
	principal, known := s.Principal(check.User)

	switch {
	case check.Kind == Actions:
		ap := cp.Actions[check.Action]
		if ap == nil {
			return false
		}
		return ap.TriggerEnabled.Allows(principal, known)
	case check.Kind.IsCRUD():
		if !cp.CRUD.Flag(check.Kind).Allows(principal, known) {
			return false
		}
		if check.Kind == Browse && cp.Scope != nil {
			if check.User == nil {
				return false
			}
			return cp.Scope.Allows(check.User.ID, check.ListFilter)
		}
		return true
	}
	return false
}

// fetch loads a rendering from the source and stores it. Concurrent fetches
// of one rendering share a single request, which outlives the cancellation of
// any one caller. The snapshot is nil in open mode.
func (c *Cache) fetch(ctx context.Context, renderingID int64) (*Snapshot, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(renderingKey(renderingID), func() (any, error) {
		return c.doFetch(shared, renderingID)
	})
	if err != nil {
		return nil, err
	}
	snap, _ := v.(*Snapshot)
	return snap, nil
}

func (c *Cache) doFetch(ctx context.Context, renderingID int64) (*Snapshot, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "permission", "cache", "fetch")
	defer span.End()
	span.SetMetadata("rendering_id", renderingID)

	start := time.Now()
	raw, err := c.fetcher.FetchRendering(ctx, renderingID)
	if err != nil {
		span.SetStatus("error")
		return nil, upstream(err)
	}
	snap, open, err := ParsePayload(raw, c.now())
	if err != nil {
		span.SetStatus("error")
		return nil, upstream(err)
	}
	if open {
		if !c.open.Swap(true) {
			c.logger.Info("no permission system configured, authorizing every request")
		}
		return nil, nil
	}

	c.rolesACL.Store(snap.RolesACLActivated)
	c.put(ctx, renderingKey(renderingID), snap)
	if snap.RolesACLActivated {
		c.put(ctx, sharedKey, snap)
	}

	span.SetMetadata("roles_acl", snap.RolesACLActivated)
	c.logger.Info("permissions fetched",
		zap.Int64("rendering_id", renderingID),
		zap.Bool("roles_acl", snap.RolesACLActivated),
		zap.Int("collections", len(snap.Collections)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func (c *Cache) lookup(ctx context.Context, key string) *Snapshot {
	snap, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("snapshot store read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return snap
}

func (c *Cache) put(ctx context.Context, key string, snap *Snapshot) {
	if err := c.store.Put(ctx, key, snap); err != nil {
		c.logger.Warn("snapshot store write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) collectionsKey(renderingID int64) string {
	if c.rolesACL.Load() {
		return sharedKey
	}
	return renderingKey(renderingID)
}

func renderingKey(renderingID int64) string {
	return "rendering:" + strconv.FormatInt(renderingID, 10)
}

func renderingOf(u *metadata.UserContext) int64 {
	if u == nil {
		return 0
	}
	return u.RenderingID
}

func upstream(err error) error {
	if appErr, ok := apperror.As(err); ok && appErr.Code == apperror.CodeUpstreamFetch {
		return appErr
	}
	return apperror.UpstreamFetchError(err)
}
