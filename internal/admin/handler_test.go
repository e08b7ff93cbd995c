package admin

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
)

type staticSource struct{ calls int }

func (s *staticSource) FetchRendering(context.Context, int64) ([]byte, error) {
	s.calls++
	return []byte(`{"meta": {"rolesACLActivated": false}, "data": {"orders": {"collection": {"list": true}}}}`), nil
}

func TestReloadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"collections": [{"name": "orders"}]}`), 0o644))

	snapshots, err := permission.NewMemoryStore(4)
	require.NoError(t, err)
	reg := metadata.NewRegistry()
	h := NewHandler(permission.NewCache(&staticSource{}, snapshots, 0), reg, path, nil)
	app := fiber.New()
	RegisterAdminRoutes(app, h)

	resp, err := app.Test(httptest.NewRequest("GET", "/_admin/collections/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/_admin/schema/reload", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.NotNil(t, reg.GetCollection("orders"))

	resp, err = app.Test(httptest.NewRequest("GET", "/_admin/collections/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestResetCache(t *testing.T) {
	src := &staticSource{}
	snapshots, err := permission.NewMemoryStore(4)
	require.NoError(t, err)
	cache := permission.NewCache(src, snapshots, time.Hour)
	app := fiber.New()
	RegisterAdminRoutes(app, NewHandler(cache, metadata.NewRegistry(), "", nil))

	user := &metadata.UserContext{ID: "1", RenderingID: 1}
	check := permission.Check{Kind: permission.Browse, Collection: "orders", User: user}
	ok, err := cache.IsAuthorized(context.Background(), check)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, src.calls)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/cache", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	_, err = cache.IsAuthorized(context.Background(), check)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
