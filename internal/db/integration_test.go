package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adminhub/internal/component"
)

// Integration tests run against live databases named by
// ADMINHUB_TEST_MONGO_URL and ADMINHUB_TEST_POSTGRES_URL.

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("ADMINHUB_TEST_MONGO_URL")
	if url == "" {
		t.Skip("ADMINHUB_TEST_MONGO_URL not set")
	}

	dbName := "adminhub_test_" + strings.ToLower(ulid.Make().String())
	store, err := Dial(url, dbName, 5*time.Second, zap.NewNop())
	if err != nil {
		t.Skipf("Mongo not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.session.DB(dbName).DropDatabase()
		store.Close()
	})
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func setupTestPool(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("ADMINHUB_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ADMINHUB_TEST_POSTGRES_URL not set")
	}

	require.NoError(t, Migrate(url, false))
	pool, err := NewPool(context.Background(), url, zap.NewNop())
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestFlows_InlineLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	flows := store.Flows()
	now := time.Now().UTC().Truncate(time.Millisecond)

	name := "Billing"
	named := Flow{
		ID:         bson.NewObjectId(),
		Name:       &name,
		Components: []component.Component{component.Message("EN", "Pay by card")},
		Type:       "storyboard",
		IsActive:   true,
		Audit:      Audit{CreatedAt: now, UpdatedAt: now},
	}
	inline := Flow{
		ID:          bson.NewObjectId(),
		Components:  []component.Component{component.Message("EN", "Contact support")},
		Type:        "storyboard",
		IsActive:    true,
		ContentHash: "hash-1",
		Audit:       Audit{CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, flows.Insert(ctx, named))
	require.NoError(t, flows.Insert(ctx, inline))

	found, ok, err := flows.FindInline(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inline.ID, found.ID)
	require.Len(t, found.Components, 1)
	assert.Equal(t, "Contact support", found.Components[0].Text("EN"))

	active, err := flows.ActiveIDs(ctx, []bson.ObjectId{named.ID, inline.ID, bson.NewObjectId()})
	require.NoError(t, err)
	assert.ElementsMatch(t, []bson.ObjectId{named.ID, inline.ID}, active)

	list, total, err := flows.List(ctx, ListFlowsParams{Name: "bill"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, named.ID, list[0].ID)

	// only the unnamed flow goes
	n, err := flows.Deactivate(ctx, []bson.ObjectId{named.ID, inline.ID}, true, "tester", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err = flows.FindInline(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = flows.Get(ctx, named.ID)
	assert.NoError(t, err)
	_, err = flows.Get(ctx, inline.ID)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAccounts_LoginBookkeeping(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	id := ulid.Make().String()
	username := "it-" + strings.ToLower(id)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM portal_users WHERE id = $1", id)
	})

	u, err := pool.CreateUser(ctx, CreateUserParams{
		ID:           id,
		Username:     username,
		Name:         "Integration Tester",
		PasswordHash: "x",
		Group:        "editor",
	})
	require.NoError(t, err)
	assert.Equal(t, "editor", u.Group)
	require.NotNil(t, u.GroupID)

	perms, err := pool.Permissions(ctx, *u.GroupID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"flows:write", "questions:write", "grading:write"}, perms)

	byName, err := pool.GetUserByUsername(ctx, strings.ToUpper(username))
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	for i := 1; i <= 3; i++ {
		attempts, locked, err := pool.RecordLoginFailure(ctx, id, 3)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.Equal(t, i == 3, locked)
	}
	require.NoError(t, pool.ResetLoginFailures(ctx, id))

	names, err := pool.Names(ctx, []string{id, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{id: "Integration Tester"}, names)
}
