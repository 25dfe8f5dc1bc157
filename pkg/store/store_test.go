package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoclicker/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func backends(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			saved, err := s.Save(ctx, "login", "click(\"#a\");\n")
			require.NoError(t, err)
			assert.Equal(t, "login", saved.Name)

			got, err := s.Load(ctx, "login")
			require.NoError(t, err)
			assert.Equal(t, "click(\"#a\");\n", got.Text)
		})
	}
}

func TestStoreOverwriteKeepsCreation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := s.Save(ctx, "s", "wait(1);")
			require.NoError(t, err)
			_, err = s.Save(ctx, "s", "wait(2);")
			require.NoError(t, err)

			got, err := s.Load(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, "wait(2);", got.Text)
			assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestStoreMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Load(ctx, "nope")
			assert.ErrorIs(t, err, models.ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "nope"), models.ErrNotFound)
		})
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"b", "a", "c"} {
				_, err := s.Save(ctx, n, "wait(0);")
				require.NoError(t, err)
			}
			require.NoError(t, s.Delete(ctx, "b"))

			list, err := s.List(ctx)
			require.NoError(t, err)
			names := make([]string, len(list))
			for i, sc := range list {
				names[i] = sc.Name
			}
			assert.Equal(t, []string{"a", "c"}, names)
		})
	}
}

func TestStoreRejectsEmptyName(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Save(context.Background(), "  ", "wait(0);")
			assert.ErrorIs(t, err, models.ErrInvalidRequest)
		})
	}
}

func TestRedisLayout(t *testing.T) {
	s, mr := newRedisStore(t)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	_, err := s.Save(context.Background(), "x", "click(\"#x\");")
	require.NoError(t, err)

	raw := mr.HGet(ScriptsKey, "x")
	assert.Contains(t, raw, `"text":"click(\"#x\");"`)
	assert.Contains(t, raw, `"created_at":"2024-05-01T12:00:00Z"`)
}

func TestRedisCorruptEntry(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.HSet(ScriptsKey, "bad", "{not json")

	_, err := s.Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "corrupt script entry")
}
