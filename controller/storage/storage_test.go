package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{"bolt": bolt, "mem": NewMemStore()}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateBucket("things"))
			require.NoError(t, s.Put("things", "a", record{ID: "a", Name: "first"}))

			var r record
			require.NoError(t, s.Get("things", "a", &r))
			assert.Equal(t, record{ID: "a", Name: "first"}, r)

			assert.Error(t, s.Get("things", "missing", &r))
			assert.Error(t, s.Get("nonexistent", "a", &r))
		})
	}
}

func TestStoreCreateAssignsSequentialIDs(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateBucket("things"))
			var ids []string
			for i := 0; i < 3; i++ {
				require.NoError(t, s.Create("things", func(id string) interface{} {
					ids = append(ids, id)
					return record{ID: id}
				}))
			}
			assert.Equal(t, []string{"1", "2", "3"}, ids)
		})
	}
}

func TestStoreListAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateBucket("things"))
			require.NoError(t, s.Put("things", "b", record{ID: "b"}))
			require.NoError(t, s.Put("things", "a", record{ID: "a"}))

			var seen []string
			require.NoError(t, s.List("things", func(id string, _ []byte) error {
				seen = append(seen, id)
				return nil
			}))
			assert.Equal(t, []string{"a", "b"}, seen)

			require.NoError(t, s.Delete("things", "a"))
			seen = nil
			require.NoError(t, s.List("things", func(id string, _ []byte) error {
				seen = append(seen, id)
				return nil
			}))
			assert.Equal(t, []string{"b"}, seen)
		})
	}
}

func TestCreateBucketIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateBucket("things"))
			require.NoError(t, s.Put("things", "a", record{ID: "a"}))
			require.NoError(t, s.CreateBucket("things"))

			var r record
			assert.NoError(t, s.Get("things", "a", &r))
		})
	}
}
