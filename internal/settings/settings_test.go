package settings

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/bell/internal/database/databasetest"
)

func countRows(t *testing.T, s *Store, userID string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.GetContext(t.Context(), &n,
		"SELECT COUNT(*) FROM notification_settings WHERE user_id = ?", userID))
	return n
}

// TestStore_Get は設定の遅延作成を検証する。
func TestStore_Get(t *testing.T) {
	t.Parallel()

	t.Run("初回参照で既定値10の設定が1行だけ作成されること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t))

		first, err := s.Get(t.Context(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", first.UserID)
		assert.Equal(t, 10, first.ListLimit)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := s.Get(t.Context(), "u1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, countRows(t, s, "u1"))
	})

	t.Run("同時に初回参照しても1行に収束すること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t))

		const workers = 16
		ids := make([]int64, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := s.Get(t.Context(), "u-race")
				assert.NoError(t, err)
				ids[i] = got.ID
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, countRows(t, s, "u-race"))
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("WithDefaultLimitで既定値を変更できること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t), WithDefaultLimit(25))

		got, err := s.Get(t.Context(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 25, got.ListLimit)
	})

	t.Run("空のユーザーIDはエラーになること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t))

		_, err := s.Get(t.Context(), "")
		assert.Error(t, err)
	})
}

// TestStore_SetLimit は表示件数の更新を検証する。
func TestStore_SetLimit(t *testing.T) {
	t.Parallel()

	t.Run("未作成のユーザーでも更新できること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t))

		got, err := s.SetLimit(t.Context(), "u1", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, got.ListLimit)

		again, err := s.Get(t.Context(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, again.ListLimit)
		assert.Equal(t, 1, countRows(t, s, "u1"))
	})

	t.Run("0以下はErrInvalidLimitになること", func(t *testing.T) {
		t.Parallel()
		s := NewStore(databasetest.New(t))

		_, err := s.SetLimit(t.Context(), "u1", 0)
		assert.ErrorIs(t, err, ErrInvalidLimit)
		_, err = s.SetLimit(t.Context(), "u1", -5)
		assert.ErrorIs(t, err, ErrInvalidLimit)
		assert.Equal(t, 0, countRows(t, s, "u1"))
	})
}
