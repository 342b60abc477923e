package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/bell/internal/database/databasetest"
	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/internal/settings"
)

type testEnv struct {
	facade        *Facade
	notifications *notification.Store
	settings      *settings.Store
	users         *directory.Store
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := databasetest.New(t)
	env := &testEnv{
		notifications: notification.NewStore(db),
		settings:      settings.NewStore(db),
		users:         directory.NewStore(db),
	}
	env.facade = NewFacade(env.notifications, env.settings, env.users)

	require.NoError(t, env.users.Upsert(t.Context(), directory.User{ID: "u1", Name: "Alice"}))
	require.NoError(t, env.users.Upsert(t.Context(), directory.User{ID: "u2", Name: "Bob", TZ: "Asia/Tokyo"}))
	return env
}

// create はcreatedAtを指定して通知を保存する。
func (e *testEnv) create(t *testing.T, id, recipient, sender string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, e.notifications.Create(t.Context(), &notification.Notification{
		ID:        id,
		Title:     "title " + id,
		Body:      "body " + id,
		Recipient: recipient,
		Sender:    sender,
		Type:      notification.TypeInfo,
		ReadState: notification.Unread,
		Active:    true,
		CreatedAt: createdAt,
	}))
}

// TestFacade_Notifications は一覧取得の結果を検証する。
func TestFacade_Notifications(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 31, 20, 30, 0, 0, time.UTC)

	t.Run("ユーザーのタイムゾーンで作成日時を表示すること", func(t *testing.T) {
		t.Parallel()
		env := setup(t)
		env.create(t, "n1", "u2", "u1", base)

		got, err := env.facade.Notifications(t.Context(), "u2", 0)
		require.NoError(t, err)
		require.Len(t, got.Notifications, 1)
		assert.Equal(t, Item{
			ID:         "n1",
			Name:       "title n1",
			Message:    "body n1",
			CreateDate: "2026-02-01 05:30:00",
			State:      "unread",
			Type:       "info",
			SenderName: "Alice",
			SenderID:   "u1",
		}, got.Notifications[0])
		assert.Equal(t, 1, got.UnreadCount)
	})

	t.Run("タイムゾーン未設定のユーザーはUTCで表示すること", func(t *testing.T) {
		t.Parallel()
		env := setup(t)
		env.create(t, "n1", "u1", "u2", base)

		got, err := env.facade.Notifications(t.Context(), "u1", 0)
		require.NoError(t, err)
		require.Len(t, got.Notifications, 1)
		assert.Equal(t, "2026-01-31 20:30:00", got.Notifications[0].CreateDate)
		assert.Equal(t, "Bob", got.Notifications[0].SenderName)
	})

	t.Run("既定では設定の表示件数で切り詰め新しい順に返すこと", func(t *testing.T) {
		t.Parallel()
		env := setup(t)
		for i := range 15 {
			env.create(t, fmt.Sprintf("n%02d", i), "u2", "u1", base.Add(time.Duration(i)*time.Minute))
		}

		got, err := env.facade.Notifications(t.Context(), "u2", 0)
		require.NoError(t, err)
		require.Len(t, got.Notifications, 10)
		assert.Equal(t, "n14", got.Notifications[0].ID)
		assert.Equal(t, "n05", got.Notifications[9].ID)
		assert.Equal(t, 15, got.UnreadCount)
		assert.Equal(t, 10, got.Settings.NotificationsLimit)
	})

	t.Run("指定した件数が設定より優先されること", func(t *testing.T) {
		t.Parallel()
		env := setup(t)
		for i := range 5 {
			env.create(t, fmt.Sprintf("n%d", i), "u2", "u1", base.Add(time.Duration(i)*time.Minute))
		}
		_, err := env.settings.SetLimit(t.Context(), "u2", 4)
		require.NoError(t, err)

		got, err := env.facade.Notifications(t.Context(), "u2", 2)
		require.NoError(t, err)
		assert.Len(t, got.Notifications, 2)
		assert.Equal(t, 4, got.Settings.NotificationsLimit)

		got, err = env.facade.Notifications(t.Context(), "u2", 0)
		require.NoError(t, err)
		assert.Len(t, got.Notifications, 4)
	})

	t.Run("通知がないユーザーは空の一覧を返し設定を作成すること", func(t *testing.T) {
		t.Parallel()
		env := setup(t)

		got, err := env.facade.Notifications(t.Context(), "newcomer", 0)
		require.NoError(t, err)
		assert.NotNil(t, got.Notifications)
		assert.Empty(t, got.Notifications)
		assert.Equal(t, 0, got.UnreadCount)
		assert.Equal(t, 10, got.Settings.NotificationsLimit)
	})

	t.Run("ディレクトリにいない送信者の表示名は空になること", func(t *testing.T) {
		t.Parallel()
		env := setup(t)
		env.create(t, "n1", "u2", "deleted-user", base)

		got, err := env.facade.Notifications(t.Context(), "u2", 0)
		require.NoError(t, err)
		require.Len(t, got.Notifications, 1)
		assert.Empty(t, got.Notifications[0].SenderName)
		assert.Equal(t, "deleted-user", got.Notifications[0].SenderID)
	})
}

// TestLocalize は表示形式への変換を検証する。
func TestLocalize(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "2026-06-01 12:00:00", Localize(ts, nil))
	assert.Equal(t, "2026-06-01 08:00:00", Localize(ts, ny))
}
