package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
actions:
  - id: 1
    name: sales.action_orders
    type: ir.actions.act_window
    res_model: sale.order
    view_mode: tree,form
    context:
      search_default_my: 1
  - id: 2
    type: ir.actions.act_window
    res_model: res.partner
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// TestRegistry_Lookup はIDとシンボル名による定義の解決を検証する。
func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Parse([]byte(sampleYAML)))
	assert.Equal(t, 2, r.Len())

	t.Run("IDで引けること", func(t *testing.T) {
		t.Parallel()
		def, err := r.ByID(t.Context(), 2)
		require.NoError(t, err)
		assert.Equal(t, "res.partner", def["res_model"])
		assert.Equal(t, int64(2), def["id"])
	})

	t.Run("シンボル名で引けること", func(t *testing.T) {
		t.Parallel()
		def, err := r.ByName(t.Context(), "sales.action_orders")
		require.NoError(t, err)
		assert.Equal(t, int64(1), def["id"])
		assert.Equal(t, "sales.action_orders", def["xml_id"])
		assert.Equal(t, map[string]any{"search_default_my": 1}, def["context"])
	})

	t.Run("未登録の名前はErrActionNotFoundになること", func(t *testing.T) {
		t.Parallel()
		_, err := r.ByName(t.Context(), "missing.action")
		assert.ErrorIs(t, err, ErrActionNotFound)

		_, err = r.ByID(t.Context(), 99)
		assert.ErrorIs(t, err, ErrActionNotFound)
	})

	t.Run("返り値を変更してもレジストリに影響しないこと", func(t *testing.T) {
		t.Parallel()
		def, err := r.ByID(t.Context(), 1)
		require.NoError(t, err)
		def["context"].(map[string]any)["search_default_my"] = 0
		def["res_model"] = "changed"

		again, err := r.ByID(t.Context(), 1)
		require.NoError(t, err)
		assert.Equal(t, "sale.order", again["res_model"])
		assert.Equal(t, map[string]any{"search_default_my": 1}, again["context"])
	})
}

// TestRegistry_Parse は不正な定義ファイルの扱いを検証する。
func TestRegistry_Parse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "YAMLとして不正", yaml: "actions: ["},
		{name: "idがない", yaml: "actions:\n  - name: a\n"},
		{name: "idが重複", yaml: "actions:\n  - id: 1\n  - id: 1\n"},
		{name: "名前が重複", yaml: "actions:\n  - id: 1\n    name: a\n  - id: 2\n    name: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry(zerolog.Nop())
			require.NoError(t, r.Parse([]byte(sampleYAML)))

			assert.Error(t, r.Parse([]byte(tt.yaml)))
			// 失敗時は既存の定義が残る
			assert.Equal(t, 2, r.Len())
		})
	}
}

// TestLoad はファイルからの読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("ファイルから読み込めること", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "actions.yaml")
		writeFile(t, path, sampleYAML)

		r, err := Load(path, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, 2, r.Len())
	})

	t.Run("存在しないファイルはエラーになること", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "none.yaml"), zerolog.Nop())
		assert.Error(t, err)
	})
}

// TestRegistry_Watch はファイル変更時の再読み込みを検証する。
func TestRegistry_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "actions.yaml")
	writeFile(t, path, sampleYAML)
	r, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// 監視の開始を待ってから書き換える
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(sampleYAML+"  - id: 3\n    name: extra.action\n"), 0o600); err != nil {
			return false
		}
		return r.Len() == 3
	}, 5*time.Second, 200*time.Millisecond)

	def, err := r.ByName(t.Context(), "extra.action")
	require.NoError(t, err)
	assert.Equal(t, int64(3), def["id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watchが終了しませんでした")
	}
}
