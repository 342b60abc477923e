package actions

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrActionNotFound はアクション定義が登録されていないことを表す。
var ErrActionNotFound = errors.New("アクションが登録されていません")

// Definition はアクション定義。クライアントへそのまま返せる構造化データ。
type Definition map[string]any

// Clone はネストしたマップとスライスを含めて定義を複製する。
func (d Definition) Clone() Definition {
	if d == nil {
		return nil
	}
	return Definition(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// entry はYAMLファイル上の1件の定義。
type entry struct {
	ID     int64          `yaml:"id"`
	Name   string         `yaml:"name"`
	Fields map[string]any `yaml:",inline"`
}

// file はレジストリファイルの形式。
type file struct {
	Actions []entry `yaml:"actions"`
}

// Registry はアクション定義のレジストリ。並行に参照・再読み込みできる。
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]Definition
	byName map[string]Definition

	path   string
	logger zerolog.Logger
}

// NewRegistry は空のレジストリを生成する。
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byID:   map[int64]Definition{},
		byName: map[string]Definition{},
		logger: logger,
	}
}

// Load はYAMLファイルから定義を読み込んだレジストリを生成する。
func Load(path string, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	r.path = path
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse はYAMLの内容でレジストリの定義を置き換える。
// 解析に失敗した場合は既存の定義を保持する。
func (r *Registry) Parse(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("アクション定義の解析に失敗: %w", err)
	}

	byID := make(map[int64]Definition, len(f.Actions))
	byName := make(map[string]Definition, len(f.Actions))
	for i, e := range f.Actions {
		if e.ID <= 0 {
			return fmt.Errorf("%d番目のアクション定義に正のidがありません", i+1)
		}
		if _, dup := byID[e.ID]; dup {
			return fmt.Errorf("アクションID %d が重複しています", e.ID)
		}

		def := Definition{}
		maps.Copy(def, e.Fields)
		def["id"] = e.ID
		if e.Name != "" {
			if _, dup := byName[e.Name]; dup {
				return fmt.Errorf("アクション名 %q が重複しています", e.Name)
			}
			def["xml_id"] = e.Name
			byName[e.Name] = def
		}
		byID[e.ID] = def
	}

	r.mu.Lock()
	r.byID, r.byName = byID, byName
	r.mu.Unlock()
	return nil
}

// Reload は読み込み元のファイルから定義を再読み込みする。
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("アクション定義ファイル %s の読み込みに失敗: %w", r.path, err)
	}
	if err := r.Parse(data); err != nil {
		return err
	}
	r.logger.Info().Str("path", r.path).Int("actions", r.Len()).Msg("アクション定義を読み込みました")
	return nil
}

// Len は登録されている定義の件数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ByID は数値IDで定義を引く。返り値は複製なので呼び出し元が変更してよい。
func (r *Registry) ByID(_ context.Context, id int64) (Definition, error) {
	r.mu.RLock()
	def, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrActionNotFound, id)
	}
	return def.Clone(), nil
}

// ByName はシンボル名で定義を引く。返り値は複製なので呼び出し元が変更してよい。
func (r *Registry) ByName(_ context.Context, name string) (Definition, error) {
	r.mu.RLock()
	def, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return def.Clone(), nil
}

// reloadDebounce はエディタの連続書き込みをまとめる待ち時間。
const reloadDebounce = 100 * time.Millisecond

// Watch は定義ファイルの変更を監視し、変更があれば再読み込みする。
// ctx がキャンセルされるまでブロックする。再読み込みに失敗した場合は直前の定義を使い続ける。
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return errors.New("監視対象のファイルが指定されていません")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の開始に失敗: %w", err)
	}
	defer watcher.Close()

	// ファイルの置き換えにも追従するためディレクトリを監視する
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("ディレクトリ %s の監視に失敗: %w", filepath.Dir(r.path), err)
	}
	target := filepath.Clean(r.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn().Err(err).Msg("アクション定義の再読み込みに失敗しました")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("ファイル監視でエラーが発生しました")
		}
	}
}
