package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/nao1215/bell/internal/actions"
)

// DirectiveKind はアクティブ化の結果としてクライアントが行う動作の種類。
type DirectiveKind string

const (
	// DirectiveOpenURL はURLを新しいコンテキストで開く。
	DirectiveOpenURL DirectiveKind = "open_url"
	// DirectiveOpenRecord はレコードのフォームを開く。
	DirectiveOpenRecord DirectiveKind = "open_record"
	// DirectiveWindowAction は解決済みのウィンドウアクションを実行する。
	DirectiveWindowAction DirectiveKind = "window_action"
)

// Directive はアクティブ化によって解決されたクライアントへの指示。
type Directive struct {
	Kind     DirectiveKind  `json:"kind"`
	URL      string         `json:"url,omitempty"`
	Target   string         `json:"target,omitempty"`
	Model    string         `json:"res_model,omitempty"`
	RecordID int64          `json:"res_id,omitempty"`
	ViewMode string         `json:"view_mode,omitempty"`
	Action   map[string]any `json:"action,omitempty"`
}

// Activation はアクティブ化の結果。Directive が nil の場合は件数のみの結果。
type Activation struct {
	Directive   *Directive `json:"action"`
	UnreadCount int        `json:"unread_count"`
}

// Activate は通知をアクティブ化する。
//
// 通知が存在しない場合や要求ユーザーの通知でない場合は、未読件数だけを返す。
// 指示を先に解決してから既読化するため、レジストリの解決に失敗した場合は状態を変更しない。
// 非表示にした通知でも所有者であれば指示を返し、既読にする。
func (s *Service) Activate(ctx context.Context, id, userID string) (_ Activation, err error) {
	ctx, span := s.inst.start(ctx, "activate", attrUserID.String(userID), attrNotificationID.String(id))
	defer func() { endSpan(span, err) }()

	n, err := s.store.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Activation{}, err
	}
	if n == nil || n.Recipient != userID {
		count, err := s.store.UnreadCount(ctx, userID)
		if err != nil {
			return Activation{}, err
		}
		return Activation{UnreadCount: count}, nil
	}

	directive, err := s.resolve(ctx, n)
	if err != nil {
		return Activation{}, err
	}

	if n.ReadState == Unread {
		if err := s.store.MarkActivated(ctx, n.ID, userID, s.now()); err != nil {
			return Activation{}, err
		}
	}
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return Activation{}, err
	}

	s.inst.activations.Add(ctx, 1)
	span.SetAttributes(attrActionKind.String(string(actionOrDefault(n.Action).Kind())))
	return Activation{Directive: directive, UnreadCount: count}, nil
}

// resolve は通知のアクションを指示に変換する。指示がない場合は nil を返す。
func (s *Service) resolve(ctx context.Context, n *Notification) (*Directive, error) {
	switch a := actionOrDefault(n.Action).(type) {
	case URLAction:
		if a.URL == "" {
			return nil, nil
		}
		return &Directive{Kind: DirectiveOpenURL, URL: a.URL, Target: "new"}, nil
	case RecordAction:
		if a.Model == "" || a.RecordID <= 0 {
			return nil, nil
		}
		return &Directive{
			Kind:     DirectiveOpenRecord,
			Model:    a.Model,
			RecordID: a.RecordID,
			ViewMode: "form",
			Target:   "current",
		}, nil
	case WindowAction:
		def, err := s.lookupAction(ctx, a)
		if err != nil {
			return nil, err
		}
		if len(def) == 0 {
			return nil, nil
		}
		if a.Context != "" {
			s.mergeContext(def, a.Context, n.ID)
		}
		return &Directive{Kind: DirectiveWindowAction, Action: def}, nil
	default:
		return nil, nil
	}
}

func (s *Service) lookupAction(ctx context.Context, a WindowAction) (actions.Definition, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: レジストリが設定されていません", actions.ErrActionNotFound)
	}
	if a.ActionID > 0 {
		return s.registry.ByID(ctx, a.ActionID)
	}
	if a.XMLID != "" {
		return s.registry.ByName(ctx, a.XMLID)
	}
	return nil, nil
}

// mergeContext は通知に添付されたJSONオブジェクトをアクション定義のcontextへ上書きマージする。
// 解析できないJSONは警告を記録して無視し、アクティブ化は続行する。
func (s *Service) mergeContext(def actions.Definition, raw, notificationID string) {
	var extra map[string]any
	if err := json.Unmarshal([]byte(raw), &extra); err != nil || extra == nil {
		s.logger.Warn().Err(err).
			Str("notification_id", notificationID).
			Str("action_context", raw).
			Msg("アクションコンテキストを解析できないため無視します")
		return
	}

	merged := map[string]any{}
	if base, ok := def["context"].(map[string]any); ok {
		maps.Copy(merged, base)
	}
	maps.Copy(merged, extra)
	def["context"] = merged
}
