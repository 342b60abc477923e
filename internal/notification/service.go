package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/bell/internal/actions"
	"github.com/nao1215/bell/internal/directory"
)

// userDirectory はユーザーの存在確認と表示名の解決を行う。
type userDirectory interface {
	Get(ctx context.Context, id string) (directory.User, error)
}

// ActionRegistry はウィンドウアクションの定義を解決する。
type ActionRegistry interface {
	ByID(ctx context.Context, id int64) (actions.Definition, error)
	ByName(ctx context.Context, name string) (actions.Definition, error)
}

// publisher は作成直後の通知を配信する。
type publisher interface {
	Publish(ctx context.Context, n *Notification)
}

// SendParams は通知送信のパラメータ。
type SendParams struct {
	Recipient string `validate:"required"`
	Sender    string `validate:"required"`
	Title     string `validate:"required"`
	Body      string `validate:"required"`
	Type      Type   `validate:"omitempty,oneof=info success warning danger"`
	// Action が nil の場合は MessageAction として扱う。
	Action Action
}

// Service は通知のライフサイクル操作を提供する。
type Service struct {
	store     *Store
	users     userDirectory
	publisher publisher
	registry  ActionRegistry
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
	inst      instruments
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithClock は現在時刻の取得方法を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService は新しい通知サービスを生成する。
func NewService(
	store *Store,
	users userDirectory,
	pub publisher,
	registry ActionRegistry,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		users:     users,
		publisher: pub,
		registry:  registry,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
		inst:      newInstruments(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send は通知を作成して保存し、受信者のライブチャネルへ配信する。
// 配信の失敗は通知の作成結果に影響しない。
func (s *Service) Send(ctx context.Context, p SendParams) (_ *Notification, err error) {
	ctx, span := s.inst.start(ctx, "send", attrUserID.String(p.Recipient))
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("送信パラメータが不正です: %w", err)
	}
	action, err := normalizeAction(p.Action)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{p.Recipient, p.Sender} {
		if _, err := s.users.Get(ctx, id); err != nil {
			if errors.Is(err, directory.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
			}
			return nil, err
		}
	}

	typ := p.Type
	if typ == "" {
		typ = TypeInfo
	}
	n := &Notification{
		ID:        uuid.New().String(),
		Title:     p.Title,
		Body:      p.Body,
		Recipient: p.Recipient,
		Sender:    p.Sender,
		Type:      typ,
		ReadState: Unread,
		Active:    true,
		Action:    action,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	s.inst.sent.Add(ctx, 1)
	span.SetAttributes(attrNotificationID.String(n.ID), attrActionKind.String(string(action.Kind())))

	// 保存が確定した後に配信する。
	s.publisher.Publish(ctx, n)
	return n, nil
}

// SendRecord はレコードを開く通知を送信する。
func (s *Service) SendRecord(ctx context.Context, recipient, sender, title, body, model string, recordID int64, typ Type) (*Notification, error) {
	return s.Send(ctx, SendParams{
		Recipient: recipient, Sender: sender, Title: title, Body: body, Type: typ,
		Action: RecordAction{Model: model, RecordID: recordID},
	})
}

// SendURL はURLを開く通知を送信する。
func (s *Service) SendURL(ctx context.Context, recipient, sender, title, body, rawURL string, typ Type) (*Notification, error) {
	return s.Send(ctx, SendParams{
		Recipient: recipient, Sender: sender, Title: title, Body: body, Type: typ,
		Action: URLAction{URL: rawURL},
	})
}

// SendWindow はウィンドウアクションを呼び出す通知を送信する。
// actionContext が空でない場合はJSONとして保存する。
func (s *Service) SendWindow(
	ctx context.Context,
	recipient, sender, title, body string,
	actionID int64,
	xmlID string,
	actionContext map[string]any,
	typ Type,
) (*Notification, error) {
	action := WindowAction{ActionID: actionID, XMLID: xmlID}
	if len(actionContext) > 0 {
		b, err := json.Marshal(actionContext)
		if err != nil {
			return nil, fmt.Errorf("%w: コンテキストのシリアライズに失敗: %v", ErrInvalidAction, err)
		}
		action.Context = string(b)
	}
	return s.Send(ctx, SendParams{
		Recipient: recipient, Sender: sender, Title: title, Body: body, Type: typ,
		Action: action,
	})
}

// Get はIDで通知を取得する。非表示の通知も返す。
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	return s.store.Get(ctx, id)
}

// MarkRead は指定された通知のうちユーザーが所有するものを既読にし、未読件数を返す。
func (s *Service) MarkRead(ctx context.Context, ids []string, userID string) (_ int, err error) {
	ctx, span := s.inst.start(ctx, "mark_read", attrUserID.String(userID))
	defer func() { endSpan(span, err) }()

	if _, err := s.store.MarkRead(ctx, ids, userID, s.now()); err != nil {
		return 0, err
	}
	return s.store.UnreadCount(ctx, userID)
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、未読件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (_ int, err error) {
	ctx, span := s.inst.start(ctx, "mark_all_read", attrUserID.String(userID))
	defer func() { endSpan(span, err) }()

	if _, err := s.store.MarkAllRead(ctx, userID, s.now()); err != nil {
		return 0, err
	}
	return s.store.UnreadCount(ctx, userID)
}

// MarkUnread は既読の通知を未読に戻す。通知がユーザーの表示中の通知であればtrueを返す。
func (s *Service) MarkUnread(ctx context.Context, id, userID string) (_ bool, err error) {
	ctx, span := s.inst.start(ctx, "mark_unread", attrUserID.String(userID), attrNotificationID.String(id))
	defer func() { endSpan(span, err) }()

	return s.store.MarkUnread(ctx, id, userID)
}

// Dismiss は通知を非表示にし、成否と未読件数を返す。
// 所有していない通知や非表示済みの通知は success=false となる。
func (s *Service) Dismiss(ctx context.Context, id, userID string) (_ bool, _ int, err error) {
	ctx, span := s.inst.start(ctx, "dismiss", attrUserID.String(userID), attrNotificationID.String(id))
	defer func() { endSpan(span, err) }()

	ok, err := s.store.Dismiss(ctx, id, userID)
	if err != nil {
		return false, 0, err
	}
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return ok, count, nil
}

// UnreadCount はユーザーの未読件数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

// ListRecent はユーザーの表示中の通知を新しい順に最大limit件返す。
func (s *Service) ListRecent(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	return s.store.ListRecent(ctx, userID, limit)
}

// normalizeAction はアクションを値型にそろえ、必須項目を検証する。
func normalizeAction(a Action) (Action, error) {
	switch v := a.(type) {
	case nil:
		return MessageAction{}, nil
	case *MessageAction:
		return MessageAction{}, nil
	case *RecordAction:
		return normalizeAction(*v)
	case *URLAction:
		return normalizeAction(*v)
	case *WindowAction:
		return normalizeAction(*v)
	case MessageAction:
		return v, nil
	case RecordAction:
		if strings.TrimSpace(v.Model) == "" || v.RecordID <= 0 {
			return nil, fmt.Errorf("%w: recordにはモデル名と正のレコードIDが必要です", ErrInvalidAction)
		}
		return v, nil
	case URLAction:
		u, err := url.Parse(v.URL)
		if err != nil || v.URL == "" || (u.Scheme == "" && !strings.HasPrefix(v.URL, "/")) {
			return nil, fmt.Errorf("%w: 不正なURLです: %q", ErrInvalidAction, v.URL)
		}
		return v, nil
	case WindowAction:
		if v.ActionID <= 0 && strings.TrimSpace(v.XMLID) == "" {
			return nil, fmt.Errorf("%w: windowにはアクションIDまたはシンボル名が必要です", ErrInvalidAction)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: 未知のアクション %T", ErrInvalidAction, a)
	}
}
