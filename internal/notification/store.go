package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/bell/internal/database"
)

// columns はnotificationsテーブルから読み出すカラム。
const columns = `id, title, body, recipient_id, sender_id, notification_type, state, read_at, active,
	action_type, res_model, res_id, action_url, action_id, action_xml_id, action_context, created_at`

// notificationRow はnotificationsテーブルの1行。
type notificationRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Body          string         `db:"body"`
	RecipientID   string         `db:"recipient_id"`
	SenderID      string         `db:"sender_id"`
	Type          string         `db:"notification_type"`
	State         string         `db:"state"`
	ReadAt        sql.NullString `db:"read_at"`
	Active        bool           `db:"active"`
	ActionType    string         `db:"action_type"`
	ResModel      string         `db:"res_model"`
	ResID         int64          `db:"res_id"`
	ActionURL     string         `db:"action_url"`
	ActionID      int64          `db:"action_id"`
	ActionXMLID   string         `db:"action_xml_id"`
	ActionContext string         `db:"action_context"`
	CreatedAt     string         `db:"created_at"`
}

// toRow は通知を保存用の行に変換する。
func toRow(n *Notification) notificationRow {
	row := notificationRow{
		ID:          n.ID,
		Title:       n.Title,
		Body:        n.Body,
		RecipientID: n.Recipient,
		SenderID:    n.Sender,
		Type:        string(n.Type),
		State:       string(n.ReadState),
		Active:      n.Active,
		CreatedAt:   database.FormatTime(n.CreatedAt),
	}
	if n.ReadAt != nil {
		row.ReadAt = sql.NullString{String: database.FormatTime(*n.ReadAt), Valid: true}
	}

	switch a := actionOrDefault(n.Action).(type) {
	case MessageAction:
		row.ActionType = string(ActionKindMessage)
	case RecordAction:
		row.ActionType = string(ActionKindRecord)
		row.ResModel = a.Model
		row.ResID = a.RecordID
	case URLAction:
		row.ActionType = string(ActionKindURL)
		row.ActionURL = a.URL
	case WindowAction:
		row.ActionType = string(ActionKindWindow)
		row.ActionID = a.ActionID
		row.ActionXMLID = a.XMLID
		row.ActionContext = a.Context
	}
	return row
}

// toNotification は行を通知に変換する。
func (r notificationRow) toNotification() (*Notification, error) {
	createdAt, err := database.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		ID:        r.ID,
		Title:     r.Title,
		Body:      r.Body,
		Recipient: r.RecipientID,
		Sender:    r.SenderID,
		Type:      Type(r.Type),
		ReadState: ReadState(r.State),
		Active:    r.Active,
		CreatedAt: createdAt,
	}
	if r.ReadAt.Valid {
		readAt, err := database.ParseTime(r.ReadAt.String)
		if err != nil {
			return nil, err
		}
		n.ReadAt = &readAt
	}

	switch ActionKind(r.ActionType) {
	case ActionKindRecord:
		n.Action = RecordAction{Model: r.ResModel, RecordID: r.ResID}
	case ActionKindURL:
		n.Action = URLAction{URL: r.ActionURL}
	case ActionKindWindow:
		n.Action = WindowAction{ActionID: r.ActionID, XMLID: r.ActionXMLID, Context: r.ActionContext}
	default:
		n.Action = MessageAction{}
	}
	return n, nil
}

// Store はnotificationsテーブルに対する通知ストア。
// 状態遷移はすべて「現在の状態が遷移元のときだけ更新する」条件付きUPDATEで行うため、
// 同じ操作を同時に繰り返しても同じ状態に収束する。
type Store struct {
	db *sqlx.DB
}

// NewStore は新しい通知ストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create は通知を保存する。
func (s *Store) Create(ctx context.Context, n *Notification) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+columns+`)
		VALUES (:id, :title, :body, :recipient_id, :sender_id, :notification_type, :state, :read_at, :active,
			:action_type, :res_model, :res_id, :action_url, :action_id, :action_xml_id, :action_context, :created_at)`,
		toRow(n),
	)
	if err != nil {
		return fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return nil
}

// Get はIDで通知を取得する。非表示の通知も返す。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, "SELECT "+columns+" FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("通知 %s の取得に失敗: %w", id, err)
	}
	return row.toNotification()
}

// MarkRead はユーザーが所有する未読の通知を既読にし、更新件数を返す。
// 所有していない通知、存在しない通知、非表示の通知は無視する。
func (s *Store) MarkRead(ctx context.Context, ids []string, userID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications SET state = 'read', read_at = ?
		WHERE recipient_id = ? AND active = 1 AND state = 'unread' AND id IN (?)`,
		database.FormatTime(at), userID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("既読化クエリの構築に失敗: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return res.RowsAffected()
}

// MarkActivated はアクティブ化された通知を既読にする。
// 非表示の通知も対象にする点がMarkReadと異なる。
func (s *Store) MarkActivated(ctx context.Context, id, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET state = 'read', read_at = ?
		WHERE id = ? AND recipient_id = ? AND state = 'unread'`,
		database.FormatTime(at), id, userID,
	)
	if err != nil {
		return fmt.Errorf("通知 %s の既読化に失敗: %w", id, err)
	}
	return nil
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET state = 'read', read_at = ?
		WHERE recipient_id = ? AND active = 1 AND state = 'unread'`,
		database.FormatTime(at), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読化に失敗: %w", err)
	}
	return res.RowsAffected()
}

// MarkUnread はユーザーが所有する既読の通知を未読に戻す。
// 通知がユーザーの表示中の通知であればtrueを返す（すでに未読の場合も含む）。
func (s *Store) MarkUnread(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET state = 'unread', read_at = NULL
		WHERE id = ? AND recipient_id = ? AND active = 1 AND state = 'read'`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("通知 %s の未読化に失敗: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("通知 %s の未読化結果の取得に失敗: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}

	var owned bool
	if err := s.db.GetContext(ctx, &owned,
		"SELECT EXISTS (SELECT 1 FROM notifications WHERE id = ? AND recipient_id = ? AND active = 1)", id, userID,
	); err != nil {
		return false, fmt.Errorf("通知 %s の所有者確認に失敗: %w", id, err)
	}
	return owned, nil
}

// Dismiss はユーザーが所有する表示中の通知を非表示にする。
// 非表示にした場合だけtrueを返すため、2回目以降の呼び出しはfalseになる。
func (s *Store) Dismiss(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET active = 0 WHERE id = ? AND recipient_id = ? AND active = 1",
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("通知 %s の非表示化に失敗: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("通知 %s の非表示化結果の取得に失敗: %w", id, err)
	}
	return n > 0, nil
}

// UnreadCount はユーザーの表示中かつ未読の通知件数を毎回数え直して返す。
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND active = 1 AND state = 'unread'", userID,
	); err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗: %w", err)
	}
	return count, nil
}

// ListRecent はユーザーの表示中の通知を新しい順に最大limit件返す。
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		return []*Notification{}, nil
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+columns+` FROM notifications
		WHERE recipient_id = ? AND active = 1
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit,
	); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	out := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
