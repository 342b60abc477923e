package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/bell/internal/actions"
	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/livechannel"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/internal/settings"
	"github.com/nao1215/bell/pkg/middleware"
)

// writeError はエラーの種類に応じたステータスコードでエラーレスポンスを返す。
func (s *Server) writeError(c *gin.Context, err error, msg string) {
	var verrs validator.ValidationErrors
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, notification.ErrInvalidAction),
		errors.Is(err, notification.ErrUnknownUser),
		errors.Is(err, settings.ErrInvalidLimit),
		errors.Is(err, directory.ErrInvalidUser):
		status = http.StatusBadRequest
	case errors.Is(err, actions.ErrActionNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", msg, err)})
}

// requireUser は要求ユーザーIDを返す。取得できない場合は401を返してfalseを返す。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// handleGetNotifications は最新の通知一覧と未読件数を返すハンドラ。
// limit を省略した場合はユーザー設定の表示件数を使う。
func (s *Server) handleGetNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは0以上の整数で指定してください"})
				return
			}
			limit = n
		}

		result, err := s.query.Notifications(c.Request.Context(), userID, limit)
		if err != nil {
			s.writeError(c, err, "通知一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// markAsReadRequest は既読化リクエストのJSON構造。
type markAsReadRequest struct {
	// NotificationID は既読にする通知のID。
	NotificationID string `json:"notification_id"`
	// NotificationIDs は既読にする通知のIDの一覧。
	NotificationIDs []string `json:"notification_ids"`
	// AllNotifications がtrueの場合は未読通知をすべて既読にする。
	AllNotifications bool `json:"all_notifications"`
}

// handleMarkAsRead は通知を既読にするハンドラ。
// 他人の通知や存在しない通知は無視し、常にsuccess=trueを返す。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req markAsReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		var (
			count int
			err   error
		)
		if req.AllNotifications {
			count, err = s.notifications.MarkAllRead(c.Request.Context(), userID)
		} else {
			ids := req.NotificationIDs
			if req.NotificationID != "" {
				ids = append(ids, req.NotificationID)
			}
			count, err = s.notifications.MarkRead(c.Request.Context(), ids, userID)
		}
		if err != nil {
			s.writeError(c, err, "通知の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "unread_count": count})
	}
}

// notificationIDRequest は通知IDだけを受け取るリクエストのJSON構造。
type notificationIDRequest struct {
	// NotificationID は対象の通知ID。
	NotificationID string `json:"notification_id" binding:"required"`
}

// handleMarkAsUnread は通知を未読に戻すハンドラ。
func (s *Server) handleMarkAsUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req notificationIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if _, err := s.notifications.MarkUnread(c.Request.Context(), req.NotificationID, userID); err != nil {
			s.writeError(c, err, "通知の未読処理に失敗しました")
			return
		}
		count, err := s.notifications.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err, "未読件数の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "unread_count": count})
	}
}

// handleUnreadCount は未読件数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		count, err := s.notifications.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err, "未読件数の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread_count": count})
	}
}

// handleDismiss は通知を非表示にするハンドラ。
func (s *Server) handleDismiss() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req notificationIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		dismissed, count, err := s.notifications.Dismiss(c.Request.Context(), req.NotificationID, userID)
		if err != nil {
			s.writeError(c, err, "通知の非表示処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": dismissed, "unread_count": count})
	}
}

// handleActivate は通知をアクティブ化し、クライアントへの指示と未読件数を返すハンドラ。
func (s *Server) handleActivate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req notificationIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		result, err := s.notifications.Activate(c.Request.Context(), req.NotificationID, userID)
		if err != nil {
			s.writeError(c, err, "通知のアクティブ化に失敗しました")
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleStream は要求ユーザーのチャネルに届いた新着通知をSSEで中継するハンドラ。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		if s.subscriber == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "現在のトランスポートはストリーム配信に対応していません"})
			return
		}

		ctx := c.Request.Context()
		events, err := s.subscriber.Subscribe(ctx, livechannel.ChannelKey(userID))
		if err != nil {
			s.writeError(c, err, "ストリームの購読に失敗しました")
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.SSEvent(string(ev.Type), ev.Payload)
				c.Writer.Flush()
			case <-ticker.C:
				if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			}
		}
	}
}

// handleGetSettings は要求ユーザーの設定を返すハンドラ。未作成なら既定値で作成する。
func (s *Server) handleGetSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		st, err := s.settings.Get(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err, "設定の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// updateSettingsRequest は設定更新リクエストのJSON構造。
type updateSettingsRequest struct {
	// NotificationsLimit は一覧の表示件数。
	NotificationsLimit int `json:"notifications_limit" binding:"required"`
}

// handleUpdateSettings は要求ユーザーの表示件数を更新するハンドラ。
func (s *Server) handleUpdateSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req updateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		st, err := s.settings.SetLimit(c.Request.Context(), userID, req.NotificationsLimit)
		if err != nil {
			s.writeError(c, err, "設定の更新に失敗しました")
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// actionRequest は送信する通知のアクション指定。
type actionRequest struct {
	// Type はアクションの種類（message, record, url, window）。
	Type string `json:"type"`
	// URL はurlアクションのURL。
	URL string `json:"url"`
	// ResModel と ResID はrecordアクションの対象。
	ResModel string `json:"res_model"`
	ResID    int64  `json:"res_id"`
	// ActionID と ActionXMLID はwindowアクションの参照。
	ActionID    int64  `json:"action_id"`
	ActionXMLID string `json:"action_xml_id"`
	// Context はwindowアクションのコンテキストにマージする値。
	Context map[string]any `json:"context"`
}

// sendRequest は通知送信リクエストのJSON構造。送信者は要求ユーザー。
type sendRequest struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id" binding:"required"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required"`
	// Body は通知本文。
	Body string `json:"body" binding:"required"`
	// Type は通知の種類。省略時はinfo。
	Type string `json:"type"`
	// Action は通知のアクション。省略時はmessage。
	Action *actionRequest `json:"action"`
}

// notificationResponse は送信した通知のJSONレスポンス構造。
type notificationResponse struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Type        string `json:"type"`
	State       string `json:"state"`
	ActionType  string `json:"action_type"`
	CreatedAt   string `json:"created_at"`
}

// handleSend は要求ユーザーを送信者として通知を送信するハンドラ。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		senderID, ok := requireUser(c)
		if !ok {
			return
		}

		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		ctx := c.Request.Context()
		typ := notification.Type(req.Type)
		var (
			n   *notification.Notification
			err error
		)
		switch a := req.Action; {
		case a == nil || a.Type == "" || a.Type == string(notification.ActionKindMessage):
			n, err = s.notifications.Send(ctx, notification.SendParams{
				Recipient: req.RecipientID, Sender: senderID, Title: req.Title, Body: req.Body, Type: typ,
			})
		case a.Type == string(notification.ActionKindRecord):
			n, err = s.notifications.SendRecord(ctx, req.RecipientID, senderID, req.Title, req.Body, a.ResModel, a.ResID, typ)
		case a.Type == string(notification.ActionKindURL):
			n, err = s.notifications.SendURL(ctx, req.RecipientID, senderID, req.Title, req.Body, a.URL, typ)
		case a.Type == string(notification.ActionKindWindow):
			n, err = s.notifications.SendWindow(ctx, req.RecipientID, senderID, req.Title, req.Body, a.ActionID, a.ActionXMLID, a.Context, typ)
		default:
			err = fmt.Errorf("%w: 未知の種類 %q", notification.ErrInvalidAction, a.Type)
		}
		if err != nil {
			s.writeError(c, err, "通知の送信に失敗しました")
			return
		}

		c.JSON(http.StatusCreated, notificationResponse{
			ID:          n.ID,
			RecipientID: n.Recipient,
			SenderID:    n.Sender,
			Title:       n.Title,
			Body:        n.Body,
			Type:        string(n.Type),
			State:       string(n.ReadState),
			ActionType:  string(n.Action.Kind()),
			CreatedAt:   n.CreatedAt.Format(time.RFC3339Nano),
		})
	}
}

// upsertUserRequest はユーザー登録リクエストのJSON構造。
type upsertUserRequest struct {
	// Name は表示名。
	Name string `json:"name" binding:"required"`
	// TZ はIANAタイムゾーン名。
	TZ string `json:"tz"`
}

// handleUpsertUser は要求ユーザー自身の表示名とタイムゾーンを登録または更新するハンドラ。
// 他のユーザーの更新は403で拒否する。
func (s *Server) handleUpsertUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		if c.Param("id") != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "他のユーザーの情報は更新できません"})
			return
		}

		var req upsertUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u := directory.User{ID: userID, Name: req.Name, TZ: req.TZ}
		if err := s.users.Upsert(c.Request.Context(), u); err != nil {
			s.writeError(c, err, "ユーザーの登録に失敗しました")
			return
		}
		c.JSON(http.StatusOK, u)
	}
}
