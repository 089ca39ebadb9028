package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"grant-review-api/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NotificationService exposes a user's notifications. Every mutation is
// restricted to the notification's owner.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

type NotificationFilter struct {
	UserID   string
	Read     *bool
	Priority models.Priority
	Limit    int
	Offset   int
}

type NotificationPage struct {
	Items  []models.Notification `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns one page of notifications, newest first. Users may only list
// their own; admins may list anyone's.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, f NotificationFilter) (*NotificationPage, error) {
	userID := strings.TrimSpace(f.UserID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, newError(KindNotOwner, "cannot list another user's notifications")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, newError(KindInvalidInput, "unknown priority %q", f.Priority)
	}

	q := withContext(ctx, s.db).Model(&models.Notification{}).Where("user_id = ?", userID)
	if f.Read != nil {
		q = q.Where("is_read = ?", *f.Read)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, storageError(err, "count notifications")
	}

	limit, offset := clampPage(f.Limit, f.Offset)
	items := make([]models.Notification, 0, limit)
	if err := q.Order("created_at DESC").Order("notification_id DESC").
		Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, storageError(err, "list notifications")
	}

	return &NotificationPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *NotificationService) owned(tx *gorm.DB, actor models.Actor, id string) (*models.Notification, error) {
	var n models.Notification
	if err := tx.Where("notification_id = ?", id).First(&n).Error; err != nil {
		return nil, storageError(err, "notification")
	}
	if n.UserID != actor.UserID {
		return nil, newError(KindNotOwner, "notification belongs to another user")
	}
	return &n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Notification, error) {
	tx := withContext(ctx, s.db)
	n, err := s.owned(tx, actor, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	if err := tx.Model(&models.Notification{}).
		Where("notification_id = ?", n.ID).
		Update("is_read", true).Error; err != nil {
		return nil, storageError(err, "mark notification read")
	}
	n.Read = true
	return n, nil
}

// MarkAllRead marks every unread notification of the actor and returns how
// many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	res := withContext(ctx, s.db).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.UserID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, storageError(res.Error, "mark all notifications read")
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, actor models.Actor, id string) error {
	tx := withContext(ctx, s.db)
	n, err := s.owned(tx, actor, id)
	if err != nil {
		return err
	}
	if err := tx.Where("notification_id = ?", n.ID).Delete(&models.Notification{}).Error; err != nil {
		return storageError(err, "delete notification")
	}
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor models.Actor) (int64, error) {
	var n int64
	if err := withContext(ctx, s.db).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.UserID, false).
		Count(&n).Error; err != nil {
		return 0, storageError(err, "count unread notifications")
	}
	return n, nil
}
