package service

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"
)

type notificationService struct {
	store repository.Store
	now   func() time.Time
}

func NewNotificationService(store repository.Store) NotificationService {
	return &notificationService{store: store, now: time.Now}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.store.Repos().Notifications.List(ctx, userID, pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	return s.store.Repos().Notifications.MarkAsRead(ctx, notificationID, userID)
}

func (s *notificationService) PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.store.Repos().Notifications.PurgeRead(ctx, s.now().Add(-olderThan))
}
