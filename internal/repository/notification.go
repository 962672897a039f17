package repository

import (
	"database/sql"
	"fmt"
	"time"

	"smarthub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationRepository 通知渠道与通知记录仓库
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// GetEnabledSettingsForUser 返回用户所有启用的通知渠道
func (r *NotificationRepository) GetEnabledSettingsForUser(userID string) ([]models.NotificationSetting, error) {
	query := `
		SELECT setting_id, user_id, medium, is_enabled,
		       COALESCE(access_token, ''), COALESCE(from_email, ''), COALESCE(to_email, '')
		FROM notification_settings
		WHERE user_id = $1 AND is_enabled = TRUE
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification settings: %w", err)
	}
	defer rows.Close()

	var settings []models.NotificationSetting
	for rows.Next() {
		var setting models.NotificationSetting
		if err := rows.Scan(
			&setting.SettingID,
			&setting.UserID,
			&setting.Medium,
			&setting.IsEnabled,
			&setting.AccessToken,
			&setting.FromEmail,
			&setting.ToEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification setting: %w", err)
		}
		settings = append(settings, setting)
	}

	return settings, rows.Err()
}

// CreateLog 写入一条已发送通知记录
func (r *NotificationRepository) CreateLog(log *models.NotificationLog) error {
	if log.NotificationID == "" {
		log.NotificationID = uuid.NewString()
	}
	now := time.Now()

	var triggerLogID sql.NullString
	if log.TriggerLogID != nil {
		triggerLogID = sql.NullString{String: *log.TriggerLogID, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO notification_logs (notification_id, setting_id, topic, message, triggered_by, trigger_log_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		log.NotificationID,
		log.SettingID,
		log.Topic,
		log.Message,
		log.TriggeredBy,
		triggerLogID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}

	log.CreatedAt = now
	return nil
}
