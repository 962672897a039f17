package models

import (
	"time"
)

// NotificationMedium 通知渠道类型
type NotificationMedium string

const (
	MediumEmail      NotificationMedium = "email"
	MediumPushbullet NotificationMedium = "pushbullet"
)

// NotificationSetting 用户通知渠道（对应 notification_settings 表）
// 每个用户每种渠道只允许一条 (user_id, medium) 唯一
type NotificationSetting struct {
	SettingID string             `json:"setting_id" db:"setting_id"`
	UserID    string             `json:"user_id" db:"user_id"`
	Medium    NotificationMedium `json:"medium" db:"medium"`
	IsEnabled bool               `json:"is_enabled" db:"is_enabled"`

	// 渠道特定配置
	AccessToken string `json:"access_token,omitempty" db:"access_token"` // Pushbullet
	FromEmail   string `json:"from_email,omitempty" db:"from_email"`     // Email
	ToEmail     string `json:"to_email,omitempty" db:"to_email"`         // Email

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NotificationLog 已发送通知记录（对应 notification_logs 表）
type NotificationLog struct {
	NotificationID string    `json:"notification_id" db:"notification_id"`
	SettingID      string    `json:"setting_id" db:"setting_id"`
	Topic          string    `json:"topic" db:"topic"`
	Message        string    `json:"message" db:"message"`
	TriggeredBy    string    `json:"triggered_by" db:"triggered_by"`
	TriggerLogID   *string   `json:"trigger_log_id,omitempty" db:"trigger_log_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
