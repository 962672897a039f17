package models

import (
	"fmt"
	"time"
)

// TriggerType 触发条件比较类型
type TriggerType string

const (
	TriggerEqual              TriggerType = "equal"
	TriggerNotEqual           TriggerType = "not_equal"
	TriggerLessThan           TriggerType = "less_than"
	TriggerLessThanOrEqual    TriggerType = "less_than_or_equal"
	TriggerGreaterThanOrEqual TriggerType = "greater_than_or_equal"
	TriggerGreaterThan        TriggerType = "greater_than"
)

// Event 用户定义的事件（对应 events 表）
// 一个事件拥有 N 个触发条件和 N 个响应映射
type Event struct {
	EventID             string    `json:"event_id" db:"event_id"`
	UserID              string    `json:"user_id" db:"user_id"`
	Description         string    `json:"description" db:"description"`
	IsEnabled           bool      `json:"is_enabled" db:"is_enabled"`
	SendNotification    bool      `json:"send_notification" db:"send_notification"`
	NotificationTopic   string    `json:"notification_topic" db:"notification_topic"`
	NotificationMessage string    `json:"notification_message" db:"notification_message"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// EventTrigger 事件触发条件（对应 event_triggers 表）
// 针对某个逻辑设备的单个遥测字段
type EventTrigger struct {
	TriggerID     string      `json:"trigger_id" db:"trigger_id"`
	EventID       string      `json:"event_id" db:"event_id"`
	UserDeviceID  string      `json:"user_device_id" db:"user_device_id"`
	MetadataField string      `json:"metadata_field" db:"metadata_field"`
	TriggerValue  string      `json:"trigger_value" db:"trigger_value"`
	TriggerType   TriggerType `json:"trigger_type" db:"trigger_type"`
	IsEnabled     bool        `json:"is_enabled" db:"is_enabled"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// String 触发条件描述（用于审计与通知正文）
func (t *EventTrigger) String() string {
	return fmt.Sprintf("Trigger[field=%s type=%s value=%s]",
		t.MetadataField, t.TriggerType, t.TriggerValue)
}

// EventResponse 事件响应映射（对应 event_responses 表）
// 把事件绑定到一个目标设备状态
type EventResponse struct {
	ResponseID string    `json:"response_id" db:"response_id"`
	EventID    string    `json:"event_id" db:"event_id"`
	StateID    string    `json:"state_id" db:"state_id"`
	IsEnabled  bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Command 下发给单个设备的命令描述
type Command struct {
	MQTTTopic    string `json:"mqtt_topic"`
	Command      string `json:"command"`
	CommandValue string `json:"command_value"`
}

// EventTriggerLog 事件触发审计记录（对应 event_trigger_logs 表，只追加）
type EventTriggerLog struct {
	LogID           string    `json:"log_id" db:"log_id"`
	EventID         string    `json:"event_id" db:"event_id"`
	TriggeredBy     string    `json:"triggered_by" db:"triggered_by"`
	ResponseCommand string    `json:"response_command" db:"response_command"` // JSON 序列化的命令批次
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
