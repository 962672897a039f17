package models

import (
	"time"
)

// TopicClass 主题分类结果
type TopicClass int

const (
	TopicTelemetry TopicClass = iota // 普通遥测主题
	TopicDeviceList                  // 设备清单广播主题
	TopicIgnored                     // 系统主题，忽略
)

// TelemetryMessage 解码后的遥测消息，解码完成后不可变
type TelemetryMessage struct {
	Topic      string                 `json:"topic"`
	DeviceKey  string                 `json:"device_key"` // 主题最后一段，小写
	RawPayload string                 `json:"raw_payload"`
	Fields     map[string]interface{} `json:"fields"`
	ReceivedAt time.Time              `json:"received_at"`
}

// DeviceMessage 原始消息记录（对应 device_messages 表）
type DeviceMessage struct {
	MessageID        string    `json:"message_id" db:"message_id"`
	HardwareDeviceID *string   `json:"hardware_device_id,omitempty" db:"hardware_device_id"`
	Topic            string    `json:"topic" db:"topic"`
	RawMessage       string    `json:"raw_message" db:"raw_message"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// DeviceMessageLog 消息字段记录（对应 device_message_logs 表）
// 每个非空字段一行，用于为触发条件动态提供字段选项
type DeviceMessageLog struct {
	LogID         string    `json:"log_id" db:"log_id"`
	MessageID     string    `json:"message_id" db:"message_id"`
	MetadataType  string    `json:"metadata_type" db:"metadata_type"`
	MetadataValue string    `json:"metadata_value" db:"metadata_value"` // JSON 序列化的字段值
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
