package repository

import (
	"database/sql"
	"fmt"
	"time"

	"smarthub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageRepository 原始消息与字段记录仓库
type MessageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *sql.DB, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger,
	}
}

// ExistsByRawMessage 检查完全相同的原始负载是否已存储
// 设备在未收到确认时会重播消息，重复负载直接跳过
func (r *MessageRepository) ExistsByRawMessage(raw string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM device_messages WHERE raw_message = $1`,
		raw,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate message: %w", err)
	}
	return count > 0, nil
}

// Create 写入原始消息记录
func (r *MessageRepository) Create(message *models.DeviceMessage) error {
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	now := time.Now()

	var hardwareDeviceID sql.NullString
	if message.HardwareDeviceID != nil {
		hardwareDeviceID = sql.NullString{String: *message.HardwareDeviceID, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO device_messages (message_id, hardware_device_id, topic, raw_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		message.MessageID,
		hardwareDeviceID,
		message.Topic,
		message.RawMessage,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create device message: %w", err)
	}

	message.CreatedAt = now
	return nil
}

// CreateLog 写入单个字段记录
func (r *MessageRepository) CreateLog(log *models.DeviceMessageLog) error {
	if log.LogID == "" {
		log.LogID = uuid.NewString()
	}
	now := time.Now()

	_, err := r.db.Exec(`
		INSERT INTO device_message_logs (log_id, message_id, metadata_type, metadata_value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		log.LogID,
		log.MessageID,
		log.MetadataType,
		log.MetadataValue,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message log: %w", err)
	}

	log.CreatedAt = now
	return nil
}

// ListMetadataFields 返回某硬件设备出现过的全部字段名（去重）
// 供上层界面为触发条件动态提供字段选项
func (r *MessageRepository) ListMetadataFields(hardwareDeviceID string) ([]string, error) {
	query := `
		SELECT DISTINCT l.metadata_type
		FROM device_message_logs l
		JOIN device_messages m ON m.message_id = l.message_id
		WHERE m.hardware_device_id = $1
		ORDER BY l.metadata_type
	`

	rows, err := r.db.Query(query, hardwareDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata fields: %w", err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, fmt.Errorf("failed to scan metadata field: %w", err)
		}
		fields = append(fields, field)
	}

	return fields, rows.Err()
}
