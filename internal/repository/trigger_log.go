package repository

import (
	"database/sql"
	"fmt"
	"time"

	"smarthub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerLogRepository 事件触发审计记录仓库（只追加）
type TriggerLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTriggerLogRepository 创建审计记录仓库
func NewTriggerLogRepository(db *sql.DB, logger *zap.Logger) *TriggerLogRepository {
	return &TriggerLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create 写入一条审计记录
func (r *TriggerLogRepository) Create(log *models.EventTriggerLog) error {
	if log.LogID == "" {
		log.LogID = uuid.NewString()
	}
	now := time.Now()

	_, err := r.db.Exec(`
		INSERT INTO event_trigger_logs (log_id, event_id, triggered_by, response_command, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		log.LogID,
		log.EventID,
		log.TriggeredBy,
		log.ResponseCommand,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create trigger log: %w", err)
	}

	log.CreatedAt = now
	return nil
}
