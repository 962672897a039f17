package repository

import (
	"database/sql"
	"fmt"

	"smarthub/internal/models"

	"go.uber.org/zap"
)

// EventRepository 事件/触发条件/响应映射仓库
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventRepository 创建事件仓库
func NewEventRepository(db *sql.DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// GetEnabledTriggersForUserDevice 返回逻辑设备上所有启用的触发条件
// 只返回触发条件本身启用且所属事件也启用的记录
func (r *EventRepository) GetEnabledTriggersForUserDevice(userDeviceID string) ([]models.EventTrigger, error) {
	query := `
		SELECT
			t.trigger_id, t.event_id, t.user_device_id,
			t.metadata_field, t.trigger_value, t.trigger_type, t.is_enabled
		FROM event_triggers t
		JOIN events e ON e.event_id = t.event_id
		WHERE t.user_device_id = $1
		  AND t.is_enabled = TRUE
		  AND e.is_enabled = TRUE
		ORDER BY t.created_at
	`

	rows, err := r.db.Query(query, userDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event triggers: %w", err)
	}
	defer rows.Close()

	var triggers []models.EventTrigger
	for rows.Next() {
		var trigger models.EventTrigger
		if err := rows.Scan(
			&trigger.TriggerID,
			&trigger.EventID,
			&trigger.UserDeviceID,
			&trigger.MetadataField,
			&trigger.TriggerValue,
			&trigger.TriggerType,
			&trigger.IsEnabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event trigger: %w", err)
		}
		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}

// GetEventByID 返回事件，不存在时返回 (nil, nil)
func (r *EventRepository) GetEventByID(eventID string) (*models.Event, error) {
	query := `
		SELECT event_id, user_id, description, is_enabled, send_notification,
		       notification_topic, notification_message
		FROM events
		WHERE event_id = $1
	`

	var event models.Event
	var topic, message sql.NullString

	err := r.db.QueryRow(query, eventID).Scan(
		&event.EventID,
		&event.UserID,
		&event.Description,
		&event.IsEnabled,
		&event.SendNotification,
		&topic,
		&message,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	event.NotificationTopic = topic.String
	event.NotificationMessage = message.String

	return &event, nil
}

// GetEnabledResponsesForEvent 返回事件所有启用的响应映射
func (r *EventRepository) GetEnabledResponsesForEvent(eventID string) ([]models.EventResponse, error) {
	query := `
		SELECT response_id, event_id, state_id, is_enabled
		FROM event_responses
		WHERE event_id = $1 AND is_enabled = TRUE
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event responses: %w", err)
	}
	defer rows.Close()

	var responses []models.EventResponse
	for rows.Next() {
		var response models.EventResponse
		if err := rows.Scan(
			&response.ResponseID,
			&response.EventID,
			&response.StateID,
			&response.IsEnabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event response: %w", err)
		}
		responses = append(responses, response)
	}

	return responses, rows.Err()
}
