package dispatcher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"smarthub/internal/config"
	"smarthub/internal/models"

	"go.uber.org/zap"
)

// ResponseStore 事件响应映射查找
type ResponseStore interface {
	GetEnabledResponsesForEvent(eventID string) ([]models.EventResponse, error)
}

// StateStore 目标状态命令与所属设备查找
type StateStore interface {
	GetStateWithDevice(stateID string) (*models.DeviceState, models.ControllableDevice, error)
}

// AuditLog 审计记录写入
type AuditLog interface {
	Create(log *models.EventTriggerLog) error
}

// Publisher 命令发布出口
type Publisher interface {
	PublishWithTimeout(topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error
}

// Dispatcher 事件响应下发器
// 为触发的事件构建命令批次并发布。整个批次要么全部发布要么全不发布：
// 任何响应映射缺少命令或值都会放弃本次下发。
type Dispatcher struct {
	config        *config.Config
	responseStore ResponseStore
	stateStore    StateStore
	auditLog      AuditLog
	publisher     Publisher
	logger        *zap.Logger
}

// NewDispatcher 创建下发器
func NewDispatcher(
	cfg *config.Config,
	responseStore ResponseStore,
	stateStore StateStore,
	auditLog AuditLog,
	publisher Publisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		config:        cfg,
		responseStore: responseStore,
		stateStore:    stateStore,
		auditLog:      auditLog,
		publisher:     publisher,
		logger:        logger,
	}
}

// Dispatch 为触发的事件下发所有启用的响应
// 成功时返回审计记录和 true；无响应或任何一步失败返回 (nil, false)，
// 失败时不发布部分批次、不写审计记录。
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event, trigger *models.EventTrigger) (*models.EventTriggerLog, bool) {
	responses, err := d.responseStore.GetEnabledResponsesForEvent(event.EventID)
	if err != nil {
		d.logger.Error("Failed to load event responses",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return nil, false
	}

	if len(responses) == 0 {
		d.logger.Info("No enabled responses for event",
			zap.String("event_id", event.EventID),
		)
		return nil, false
	}

	// 先完整构建批次，再发布
	commands := make([]models.Command, 0, len(responses))
	for _, response := range responses {
		state, device, err := d.stateStore.GetStateWithDevice(response.StateID)
		if err != nil {
			d.logger.Error("Failed to resolve response target",
				zap.String("event_id", event.EventID),
				zap.String("response_id", response.ResponseID),
				zap.Error(err),
			)
			return nil, false
		}

		if state.Command == "" || state.CommandValue == "" || device.DisplayName() == "" {
			d.logger.Warn("Response has no usable command or value - aborting dispatch",
				zap.String("event_id", event.EventID),
				zap.String("response_id", response.ResponseID),
				zap.String("command", state.Command),
				zap.String("command_value", state.CommandValue),
			)
			return nil, false
		}

		commands = append(commands, models.Command{
			MQTTTopic:    device.DisplayName(),
			Command:      state.Command,
			CommandValue: state.CommandValue,
		})
	}

	if err := d.publishBatch(ctx, commands); err != nil {
		d.logger.Error("Failed to publish command batch",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return nil, false
	}

	batch, err := json.Marshal(commands)
	if err != nil {
		d.logger.Error("Failed to serialize command batch",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return nil, false
	}

	log := &models.EventTriggerLog{
		EventID:         event.EventID,
		TriggeredBy:     trigger.String(),
		ResponseCommand: string(batch),
	}
	if err := d.auditLog.Create(log); err != nil {
		d.logger.Error("Failed to write trigger log",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return nil, false
	}

	d.logger.Info("Event responses dispatched",
		zap.String("event_id", event.EventID),
		zap.Int("command_count", len(commands)),
	)

	return log, true
}

// publishBatch 逐条发布命令，负载形如 {"state": "on"}
// 发布主题 <base>/<设备显示名>/<state endpoint>
func (d *Dispatcher) publishBatch(ctx context.Context, commands []models.Command) error {
	for _, command := range commands {
		// 关闭时放弃未发布的命令，不重试
		if err := ctx.Err(); err != nil {
			return err
		}

		topic := strings.Join([]string{
			d.config.Hub.BaseTopic,
			command.MQTTTopic,
			d.config.Hub.StateEndpoint,
		}, "/")

		payload, err := json.Marshal(map[string]string{
			command.Command: command.CommandValue,
		})
		if err != nil {
			return err
		}

		d.logger.Info("Publishing device command",
			zap.String("topic", topic),
			zap.String("command", command.Command),
			zap.String("command_value", command.CommandValue),
		)

		if err := d.publisher.PublishWithTimeout(topic, d.config.MQTT.QoS, false, payload, d.config.Hub.PublishTimeout); err != nil {
			return err
		}
	}

	return nil
}
