package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"smarthub/internal/config"
	"smarthub/internal/decoder"
	"smarthub/internal/models"
	"smarthub/internal/mqtt"

	"go.uber.org/zap"
)

// Broker 消息订阅出口
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MessageStore 原始消息存取
type MessageStore interface {
	ExistsByRawMessage(raw string) (bool, error)
	Create(message *models.DeviceMessage) error
	CreateLog(log *models.DeviceMessageLog) error
}

// DirectoryStore 硬件设备目录查找
type DirectoryStore interface {
	FindByIdentifierOrName(identifier, name string) (*models.HardwareDevice, error)
}

// UserDeviceStore 逻辑设备查找
type UserDeviceStore interface {
	GetByID(userDeviceID string) (*models.UserDevice, error)
}

// EventStore 事件与触发条件查找
type EventStore interface {
	GetEnabledTriggersForUserDevice(userDeviceID string) ([]models.EventTrigger, error)
	GetEventByID(eventID string) (*models.Event, error)
}

// DeviceRegistrar 设备清单处理
type DeviceRegistrar interface {
	RegisterAnnouncedDevices(descriptors []map[string]interface{}) error
}

// ChangeDetector 变化检测
type ChangeDetector interface {
	HasChanged(ctx context.Context, deviceKey string, rawPayload string) (bool, string, error)
	FieldChanged(lastRaw string, field string, currentValue interface{}) bool
}

// TriggerEvaluator 触发条件评估
type TriggerEvaluator interface {
	Evaluate(trigger *models.EventTrigger, deviceValue interface{}) bool
}

// EventDispatcher 事件响应下发
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.Event, trigger *models.EventTrigger) (*models.EventTriggerLog, bool)
}

// UserNotifier 通知分发
type UserNotifier interface {
	Notify(ctx context.Context, userID, topic, message, triggeredBy string, auditLogID *string) int
}

// MessageBuilder 通知正文组装函数类型
type MessageBuilder func(base, triggeredBy string, deviceValue interface{}) string

// HubService 消息管道服务
// 订阅 broker 的设备主题，把每条消息同步跑完整条管道：
// 解码 → 分类 → 去重 → 变化检测 → 落库 → 触发评估 → 响应下发 → 通知
type HubService struct {
	config *config.Config
	logger *zap.Logger

	broker          Broker
	decoder         *decoder.Decoder
	detector        ChangeDetector
	registrar       DeviceRegistrar
	evaluator       TriggerEvaluator
	dispatcher      EventDispatcher
	notifier        UserNotifier
	buildMessage    MessageBuilder
	messageStore    MessageStore
	directoryStore  DirectoryStore
	userDeviceStore UserDeviceStore
	eventStore      EventStore

	ctx    context.Context
	cancel context.CancelFunc

	subscribed []string
}

// NewHubService 创建消息管道服务
func NewHubService(
	cfg *config.Config,
	logger *zap.Logger,
	broker Broker,
	dec *decoder.Decoder,
	detector ChangeDetector,
	registrar DeviceRegistrar,
	evaluator TriggerEvaluator,
	dispatcher EventDispatcher,
	notifier UserNotifier,
	buildMessage MessageBuilder,
	messageStore MessageStore,
	directoryStore DirectoryStore,
	userDeviceStore UserDeviceStore,
	eventStore EventStore,
) *HubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &HubService{
		config:          cfg,
		logger:          logger,
		broker:          broker,
		decoder:         dec,
		detector:        detector,
		registrar:       registrar,
		evaluator:       evaluator,
		dispatcher:      dispatcher,
		notifier:        notifier,
		buildMessage:    buildMessage,
		messageStore:    messageStore,
		directoryStore:  directoryStore,
		userDeviceStore: userDeviceStore,
		eventStore:      eventStore,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start 订阅全部配置主题与设备清单主题
func (s *HubService) Start() error {
	topics := make([]string, 0, len(s.config.Hub.Topics)+1)
	for _, topic := range s.config.Hub.Topics {
		topics = append(topics, strings.Join([]string{s.config.Hub.BaseTopic, topic}, "/"))
	}
	topics = append(topics, s.config.Hub.DeviceListTopic)

	for _, topic := range topics {
		if err := s.broker.Subscribe(topic, s.config.MQTT.QoS, s.HandleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		s.subscribed = append(s.subscribed, topic)
		s.logger.Info("Subscribed to topic",
			zap.String("topic", topic),
		)
	}

	return nil
}

// Stop 取消订阅并放弃在途处理
func (s *HubService) Stop() {
	s.cancel()

	if len(s.subscribed) > 0 {
		if err := s.broker.Unsubscribe(s.subscribed...); err != nil {
			s.logger.Warn("Failed to unsubscribe",
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Hub service stopped")
}

// messagePass 单条消息的管道上下文
// 每条消息新建一份，阶段之间只通过它传递状态
type messagePass struct {
	message *models.TelemetryMessage
	lastRaw string
	device  *models.HardwareDevice

	// 本轮已通知的事件，保证每轮每事件至多通知一次
	notifiedEvents map[string]bool
}

// HandleMessage 处理一条入站消息（broker 回调入口）
func (s *HubService) HandleMessage(topic string, payload []byte) error {
	switch s.decoder.Classify(topic) {
	case models.TopicDeviceList:
		return s.handleDeviceList(payload)
	case models.TopicIgnored:
		s.logger.Debug("Ignored system topic",
			zap.String("topic", topic),
		)
		return nil
	}

	return s.handleTelemetry(topic, payload)
}

// handleDeviceList 处理设备清单广播
func (s *HubService) handleDeviceList(payload []byte) error {
	descriptors, err := s.decoder.DecodeDeviceList(payload)
	if err != nil {
		s.logger.Warn("Dropping undecodable device list",
			zap.Error(err),
		)
		return nil
	}

	return s.registrar.RegisterAnnouncedDevices(descriptors)
}

// handleTelemetry 处理一条遥测消息
func (s *HubService) handleTelemetry(topic string, payload []byte) error {
	message, err := s.decoder.Decode(topic, payload)
	if err != nil {
		var decodeErr *decoder.DecodeError
		if errors.As(err, &decodeErr) {
			// 无法解析的负载丢弃，不中断订阅
			s.logger.Warn("Dropping undecodable message",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	if message == nil {
		return nil
	}

	// 设备重播的相同负载直接跳过
	duplicate, err := s.messageStore.ExistsByRawMessage(message.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to check duplicate message: %w", err)
	}
	if duplicate {
		s.logger.Debug("Duplicate message - skipped",
			zap.String("device_key", message.DeviceKey),
		)
		return nil
	}

	changed, lastRaw, err := s.detector.HasChanged(s.ctx, message.DeviceKey, message.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to detect message change: %w", err)
	}

	device, err := s.directoryStore.FindByIdentifierOrName(message.DeviceKey, message.DeviceKey)
	if err != nil {
		return fmt.Errorf("failed to resolve hardware device: %w", err)
	}

	if err := s.persistMessage(message, device); err != nil {
		return err
	}

	if !changed {
		return nil
	}

	if device == nil || device.OwningUserDeviceID() == nil {
		s.logger.Debug("Message has no owning user device",
			zap.String("device_key", message.DeviceKey),
		)
		return nil
	}

	pass := &messagePass{
		message:        message,
		lastRaw:        lastRaw,
		device:         device,
		notifiedEvents: make(map[string]bool),
	}

	return s.processTriggers(pass)
}

// persistMessage 落库原始消息并为每个非空字段写一条字段记录
func (s *HubService) persistMessage(message *models.TelemetryMessage, device *models.HardwareDevice) error {
	record := &models.DeviceMessage{
		Topic:      message.Topic,
		RawMessage: message.RawPayload,
	}
	if device != nil {
		deviceID := device.HardwareID()
		record.HardwareDeviceID = &deviceID
	}

	if err := s.messageStore.Create(record); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	for field, value := range message.Fields {
		if isEmptyValue(value) {
			continue
		}

		serialized, err := json.Marshal(value)
		if err != nil {
			s.logger.Warn("Could not serialize message field",
				zap.String("field", field),
				zap.Error(err),
			)
			continue
		}

		log := &models.DeviceMessageLog{
			MessageID:     record.MessageID,
			MetadataType:  field,
			MetadataValue: string(serialized),
		}
		if err := s.messageStore.CreateLog(log); err != nil {
			s.logger.Error("Failed to persist message field",
				zap.String("field", field),
				zap.Error(err),
			)
		}
	}

	return nil
}

// processTriggers 评估消息归属逻辑设备上的全部启用触发条件
func (s *HubService) processTriggers(pass *messagePass) error {
	userDevice, err := s.userDeviceStore.GetByID(*pass.device.OwningUserDeviceID())
	if err != nil {
		return fmt.Errorf("failed to load user device: %w", err)
	}
	if userDevice == nil {
		s.logger.Warn("Hardware device links to missing user device",
			zap.String("device_id", pass.device.HardwareID()),
			zap.String("user_device_id", *pass.device.OwningUserDeviceID()),
		)
		return nil
	}

	triggers, err := s.eventStore.GetEnabledTriggersForUserDevice(userDevice.UserDeviceID)
	if err != nil {
		return fmt.Errorf("failed to load event triggers: %w", err)
	}

	for i := range triggers {
		trigger := &triggers[i]

		value, ok := pass.message.Fields[trigger.MetadataField]
		if !ok || isEmptyValue(value) {
			continue
		}

		// 字段值与上一条消息相同时不重复评估
		if !s.detector.FieldChanged(pass.lastRaw, trigger.MetadataField, value) {
			continue
		}

		if !s.evaluator.Evaluate(trigger, value) {
			continue
		}

		s.logger.Info("Event trigger satisfied",
			zap.String("trigger_id", trigger.TriggerID),
			zap.String("event_id", trigger.EventID),
			zap.String("field", trigger.MetadataField),
			zap.Any("device_value", value),
		)

		s.fireEvent(pass, trigger, value)
	}

	return nil
}

// fireEvent 下发事件响应并按需发送通知
// 下发失败不影响通知：通知记录只是不再关联审计 ID
func (s *HubService) fireEvent(pass *messagePass, trigger *models.EventTrigger, value interface{}) {
	event, err := s.eventStore.GetEventByID(trigger.EventID)
	if err != nil {
		s.logger.Error("Failed to load event",
			zap.String("event_id", trigger.EventID),
			zap.Error(err),
		)
		return
	}
	if event == nil || !event.IsEnabled {
		return
	}

	auditLog, dispatched := s.dispatcher.Dispatch(s.ctx, event, trigger)

	var auditLogID *string
	if dispatched {
		auditLogID = &auditLog.LogID
	}

	if event.SendNotification && !pass.notifiedEvents[event.EventID] {
		body := s.buildMessage(event.NotificationMessage, trigger.String(), value)
		s.notifier.Notify(s.ctx, event.UserID, event.NotificationTopic, body, trigger.String(), auditLogID)
		pass.notifiedEvents[event.EventID] = true
	}
}

// isEmptyValue 字段缺失判定：nil 或空字符串
func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}
