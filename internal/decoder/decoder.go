package decoder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smarthub/internal/config"
	"smarthub/internal/models"

	"go.uber.org/zap"
)

// DecodeError 负载无法解析为JSON时返回，该消息被丢弃且后续阶段不再执行
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode payload on topic %s: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder 消息解码器：解析原始负载并对主题分类
type Decoder struct {
	config *config.Config
	logger *zap.Logger
}

// NewDecoder 创建解码器
func NewDecoder(cfg *config.Config, logger *zap.Logger) *Decoder {
	return &Decoder{
		config: cfg,
		logger: logger,
	}
}

// Classify 对主题分类：设备清单 / 忽略 / 遥测
func (d *Decoder) Classify(topic string) models.TopicClass {
	topic = NormalizeTopic(topic)

	if topic == d.config.Hub.DeviceListTopic {
		return models.TopicDeviceList
	}

	for _, ignored := range d.config.Hub.TopicIgnoreList {
		if topic == ignored {
			return models.TopicIgnored
		}
	}

	return models.TopicTelemetry
}

// Decode 解析原始负载为字段表
// 空负载返回 (nil, nil)：不是错误，整条消息按无操作处理。
// 负载为JSON数组时只取第一个元素作为消息体（broker 的已知行为，保留）。
func (d *Decoder) Decode(topic string, payload []byte) (*models.TelemetryMessage, error) {
	if len(payload) == 0 {
		d.logger.Debug("Empty payload - ignored",
			zap.String("topic", topic),
		)
		return nil, nil
	}

	topic = NormalizeTopic(topic)

	var parsed interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &DecodeError{Topic: topic, Err: err}
	}

	// 数组负载取第一个元素
	if list, ok := parsed.([]interface{}); ok {
		if len(list) == 0 {
			return nil, nil
		}
		parsed = list[0]
	}

	fields, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, &DecodeError{
			Topic: topic,
			Err:   fmt.Errorf("payload is not a JSON object"),
		}
	}

	return &models.TelemetryMessage{
		Topic:      topic,
		DeviceKey:  DeviceKeyFromTopic(topic),
		RawPayload: string(payload),
		Fields:     fields,
		ReceivedAt: time.Now(),
	}, nil
}

// DecodeDeviceList 解析设备清单负载（JSON数组的设备描述符）
func (d *Decoder) DecodeDeviceList(payload []byte) ([]map[string]interface{}, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Topic: d.config.Hub.DeviceListTopic, Err: err}
	}
	return raw, nil
}

// NormalizeTopic 主题统一小写去空白，与 broker 保持一致
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// DeviceKeyFromTopic 取主题最后一段作为设备键
func DeviceKeyFromTopic(topic string) string {
	topic = NormalizeTopic(topic)
	idx := strings.LastIndex(topic, "/")
	return strings.TrimSpace(topic[idx+1:])
}
