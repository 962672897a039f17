package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"smarthub/internal/models"

	"go.uber.org/zap"
)

// Evaluator 触发条件评估器
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{
		logger: logger,
	}
}

// Evaluate 用触发条件的比较类型对比设备值与触发值
// equal/not_equal 把设备值统一转成小写字符串再比较，与负载中的
// JSON 类型无关（布尔、数值字段照常参与相等比较）；
// 其余比较类型要求两侧都能解析为数值，任一侧解析失败按未触发处理（不是错误）。
func (e *Evaluator) Evaluate(trigger *models.EventTrigger, deviceValue interface{}) bool {
	switch trigger.TriggerType {
	case models.TriggerEqual:
		return fold(deviceValue) == fold(trigger.TriggerValue)
	case models.TriggerNotEqual:
		return fold(deviceValue) != fold(trigger.TriggerValue)
	}

	triggerNum, ok := toNumber(trigger.TriggerValue)
	if !ok {
		e.logger.Debug("Trigger value is not numeric",
			zap.String("trigger_id", trigger.TriggerID),
			zap.String("trigger_value", trigger.TriggerValue),
		)
		return false
	}

	deviceNum, ok := toNumber(deviceValue)
	if !ok {
		e.logger.Debug("Device value is not numeric",
			zap.String("trigger_id", trigger.TriggerID),
			zap.Any("device_value", deviceValue),
		)
		return false
	}

	switch trigger.TriggerType {
	case models.TriggerGreaterThanOrEqual:
		return deviceNum >= triggerNum
	case models.TriggerGreaterThan:
		return deviceNum > triggerNum
	case models.TriggerLessThan:
		return deviceNum < triggerNum
	case models.TriggerLessThanOrEqual:
		return deviceNum <= triggerNum
	}

	e.logger.Warn("Unknown trigger type",
		zap.String("trigger_id", trigger.TriggerID),
		zap.String("trigger_type", string(trigger.TriggerType)),
	)
	return false
}

// fold 值统一转小写字符串再比较
func fold(v interface{}) string {
	return strings.ToLower(fmt.Sprint(v))
}

// toNumber 把设备值或触发值解析为数值
func toNumber(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}
