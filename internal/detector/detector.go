package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"smarthub/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Detector 变化检测器
// 在 Redis 中为每个设备键保留最近一条原始消息，不设过期。
// 对比时剔除配置的噪声字段，避免设备重播消息反复触发事件。
type Detector struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewDetector 创建变化检测器
func NewDetector(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Detector {
	return &Detector{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// CacheKey 构建缓存键，格式 <prefix>:<deviceKey>
func (d *Detector) CacheKey(deviceKey string) string {
	return strings.Join([]string{d.config.Hub.CacheKeyPrefix, deviceKey}, ":")
}

// HasChanged 判断消息与上一条缓存消息是否有实质差异
// 返回 (是否变化, 上一条原始消息, 错误)。
// 无论结果如何，新消息总会覆盖缓存——后续对比必须以最新负载为基线。
func (d *Detector) HasChanged(ctx context.Context, deviceKey string, rawPayload string) (bool, string, error) {
	key := d.CacheKey(deviceKey)

	lastRaw, err := d.redisClient.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, "", fmt.Errorf("failed to get cached message: %w", err)
	}

	changed := true
	if err != redis.Nil && lastRaw != "" {
		// 两条消息都按忽略字段过滤后再对比
		current := d.parseForComparison(rawPayload)
		cached := d.parseForComparison(lastRaw)

		if current != nil && cached != nil && reflect.DeepEqual(current, cached) {
			d.logger.Debug("Message content unchanged",
				zap.String("device_key", deviceKey),
			)
			changed = false
		}
	}

	if changed {
		d.logger.Debug("Message content changed",
			zap.String("device_key", deviceKey),
		)
	}

	// 比较结果不影响缓存写入：缓存永远保存最近一条原始负载
	if err := d.redisClient.Set(ctx, key, rawPayload, 0).Err(); err != nil {
		return changed, lastRaw, fmt.Errorf("failed to cache message: %w", err)
	}

	if err == redis.Nil {
		return true, "", nil
	}
	return changed, lastRaw, nil
}

// FieldChanged 对比单个字段与上一条缓存消息中的取值
// 没有上一条消息时视为已变化（首条消息总是"变化"）。
func (d *Detector) FieldChanged(lastRaw string, field string, currentValue interface{}) bool {
	if lastRaw == "" {
		return true
	}

	var cached map[string]interface{}
	if err := json.Unmarshal([]byte(lastRaw), &cached); err != nil {
		d.logger.Debug("Could not parse cached message for field comparison",
			zap.String("field", field),
			zap.Error(err),
		)
		return true
	}

	cachedValue, ok := cached[field]
	if !ok {
		return true
	}

	if foldValue(cachedValue) == foldValue(currentValue) {
		d.logger.Debug("Device field value unchanged",
			zap.String("field", field),
			zap.String("value", foldValue(currentValue)),
		)
		return false
	}

	return true
}

// parseForComparison 解析消息并剔除忽略字段，解析失败返回 nil
func (d *Detector) parseForComparison(raw string) map[string]interface{} {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	for _, field := range d.config.Hub.IgnoredFields {
		delete(parsed, field)
	}

	return parsed
}

// foldValue 字段值统一转小写字符串后比较
func foldValue(v interface{}) string {
	return strings.ToLower(fmt.Sprint(v))
}
