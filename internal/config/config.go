package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 消息管道特定配置
	Hub struct {
		// MQTT 主题配置
		BaseTopic       string   // 设备主题的父级主题，如 "zigbee2mqtt"
		Topics          []string // 订阅的设备主题列表（相对于 BaseTopic）
		DeviceListTopic string   // 广播设备清单的主题
		TopicIgnoreList []string // 忽略的系统主题（bridge/info 等）

		// 变化检测配置
		IgnoredFields  []string // 对比消息时忽略的噪声字段（last_seen 等）
		CacheKeyPrefix string   // 最近消息缓存键前缀，如 "mqtt"

		// 命令下发配置
		StateEndpoint  string        // 设备状态变更端点，如 "set"
		PublishTimeout time.Duration // 发布等待超时
	}

	// 通知渠道配置
	Notify struct {
		PushbulletURL string // Pushbullet API 地址
		SMTPAddr      string // SMTP 服务器地址 host:port
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smarthub")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "smarthub")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Hub.BaseTopic = getEnv("HUB_BASE_TOPIC", "zigbee2mqtt")
	cfg.Hub.Topics = getEnvList("HUB_TOPICS", []string{"+"})
	cfg.Hub.DeviceListTopic = getEnv("HUB_DEVICE_LIST_TOPIC", "zigbee2mqtt/bridge/devices")
	cfg.Hub.TopicIgnoreList = getEnvList("HUB_TOPIC_IGNORE_LIST", []string{
		"zigbee2mqtt/bridge/info",
		"zigbee2mqtt/bridge/logging",
		"zigbee2mqtt/bridge/groups",
	})
	cfg.Hub.IgnoredFields = getEnvList("HUB_IGNORED_FIELDS", []string{"last_seen"})
	cfg.Hub.CacheKeyPrefix = getEnv("HUB_CACHE_KEY_PREFIX", "mqtt")
	cfg.Hub.StateEndpoint = getEnv("HUB_STATE_ENDPOINT", "set")
	cfg.Hub.PublishTimeout = 5 * time.Second

	cfg.Notify.PushbulletURL = getEnv("NOTIFY_PUSHBULLET_URL", "https://api.pushbullet.com")
	cfg.Notify.SMTPAddr = getEnv("NOTIFY_SMTP_ADDR", "localhost:25")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList 加载逗号分隔的列表配置
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}

	if len(list) == 0 {
		return defaultValue
	}
	return list
}
