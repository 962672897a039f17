package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "smarthub", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, "zigbee2mqtt", cfg.Hub.BaseTopic)
	assert.Equal(t, []string{"+"}, cfg.Hub.Topics)
	assert.Equal(t, "zigbee2mqtt/bridge/devices", cfg.Hub.DeviceListTopic)
	assert.Contains(t, cfg.Hub.TopicIgnoreList, "zigbee2mqtt/bridge/info")
	assert.Contains(t, cfg.Hub.TopicIgnoreList, "zigbee2mqtt/bridge/logging")
	assert.Equal(t, []string{"last_seen"}, cfg.Hub.IgnoredFields)
	assert.Equal(t, "mqtt", cfg.Hub.CacheKeyPrefix)
	assert.Equal(t, "set", cfg.Hub.StateEndpoint)

	assert.Equal(t, "https://api.pushbullet.com", cfg.Notify.PushbulletURL)
	assert.Equal(t, "localhost:25", cfg.Notify.SMTPAddr)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("HUB_BASE_TOPIC", "hub")
	os.Setenv("HUB_TOPICS", "temp-and-humid, motion")
	os.Setenv("HUB_IGNORED_FIELDS", "last_seen,linkquality")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "hub", cfg.Hub.BaseTopic)
	assert.Equal(t, []string{"temp-and-humid", "motion"}, cfg.Hub.Topics)
	assert.Equal(t, []string{"last_seen", "linkquality"}, cfg.Hub.IgnoredFields)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestGetEnvList(t *testing.T) {
	os.Clearenv()

	// 测试默认值
	list := getEnvList("TEST_LIST", []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, list)

	// 测试环境变量存在（带空格和空项）
	os.Setenv("TEST_LIST", " x ,, y ")
	list = getEnvList("TEST_LIST", []string{"a"})
	assert.Equal(t, []string{"x", "y"}, list)

	// 清理
	os.Unsetenv("TEST_LIST")
}
