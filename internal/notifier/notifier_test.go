package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smarthub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSettingsStore 内存版渠道配置与通知记录
type fakeSettingsStore struct {
	settings []models.NotificationSetting
	logs     []*models.NotificationLog
	loadErr  error
}

func (f *fakeSettingsStore) GetEnabledSettingsForUser(userID string) ([]models.NotificationSetting, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var result []models.NotificationSetting
	for _, s := range f.settings {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (f *fakeSettingsStore) CreateLog(log *models.NotificationLog) error {
	f.logs = append(f.logs, log)
	return nil
}

// fakeSender 记录发送调用的渠道实现
type fakeSender struct {
	sent    []string // setting IDs
	sendErr error
}

func (f *fakeSender) Send(ctx context.Context, setting *models.NotificationSetting, topic, message string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, setting.SettingID)
	return nil
}

func TestNotify_FanOutToAllChannels(t *testing.T) {
	store := &fakeSettingsStore{
		settings: []models.NotificationSetting{
			{SettingID: "s-push", UserID: "user-1", Medium: models.MediumPushbullet, IsEnabled: true},
			{SettingID: "s-mail", UserID: "user-1", Medium: models.MediumEmail, IsEnabled: true},
		},
	}
	push := &fakeSender{}
	mail := &fakeSender{}

	n := NewNotifierWithSenders(store, map[models.NotificationMedium]ChannelSender{
		models.MediumPushbullet: push,
		models.MediumEmail:      mail,
	}, zap.NewNop())

	auditID := "audit-1"
	sent := n.Notify(context.Background(), "user-1", "Temp alert", "too hot", "trigger-desc", &auditID)

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"s-push"}, push.sent)
	assert.Equal(t, []string{"s-mail"}, mail.sent)

	// 每次成功发送一条记录，关联审计 ID
	require.Len(t, store.logs, 2)
	assert.Equal(t, "s-push", store.logs[0].SettingID)
	assert.Equal(t, "Temp alert", store.logs[0].Topic)
	assert.Equal(t, "trigger-desc", store.logs[0].TriggeredBy)
	require.NotNil(t, store.logs[0].TriggerLogID)
	assert.Equal(t, "audit-1", *store.logs[0].TriggerLogID)
}

func TestNotify_ChannelFailureDoesNotStopOthers(t *testing.T) {
	store := &fakeSettingsStore{
		settings: []models.NotificationSetting{
			{SettingID: "s-push", UserID: "user-1", Medium: models.MediumPushbullet, IsEnabled: true},
			{SettingID: "s-mail", UserID: "user-1", Medium: models.MediumEmail, IsEnabled: true},
		},
	}
	push := &fakeSender{sendErr: errors.New("api down")}
	mail := &fakeSender{}

	n := NewNotifierWithSenders(store, map[models.NotificationMedium]ChannelSender{
		models.MediumPushbullet: push,
		models.MediumEmail:      mail,
	}, zap.NewNop())

	sent := n.Notify(context.Background(), "user-1", "topic", "msg", "trig", nil)

	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"s-mail"}, mail.sent)

	// 失败渠道不写记录
	require.Len(t, store.logs, 1)
	assert.Equal(t, "s-mail", store.logs[0].SettingID)
	assert.Nil(t, store.logs[0].TriggerLogID)
}

func TestNotify_NoEnabledChannels(t *testing.T) {
	store := &fakeSettingsStore{}
	n := NewNotifierWithSenders(store, nil, zap.NewNop())

	sent := n.Notify(context.Background(), "user-1", "topic", "msg", "trig", nil)
	assert.Equal(t, 0, sent)
	assert.Empty(t, store.logs)
}

func TestNotify_UnknownMediumSkipped(t *testing.T) {
	store := &fakeSettingsStore{
		settings: []models.NotificationSetting{
			{SettingID: "s-1", UserID: "user-1", Medium: "carrier-pigeon", IsEnabled: true},
		},
	}
	n := NewNotifierWithSenders(store, map[models.NotificationMedium]ChannelSender{}, zap.NewNop())

	sent := n.Notify(context.Background(), "user-1", "topic", "msg", "trig", nil)
	assert.Equal(t, 0, sent)
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("too hot", "Trigger[field=temperature type=greater_than value=25]", 26.5)
	assert.Contains(t, msg, "too hot")
	assert.Contains(t, msg, "Triggered by=Trigger[field=temperature type=greater_than value=25]")
	assert.Contains(t, msg, "Device value=26.5")
}

func TestPushbulletSender_Send(t *testing.T) {
	var gotToken string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/pushes", r.URL.Path)
		gotToken = r.Header.Get("Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewPushbulletSender(server.URL)
	setting := &models.NotificationSetting{SettingID: "s-1", AccessToken: "token-123"}

	err := sender.Send(context.Background(), setting, "Temp alert", "too hot")
	require.NoError(t, err)

	assert.Equal(t, "token-123", gotToken)
	assert.Equal(t, "note", gotBody["type"])
	assert.Equal(t, "Temp alert", gotBody["title"])
	assert.Equal(t, "too hot", gotBody["body"])
}

func TestPushbulletSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := NewPushbulletSender(server.URL)
	setting := &models.NotificationSetting{SettingID: "s-1", AccessToken: "bad"}

	err := sender.Send(context.Background(), setting, "topic", "msg")
	assert.Error(t, err)
}

func TestPushbulletSender_MissingToken(t *testing.T) {
	sender := NewPushbulletSender("http://unused")
	setting := &models.NotificationSetting{SettingID: "s-1"}

	err := sender.Send(context.Background(), setting, "topic", "msg")
	assert.Error(t, err)
}

func TestEmailSender_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	sender := NewEmailSender("mail.example.com:25")
	sender.sendMail = func(addr, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	setting := &models.NotificationSetting{
		SettingID: "s-1",
		FromEmail: "hub@example.com",
		ToEmail:   "owner@example.com",
	}

	err := sender.Send(context.Background(), setting, "Temp alert", "too hot")
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:25", gotAddr)
	assert.Equal(t, "hub@example.com", gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Temp alert")
	assert.Contains(t, string(gotMsg), "too hot")
}

func TestEmailSender_MissingAddresses(t *testing.T) {
	sender := NewEmailSender("mail.example.com:25")
	setting := &models.NotificationSetting{SettingID: "s-1"}

	err := sender.Send(context.Background(), setting, "topic", "msg")
	assert.Error(t, err)
}
