package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"smarthub/internal/config"
	"smarthub/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SettingsStore 通知渠道与通知记录存取
type SettingsStore interface {
	GetEnabledSettingsForUser(userID string) ([]models.NotificationSetting, error)
	CreateLog(log *models.NotificationLog) error
}

// ChannelSender 单个通知渠道的发送实现
type ChannelSender interface {
	Send(ctx context.Context, setting *models.NotificationSetting, topic, message string) error
}

// Notifier 通知分发器
// 把一次事件触发扇出到用户启用的全部渠道。单个渠道失败只记录日志，
// 不影响其余渠道；每次成功发送写一条通知记录。
type Notifier struct {
	settingsStore SettingsStore
	senders       map[models.NotificationMedium]ChannelSender
	logger        *zap.Logger
}

// NewNotifier 创建通知分发器（Pushbullet + Email 渠道）
func NewNotifier(cfg *config.Config, settingsStore SettingsStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		settingsStore: settingsStore,
		senders: map[models.NotificationMedium]ChannelSender{
			models.MediumPushbullet: NewPushbulletSender(cfg.Notify.PushbulletURL),
			models.MediumEmail:      NewEmailSender(cfg.Notify.SMTPAddr),
		},
		logger: logger,
	}
}

// NewNotifierWithSenders 用自定义渠道实现创建分发器
func NewNotifierWithSenders(settingsStore SettingsStore, senders map[models.NotificationMedium]ChannelSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		settingsStore: settingsStore,
		senders:       senders,
		logger:        logger,
	}
}

// Notify 向用户的全部启用渠道发送通知
// triggeredBy 与 auditLogID 一并写入通知记录，auditLogID 可为 nil。
// 返回成功发送的渠道数。
func (n *Notifier) Notify(ctx context.Context, userID, topic, message, triggeredBy string, auditLogID *string) int {
	settings, err := n.settingsStore.GetEnabledSettingsForUser(userID)
	if err != nil {
		n.logger.Error("Failed to load notification settings",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0
	}

	if len(settings) == 0 {
		n.logger.Debug("User has no enabled notification channels",
			zap.String("user_id", userID),
		)
		return 0
	}

	sent := 0
	for i := range settings {
		setting := &settings[i]

		sender, ok := n.senders[setting.Medium]
		if !ok {
			n.logger.Warn("Unknown notification medium",
				zap.String("setting_id", setting.SettingID),
				zap.String("medium", string(setting.Medium)),
			)
			continue
		}

		if err := sender.Send(ctx, setting, topic, message); err != nil {
			n.logger.Error("Failed to send notification",
				zap.String("setting_id", setting.SettingID),
				zap.String("medium", string(setting.Medium)),
				zap.Error(err),
			)
			continue
		}

		log := &models.NotificationLog{
			SettingID:    setting.SettingID,
			Topic:        topic,
			Message:      message,
			TriggeredBy:  triggeredBy,
			TriggerLogID: auditLogID,
		}
		if err := n.settingsStore.CreateLog(log); err != nil {
			n.logger.Error("Failed to write notification log",
				zap.String("setting_id", setting.SettingID),
				zap.Error(err),
			)
		}

		n.logger.Info("Notification sent",
			zap.String("setting_id", setting.SettingID),
			zap.String("medium", string(setting.Medium)),
			zap.String("topic", topic),
		)
		sent++
	}

	return sent
}

// BuildMessage 组装通知正文：用户配置的消息加上触发上下文
func BuildMessage(base, triggeredBy string, deviceValue interface{}) string {
	return fmt.Sprintf("%s\n\nTriggered by=%s\nDevice value=%v", base, triggeredBy, deviceValue)
}

// PushbulletSender Pushbullet 推送渠道
type PushbulletSender struct {
	client *resty.Client
}

// NewPushbulletSender 创建 Pushbullet 渠道
func NewPushbulletSender(baseURL string) *PushbulletSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	return &PushbulletSender{client: client}
}

// Send 调用 Pushbullet pushes 接口发送 note 类型推送
func (s *PushbulletSender) Send(ctx context.Context, setting *models.NotificationSetting, topic, message string) error {
	if setting.AccessToken == "" {
		return fmt.Errorf("pushbullet setting %s has no access token", setting.SettingID)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Access-Token", setting.AccessToken).
		SetBody(map[string]string{
			"type":  "note",
			"title": topic,
			"body":  message,
		}).
		Post("/v2/pushes")
	if err != nil {
		return fmt.Errorf("pushbullet request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("pushbullet returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// EmailSender SMTP 邮件渠道
type EmailSender struct {
	addr string

	// 测试替换点
	sendMail func(addr, from string, to []string, msg []byte) error
}

// NewEmailSender 创建邮件渠道
func NewEmailSender(addr string) *EmailSender {
	return &EmailSender{
		addr: addr,
		sendMail: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Send 通过 SMTP 发送邮件，主题为通知 topic
func (s *EmailSender) Send(ctx context.Context, setting *models.NotificationSetting, topic, message string) error {
	if setting.FromEmail == "" || setting.ToEmail == "" {
		return fmt.Errorf("email setting %s has no from/to address", setting.SettingID)
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		setting.FromEmail, setting.ToEmail, topic, message,
	))

	if err := s.sendMail(s.addr, setting.FromEmail, []string{setting.ToEmail}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	return nil
}
