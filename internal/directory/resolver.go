package directory

import (
	"fmt"
	"strings"

	"smarthub/internal/models"

	"go.uber.org/zap"
)

// 设备清单描述符中采集的字段
var dataFields = []string{"friendly_name", "ieee_address", "model_id", "power_source"}

// definition 子对象中采集的字段
var definitionDataFields = []string{"description", "model", "vendor"}

// HardwareStore 目录条目存取
type HardwareStore interface {
	ListIEEEAddresses() ([]string, error)
	Create(device *models.HardwareDevice) error
	SetControllable(deviceID string) error
	LinkToUserDevice(deviceID, userDeviceID string) error
	IsUserDeviceLinked(userDeviceID string) (bool, error)
}

// UserDeviceStore 逻辑设备查找
type UserDeviceStore interface {
	FindByIdentifier(identifier string) ([]models.UserDevice, error)
	FindByName(name string) ([]models.UserDevice, error)
}

// StateStore 设备状态命令存取
type StateStore interface {
	ExistsByName(hardwareDeviceID, name string) (bool, error)
	Create(state *models.DeviceState) error
}

// Resolver 设备目录解析器
// 处理 broker 广播的设备清单：为未见过的标识符建目录条目、
// 解析控制能力、尝试关联用户的逻辑设备。
type Resolver struct {
	hardwareStore   HardwareStore
	userDeviceStore UserDeviceStore
	stateStore      StateStore
	logger          *zap.Logger
}

// NewResolver 创建目录解析器
func NewResolver(
	hardwareStore HardwareStore,
	userDeviceStore UserDeviceStore,
	stateStore StateStore,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		hardwareStore:   hardwareStore,
		userDeviceStore: userDeviceStore,
		stateStore:      stateStore,
		logger:          logger,
	}
}

// RegisterAnnouncedDevices 处理设备清单广播
// 每个描述符独立处理，单个失败不影响其余设备。
func (r *Resolver) RegisterAnnouncedDevices(descriptors []map[string]interface{}) error {
	addresses, err := r.hardwareStore.ListIEEEAddresses()
	if err != nil {
		return fmt.Errorf("failed to list known devices: %w", err)
	}

	known := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		known[address] = true
	}

	for _, descriptor := range descriptors {
		ieeeAddress := foldField(descriptor["ieee_address"])
		if ieeeAddress == "" {
			continue
		}

		if known[ieeeAddress] {
			r.logger.Debug("Device already exists",
				zap.String("ieee_address", ieeeAddress),
			)
			continue
		}

		device, err := r.createDevice(descriptor)
		if err != nil {
			r.logger.Error("Failed to create hardware device",
				zap.String("ieee_address", ieeeAddress),
				zap.Error(err),
			)
			continue
		}
		known[ieeeAddress] = true

		r.logger.Info("New hardware device added",
			zap.String("ieee_address", device.IEEEAddress),
			zap.String("friendly_name", device.FriendlyName),
		)

		if err := r.parseDeviceAttributes(device, descriptor); err != nil {
			r.logger.Error("Failed to parse device attributes",
				zap.String("ieee_address", device.IEEEAddress),
				zap.Error(err),
			)
		}

		if _, err := r.TryLinkToLogicalDevice(device); err != nil {
			r.logger.Error("Failed to link hardware device",
				zap.String("ieee_address", device.IEEEAddress),
				zap.Error(err),
			)
		}
	}

	return nil
}

// createDevice 按字段白名单建目录条目，identifier/display name 小写存储
func (r *Resolver) createDevice(descriptor map[string]interface{}) (*models.HardwareDevice, error) {
	fields := pickFields(dataFields, descriptor, nil)

	if definition, ok := descriptor["definition"].(map[string]interface{}); ok {
		fields = pickFields(definitionDataFields, definition, fields)
	}

	device := &models.HardwareDevice{
		Protocol:     models.ProtocolZigbee,
		FriendlyName: strings.ToLower(fields["friendly_name"]),
		IEEEAddress:  strings.ToLower(fields["ieee_address"]),
		Description:  fields["description"],
		Vendor:       fields["vendor"],
		Model:        fields["model"],
		ModelID:      fields["model_id"],
		PowerSource:  fields["power_source"],
	}

	if err := r.hardwareStore.Create(device); err != nil {
		return nil, err
	}

	return device, nil
}

// parseDeviceAttributes 解析设备能力：带 property 的 feature 说明设备可控，
// 每个非空的 value_on/value_off/value_toggle 变体建一条状态命令（按名称去重）
func (r *Resolver) parseDeviceAttributes(device *models.HardwareDevice, descriptor map[string]interface{}) error {
	definition, ok := descriptor["definition"].(map[string]interface{})
	if !ok {
		return nil
	}

	exposes, ok := definition["exposes"].([]interface{})
	if !ok {
		return nil
	}

	for _, exposed := range exposes {
		attribute, ok := exposed.(map[string]interface{})
		if !ok {
			continue
		}

		features, ok := attribute["features"].([]interface{})
		if !ok {
			continue
		}

		for _, rawFeature := range features {
			feature, ok := rawFeature.(map[string]interface{})
			if !ok {
				continue
			}

			// 设备只识别小写命令
			stateCommand := foldField(feature["property"])
			if stateCommand == "" {
				continue
			}

			commandValues := []interface{}{
				feature["value_off"],
				feature["value_on"],
				feature["value_toggle"],
			}

			marked := false
			for _, rawValue := range commandValues {
				value := foldField(rawValue)
				if value == "" {
					continue
				}

				if !marked {
					if err := r.hardwareStore.SetControllable(device.DeviceID); err != nil {
						return err
					}
					device.IsControllable = true
					marked = true
				}

				exists, err := r.stateStore.ExistsByName(device.DeviceID, value)
				if err != nil {
					return err
				}
				if exists {
					r.logger.Debug("Device state already exists",
						zap.String("ieee_address", device.IEEEAddress),
						zap.String("name", value),
					)
					continue
				}

				state := &models.DeviceState{
					HardwareDeviceID: device.DeviceID,
					Name:             value,
					Command:          stateCommand,
					CommandValue:     value,
				}
				if err := r.stateStore.Create(state); err != nil {
					return err
				}

				r.logger.Info("Device state added",
					zap.String("ieee_address", device.IEEEAddress),
					zap.String("command", stateCommand),
					zap.String("value", value),
				)
			}
		}
	}

	return nil
}

// TryLinkToLogicalDevice 尝试把目录条目关联到逻辑设备
// 只依赖 ControllableDevice 接口，不关心具体协议实现。
// 标识符匹配永远优先于显示名匹配；同一优先级下出现多个候选时
// 不做关联并告警，避免随机挑选。已关联的条目不再处理。
func (r *Resolver) TryLinkToLogicalDevice(device models.ControllableDevice) (bool, error) {
	if device.OwningUserDeviceID() != nil {
		return false, nil
	}

	candidates, err := r.userDeviceStore.FindByIdentifier(device.Identifier())
	if err != nil {
		return false, fmt.Errorf("failed to search user devices by identifier: %w", err)
	}

	if len(candidates) == 0 && device.DisplayName() != "" {
		candidates, err = r.userDeviceStore.FindByName(device.DisplayName())
		if err != nil {
			return false, fmt.Errorf("failed to search user devices by name: %w", err)
		}
	}

	if len(candidates) == 0 {
		r.logger.Debug("No user device to link",
			zap.String("identifier", device.Identifier()),
			zap.String("display_name", device.DisplayName()),
		)
		return false, nil
	}

	if len(candidates) > 1 {
		ids := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			ids = append(ids, candidate.UserDeviceID)
		}
		r.logger.Warn("Ambiguous user device match - not linking",
			zap.String("identifier", device.Identifier()),
			zap.Strings("candidates", ids),
		)
		return false, nil
	}

	target := candidates[0]

	// 一个逻辑设备最多关联一个目录条目
	linked, err := r.hardwareStore.IsUserDeviceLinked(target.UserDeviceID)
	if err != nil {
		return false, fmt.Errorf("failed to check existing link: %w", err)
	}
	if linked {
		r.logger.Warn("User device already linked to another hardware device",
			zap.String("user_device_id", target.UserDeviceID),
			zap.String("identifier", device.Identifier()),
		)
		return false, nil
	}

	if err := r.hardwareStore.LinkToUserDevice(device.HardwareID(), target.UserDeviceID); err != nil {
		return false, fmt.Errorf("failed to link user device: %w", err)
	}

	r.logger.Info("Hardware device linked to user device",
		zap.String("identifier", device.Identifier()),
		zap.String("user_device_id", target.UserDeviceID),
	)

	return true, nil
}

// pickFields 从描述符提取白名单字段
func pickFields(fields []string, data map[string]interface{}, out map[string]string) map[string]string {
	if out == nil {
		out = make(map[string]string)
	}

	for _, field := range fields {
		if value, ok := data[field].(string); ok {
			out[field] = value
		}
	}

	return out
}

// foldField 字段值转小写字符串，nil 返回空串
func foldField(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}
