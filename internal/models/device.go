package models

import (
	"time"
)

// DeviceProtocol 硬件设备接入协议
type DeviceProtocol string

const (
	ProtocolZigbee DeviceProtocol = "ZIGBEE"
	ProtocolAPI    DeviceProtocol = "API"
)

// ControllableDevice 可被命令下发寻址的硬件设备
// 目录关联与命令下发只依赖该接口，不依赖具体协议实现
type ControllableDevice interface {
	HardwareID() string
	Identifier() string // 协议层标识符，如 Zigbee 的 ieee_address
	DisplayName() string
	Controllable() bool
	OwningUserDeviceID() *string
}

// HardwareDevice 硬件设备目录条目（对应 hardware_devices 表）
// 由 broker 广播的设备清单创建，identifier/display name 统一小写存储
type HardwareDevice struct {
	DeviceID       string         `json:"device_id" db:"device_id"`
	Protocol       DeviceProtocol `json:"protocol" db:"protocol"`
	FriendlyName   string         `json:"friendly_name" db:"friendly_name"`
	IEEEAddress    string         `json:"ieee_address" db:"ieee_address"`
	Description    string         `json:"description" db:"description"`
	Vendor         string         `json:"vendor" db:"vendor"`
	Model          string         `json:"model" db:"model"`
	ModelID        string         `json:"model_id" db:"model_id"`
	PowerSource    string         `json:"power_source" db:"power_source"`
	IsControllable bool           `json:"is_controllable" db:"is_controllable"`
	UserDeviceID   *string        `json:"user_device_id,omitempty" db:"user_device_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

func (d *HardwareDevice) HardwareID() string          { return d.DeviceID }
func (d *HardwareDevice) Identifier() string          { return d.IEEEAddress }
func (d *HardwareDevice) DisplayName() string         { return d.FriendlyName }
func (d *HardwareDevice) Controllable() bool          { return d.IsControllable }
func (d *HardwareDevice) OwningUserDeviceID() *string { return d.UserDeviceID }

// UserDevice 用户创建的逻辑设备（对应 user_devices 表）
// (user_id, device_identifier) 与 (user_id, friendly_name) 各自唯一
type UserDevice struct {
	UserDeviceID     string         `json:"user_device_id" db:"user_device_id"`
	UserID           string         `json:"user_id" db:"user_id"`
	FriendlyName     string         `json:"friendly_name" db:"friendly_name"`
	DeviceIdentifier string         `json:"device_identifier" db:"device_identifier"`
	Location         string         `json:"location" db:"location"`
	Protocol         DeviceProtocol `json:"protocol" db:"protocol"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// DeviceState 设备可被要求进入的状态命令（对应 device_states 表）
// 如 state=on / state=off，全部小写存储
type DeviceState struct {
	StateID          string    `json:"state_id" db:"state_id"`
	HardwareDeviceID string    `json:"hardware_device_id" db:"hardware_device_id"`
	Name             string    `json:"name" db:"name"`
	Command          string    `json:"command" db:"command"`
	CommandValue     string    `json:"command_value" db:"command_value"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
