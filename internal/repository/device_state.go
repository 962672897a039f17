package repository

import (
	"database/sql"
	"fmt"
	"time"

	"smarthub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceStateRepository 设备状态命令仓库
type DeviceStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceStateRepository 创建设备状态仓库
func NewDeviceStateRepository(db *sql.DB, logger *zap.Logger) *DeviceStateRepository {
	return &DeviceStateRepository{
		db:     db,
		logger: logger,
	}
}

// ExistsByName 检查同名状态是否已存在于该硬件设备下
func (r *DeviceStateRepository) ExistsByName(hardwareDeviceID, name string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM device_states WHERE hardware_device_id = $1 AND name = $2`,
		hardwareDeviceID, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check device state: %w", err)
	}
	return count > 0, nil
}

// Create 创建设备状态命令
func (r *DeviceStateRepository) Create(state *models.DeviceState) error {
	if state.StateID == "" {
		state.StateID = uuid.NewString()
	}
	now := time.Now()

	_, err := r.db.Exec(`
		INSERT INTO device_states (state_id, hardware_device_id, name, command, command_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		state.StateID,
		state.HardwareDeviceID,
		state.Name,
		state.Command,
		state.CommandValue,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create device state: %w", err)
	}

	state.CreatedAt = now
	return nil
}

// GetStateWithDevice 返回状态命令及其所属硬件设备
// 设备以 ControllableDevice 接口返回：命令下发不关心具体协议实现
func (r *DeviceStateRepository) GetStateWithDevice(stateID string) (*models.DeviceState, models.ControllableDevice, error) {
	query := `
		SELECT
			s.state_id, s.hardware_device_id, s.name, s.command, s.command_value,
			d.device_id, d.protocol, d.friendly_name, d.ieee_address, d.description,
			d.vendor, d.model, d.model_id, d.power_source, d.is_controllable, d.user_device_id
		FROM device_states s
		JOIN hardware_devices d ON d.device_id = s.hardware_device_id
		WHERE s.state_id = $1
	`

	var state models.DeviceState
	var device models.HardwareDevice
	var userDeviceID sql.NullString

	err := r.db.QueryRow(query, stateID).Scan(
		&state.StateID,
		&state.HardwareDeviceID,
		&state.Name,
		&state.Command,
		&state.CommandValue,
		&device.DeviceID,
		&device.Protocol,
		&device.FriendlyName,
		&device.IEEEAddress,
		&device.Description,
		&device.Vendor,
		&device.Model,
		&device.ModelID,
		&device.PowerSource,
		&device.IsControllable,
		&userDeviceID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("device state not found: %s", stateID)
		}
		return nil, nil, fmt.Errorf("failed to query device state: %w", err)
	}

	if userDeviceID.Valid {
		device.UserDeviceID = &userDeviceID.String
	}

	return &state, &device, nil
}
