package repository

import (
	"database/sql"
	"fmt"
	"time"

	"smarthub/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HardwareDeviceRepository 硬件设备目录仓库
type HardwareDeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHardwareDeviceRepository 创建硬件设备仓库
func NewHardwareDeviceRepository(db *sql.DB, logger *zap.Logger) *HardwareDeviceRepository {
	return &HardwareDeviceRepository{
		db:     db,
		logger: logger,
	}
}

const hardwareDeviceColumns = `
	device_id, protocol, friendly_name, ieee_address, description,
	vendor, model, model_id, power_source, is_controllable, user_device_id
`

// scanHardwareDevice 扫描单行硬件设备记录
func scanHardwareDevice(row interface{ Scan(...interface{}) error }) (*models.HardwareDevice, error) {
	var device models.HardwareDevice
	var userDeviceID sql.NullString

	err := row.Scan(
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
		return nil, err
	}

	if userDeviceID.Valid {
		device.UserDeviceID = &userDeviceID.String
	}

	return &device, nil
}

// ListIEEEAddresses 返回目录中所有已知设备标识符
func (r *HardwareDeviceRepository) ListIEEEAddresses() ([]string, error) {
	rows, err := r.db.Query(`SELECT ieee_address FROM hardware_devices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ieee addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan ieee address: %w", err)
		}
		addresses = append(addresses, address)
	}

	return addresses, rows.Err()
}

// Create 创建硬件设备目录条目
func (r *HardwareDeviceRepository) Create(device *models.HardwareDevice) error {
	if device.DeviceID == "" {
		device.DeviceID = uuid.NewString()
	}
	now := time.Now()

	query := `
		INSERT INTO hardware_devices (
			device_id, protocol, friendly_name, ieee_address, description,
			vendor, model, model_id, power_source, is_controllable,
			user_device_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var userDeviceID sql.NullString
	if device.UserDeviceID != nil {
		userDeviceID = sql.NullString{String: *device.UserDeviceID, Valid: true}
	}

	_, err := r.db.Exec(query,
		device.DeviceID,
		device.Protocol,
		device.FriendlyName,
		device.IEEEAddress,
		device.Description,
		device.Vendor,
		device.Model,
		device.ModelID,
		device.PowerSource,
		device.IsControllable,
		userDeviceID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create hardware device: %w", err)
	}

	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

// FindByIdentifierOrName 按标识符或显示名查找目录条目，标识符匹配优先
// 没有匹配时返回 (nil, nil)
func (r *HardwareDeviceRepository) FindByIdentifierOrName(identifier, name string) (*models.HardwareDevice, error) {
	query := `
		SELECT ` + hardwareDeviceColumns + `
		FROM hardware_devices
		WHERE ieee_address = $1 OR friendly_name = $2
		ORDER BY (ieee_address = $1) DESC, created_at
		LIMIT 1
	`

	device, err := scanHardwareDevice(r.db.QueryRow(query, identifier, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query hardware device: %w", err)
	}

	return device, nil
}

// SetControllable 标记设备可被控制
func (r *HardwareDeviceRepository) SetControllable(deviceID string) error {
	_, err := r.db.Exec(
		`UPDATE hardware_devices SET is_controllable = TRUE, updated_at = $2 WHERE device_id = $1`,
		deviceID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark device controllable: %w", err)
	}
	return nil
}

// LinkToUserDevice 把目录条目关联到逻辑设备
func (r *HardwareDeviceRepository) LinkToUserDevice(deviceID, userDeviceID string) error {
	_, err := r.db.Exec(
		`UPDATE hardware_devices SET user_device_id = $2, updated_at = $3 WHERE device_id = $1`,
		deviceID, userDeviceID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to link hardware device: %w", err)
	}
	return nil
}

// IsUserDeviceLinked 检查逻辑设备是否已关联目录条目
// 一个逻辑设备最多关联一个目录条目
func (r *HardwareDeviceRepository) IsUserDeviceLinked(userDeviceID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM hardware_devices WHERE user_device_id = $1`,
		userDeviceID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check user device link: %w", err)
	}
	return count > 0, nil
}
