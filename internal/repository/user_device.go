package repository

import (
	"database/sql"
	"fmt"

	"smarthub/internal/models"

	"go.uber.org/zap"
)

// UserDeviceRepository 逻辑设备仓库
type UserDeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserDeviceRepository 创建逻辑设备仓库
func NewUserDeviceRepository(db *sql.DB, logger *zap.Logger) *UserDeviceRepository {
	return &UserDeviceRepository{
		db:     db,
		logger: logger,
	}
}

const userDeviceColumns = `
	user_device_id, user_id, friendly_name, device_identifier, location, protocol
`

func scanUserDevice(row interface{ Scan(...interface{}) error }) (*models.UserDevice, error) {
	var device models.UserDevice
	err := row.Scan(
		&device.UserDeviceID,
		&device.UserID,
		&device.FriendlyName,
		&device.DeviceIdentifier,
		&device.Location,
		&device.Protocol,
	)
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// FindByIdentifier 按设备标识符查找逻辑设备
func (r *UserDeviceRepository) FindByIdentifier(identifier string) ([]models.UserDevice, error) {
	return r.findBy(`device_identifier = $1`, identifier)
}

// FindByName 按显示名查找逻辑设备
func (r *UserDeviceRepository) FindByName(name string) ([]models.UserDevice, error) {
	return r.findBy(`friendly_name = $1`, name)
}

func (r *UserDeviceRepository) findBy(where string, arg interface{}) ([]models.UserDevice, error) {
	query := `SELECT ` + userDeviceColumns + ` FROM user_devices WHERE ` + where + ` ORDER BY created_at`

	rows, err := r.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query user devices: %w", err)
	}
	defer rows.Close()

	var devices []models.UserDevice
	for rows.Next() {
		device, err := scanUserDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user device: %w", err)
		}
		devices = append(devices, *device)
	}

	return devices, rows.Err()
}

// GetByID 按ID查找逻辑设备，不存在时返回 (nil, nil)
func (r *UserDeviceRepository) GetByID(userDeviceID string) (*models.UserDevice, error) {
	query := `SELECT ` + userDeviceColumns + ` FROM user_devices WHERE user_device_id = $1`

	device, err := scanUserDevice(r.db.QueryRow(query, userDeviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user device: %w", err)
	}

	return device, nil
}
