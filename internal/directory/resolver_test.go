package directory

import (
	"encoding/json"
	"testing"

	"smarthub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHardwareStore 内存版目录存取
type fakeHardwareStore struct {
	devices map[string]*models.HardwareDevice // device_id -> device
}

func newFakeHardwareStore() *fakeHardwareStore {
	return &fakeHardwareStore{devices: make(map[string]*models.HardwareDevice)}
}

func (f *fakeHardwareStore) ListIEEEAddresses() ([]string, error) {
	var addresses []string
	for _, d := range f.devices {
		addresses = append(addresses, d.IEEEAddress)
	}
	return addresses, nil
}

func (f *fakeHardwareStore) Create(device *models.HardwareDevice) error {
	if device.DeviceID == "" {
		device.DeviceID = "hw-" + device.IEEEAddress
	}
	copied := *device
	f.devices[device.DeviceID] = &copied
	return nil
}

func (f *fakeHardwareStore) SetControllable(deviceID string) error {
	f.devices[deviceID].IsControllable = true
	return nil
}

func (f *fakeHardwareStore) LinkToUserDevice(deviceID, userDeviceID string) error {
	f.devices[deviceID].UserDeviceID = &userDeviceID
	return nil
}

func (f *fakeHardwareStore) IsUserDeviceLinked(userDeviceID string) (bool, error) {
	for _, d := range f.devices {
		if d.UserDeviceID != nil && *d.UserDeviceID == userDeviceID {
			return true, nil
		}
	}
	return false, nil
}

// fakeUserDeviceStore 内存版逻辑设备查找
type fakeUserDeviceStore struct {
	devices []models.UserDevice
}

func (f *fakeUserDeviceStore) FindByIdentifier(identifier string) ([]models.UserDevice, error) {
	var result []models.UserDevice
	for _, d := range f.devices {
		if d.DeviceIdentifier == identifier {
			result = append(result, d)
		}
	}
	return result, nil
}

func (f *fakeUserDeviceStore) FindByName(name string) ([]models.UserDevice, error) {
	var result []models.UserDevice
	for _, d := range f.devices {
		if d.FriendlyName == name {
			result = append(result, d)
		}
	}
	return result, nil
}

// fakeStateStore 内存版状态命令存取
type fakeStateStore struct {
	states []models.DeviceState
}

func (f *fakeStateStore) ExistsByName(hardwareDeviceID, name string) (bool, error) {
	for _, s := range f.states {
		if s.HardwareDeviceID == hardwareDeviceID && s.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStateStore) Create(state *models.DeviceState) error {
	f.states = append(f.states, *state)
	return nil
}

func setupTestResolver() (*Resolver, *fakeHardwareStore, *fakeUserDeviceStore, *fakeStateStore) {
	hardware := newFakeHardwareStore()
	userDevices := &fakeUserDeviceStore{}
	states := &fakeStateStore{}
	resolver := NewResolver(hardware, userDevices, states, zap.NewNop())
	return resolver, hardware, userDevices, states
}

func descriptorsFromJSON(t *testing.T, raw string) []map[string]interface{} {
	var descriptors []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &descriptors))
	return descriptors
}

func TestRegisterAnnouncedDevices_NewControllableDevice(t *testing.T) {
	resolver, hardware, _, states := setupTestResolver()

	descriptors := descriptorsFromJSON(t, `[{
		"ieee_address": "A1B2",
		"friendly_name": "Kitchen Plug",
		"power_source": "mains",
		"definition": {
			"vendor": "acme",
			"model": "plug-1",
			"exposes": [{
				"features": [{
					"property": "state",
					"value_on": "ON",
					"value_off": "OFF"
				}]
			}]
		}
	}]`)

	require.NoError(t, resolver.RegisterAnnouncedDevices(descriptors))

	require.Len(t, hardware.devices, 1)
	var device *models.HardwareDevice
	for _, d := range hardware.devices {
		device = d
	}

	// identifier 与 display name 小写存储
	assert.Equal(t, "a1b2", device.IEEEAddress)
	assert.Equal(t, "kitchen plug", device.FriendlyName)
	assert.Equal(t, "acme", device.Vendor)
	assert.Equal(t, "mains", device.PowerSource)
	assert.True(t, device.IsControllable)

	// 每个非空值变体一条状态命令，小写
	require.Len(t, states.states, 2)
	assert.Equal(t, "off", states.states[0].Name)
	assert.Equal(t, "state", states.states[0].Command)
	assert.Equal(t, "on", states.states[1].Name)
}

func TestRegisterAnnouncedDevices_ExistingDeviceSkipped(t *testing.T) {
	resolver, hardware, _, _ := setupTestResolver()

	hardware.Create(&models.HardwareDevice{IEEEAddress: "a1b2", FriendlyName: "old"})

	descriptors := descriptorsFromJSON(t, `[{"ieee_address": "A1B2", "friendly_name": "new name"}]`)
	require.NoError(t, resolver.RegisterAnnouncedDevices(descriptors))

	assert.Len(t, hardware.devices, 1)
}

func TestRegisterAnnouncedDevices_SensorWithoutFeatures(t *testing.T) {
	resolver, hardware, _, states := setupTestResolver()

	descriptors := descriptorsFromJSON(t, `[{
		"ieee_address": "c3d4",
		"friendly_name": "temp sensor",
		"definition": {"vendor": "acme", "exposes": [{"property": "temperature"}]}
	}]`)

	require.NoError(t, resolver.RegisterAnnouncedDevices(descriptors))

	require.Len(t, hardware.devices, 1)
	for _, d := range hardware.devices {
		assert.False(t, d.IsControllable)
	}
	assert.Empty(t, states.states)
}

func TestRegisterAnnouncedDevices_StateDedupByName(t *testing.T) {
	resolver, _, _, states := setupTestResolver()

	// value_on 与 value_toggle 相同值只建一条
	descriptors := descriptorsFromJSON(t, `[{
		"ieee_address": "a1b2",
		"friendly_name": "plug",
		"definition": {"exposes": [{
			"features": [{"property": "state", "value_on": "ON", "value_toggle": "ON"}]
		}]}
	}]`)

	require.NoError(t, resolver.RegisterAnnouncedDevices(descriptors))
	assert.Len(t, states.states, 1)
}

func TestRegisterAnnouncedDevices_CommandLowercased(t *testing.T) {
	resolver, _, _, states := setupTestResolver()

	descriptors := descriptorsFromJSON(t, `[{
		"ieee_address": "a1b2",
		"friendly_name": "plug",
		"definition": {"exposes": [{
			"features": [{"property": "State", "value_on": "ON"}]
		}]}
	}]`)

	require.NoError(t, resolver.RegisterAnnouncedDevices(descriptors))

	require.Len(t, states.states, 1)
	assert.Equal(t, "state", states.states[0].Command)
	assert.Equal(t, "on", states.states[0].CommandValue)
}

func TestTryLink_IdentifierMatchWins(t *testing.T) {
	resolver, hardware, userDevices, _ := setupTestResolver()

	userDevices.devices = []models.UserDevice{
		{UserDeviceID: "ud-by-name", UserID: "user-1", FriendlyName: "plug", DeviceIdentifier: "other"},
		{UserDeviceID: "ud-by-id", UserID: "user-1", FriendlyName: "something", DeviceIdentifier: "a1b2"},
	}

	device := &models.HardwareDevice{IEEEAddress: "a1b2", FriendlyName: "plug"}
	require.NoError(t, hardware.Create(device))
	device = hardware.devices[device.DeviceID]

	linked, err := resolver.TryLinkToLogicalDevice(device)
	require.NoError(t, err)
	assert.True(t, linked)
	require.NotNil(t, device.UserDeviceID)
	assert.Equal(t, "ud-by-id", *device.UserDeviceID)
}

func TestTryLink_NameMatchFallback(t *testing.T) {
	resolver, hardware, userDevices, _ := setupTestResolver()

	userDevices.devices = []models.UserDevice{
		{UserDeviceID: "ud-1", UserID: "user-1", FriendlyName: "plug", DeviceIdentifier: "other"},
	}

	device := &models.HardwareDevice{IEEEAddress: "a1b2", FriendlyName: "plug"}
	require.NoError(t, hardware.Create(device))
	device = hardware.devices[device.DeviceID]

	linked, err := resolver.TryLinkToLogicalDevice(device)
	require.NoError(t, err)
	assert.True(t, linked)
	assert.Equal(t, "ud-1", *device.UserDeviceID)
}

func TestTryLink_AmbiguousMatchNoLink(t *testing.T) {
	resolver, hardware, userDevices, _ := setupTestResolver()

	// 两个不同用户都用了同一个显示名
	userDevices.devices = []models.UserDevice{
		{UserDeviceID: "ud-1", UserID: "user-1", FriendlyName: "plug"},
		{UserDeviceID: "ud-2", UserID: "user-2", FriendlyName: "plug"},
	}

	device := &models.HardwareDevice{IEEEAddress: "a1b2", FriendlyName: "plug"}
	require.NoError(t, hardware.Create(device))
	device = hardware.devices[device.DeviceID]

	linked, err := resolver.TryLinkToLogicalDevice(device)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Nil(t, device.UserDeviceID)
}

func TestTryLink_AlreadyLinkedNoop(t *testing.T) {
	resolver, _, userDevices, _ := setupTestResolver()

	userDevices.devices = []models.UserDevice{
		{UserDeviceID: "ud-1", FriendlyName: "plug", DeviceIdentifier: "a1b2"},
	}

	existing := "ud-other"
	device := &models.HardwareDevice{DeviceID: "hw-1", IEEEAddress: "a1b2", UserDeviceID: &existing}

	linked, err := resolver.TryLinkToLogicalDevice(device)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Equal(t, "ud-other", *device.UserDeviceID)
}

func TestTryLink_TargetAlreadyLinkedElsewhere(t *testing.T) {
	resolver, hardware, userDevices, _ := setupTestResolver()

	userDevices.devices = []models.UserDevice{
		{UserDeviceID: "ud-1", FriendlyName: "plug", DeviceIdentifier: "a1b2"},
	}

	// ud-1 已被另一个目录条目占用
	other := &models.HardwareDevice{IEEEAddress: "ffff"}
	require.NoError(t, hardware.Create(other))
	require.NoError(t, hardware.LinkToUserDevice(other.DeviceID, "ud-1"))

	device := &models.HardwareDevice{IEEEAddress: "a1b2", FriendlyName: "plug"}
	require.NoError(t, hardware.Create(device))
	device = hardware.devices[device.DeviceID]

	linked, err := resolver.TryLinkToLogicalDevice(device)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Nil(t, device.UserDeviceID)
}
