package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE      = "bridge"
	SENSOR_ID_BATTERY_SOC       = "battery_soc"
	SENSOR_ID_BACKUP_RESERVE    = "backup_reserve"
	SENSOR_ID_OPERATION_MODE    = "operation_mode"
	SENSOR_ID_GRID_STATUS       = "grid_status"
	SENSOR_ID_LAST_REASON       = "last_action_reason"
	STATE_CLASS_MEASUREMENT     = "measurement"
	DEVICE_CLASS_BATTERY        = "battery"
	DEVICE_CLASS_CONNECTIVITY   = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC     = "diagnostic"
	SENSOR_TYPE_SENSOR          = "sensor"
	SENSOR_TYPE_BINARY          = "binary_sensor"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("homely_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "DeviationLabs",
		Model:        "Homely Vibes",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Homely %s", md5HashShort(baseTopic)),
	}
}

func PowerwallDevice(info *powerwall.SiteInfo) domain.Device {
	serial := fmt.Sprintf("%d", info.EnergySiteID)
	return domain.Device{
		Id:           fmt.Sprintf("hv_powerwall_%s", md5HashShort(serial)),
		Version:      info.Version,
		Manufacturer: "Tesla",
		Model:        "Powerwall",
		Name:         fmt.Sprintf("Powerwall %s", info.SiteName),
	}
}

func PowerwallSensors(device domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	// Battery SoC
	sensors = append(sensors, domain.GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoC",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_BATTERY_SOC),
	})

	// Backup reserve
	sensors = append(sensors, domain.GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_BACKUP_RESERVE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Backup reserve",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		Icon:              "mdi:battery-lock",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_BACKUP_RESERVE),
	})

	// Operation mode
	sensors = append(sensors, domain.GenericSensor{
		Device:     device,
		Id:         SENSOR_ID_OPERATION_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Operation mode",
		Icon:       "mdi:home-battery",
		UniqueId:   uniqueId(device.Id, SENSOR_ID_OPERATION_MODE),
	})

	// Grid status
	sensors = append(sensors, domain.GenericSensor{
		Device:     device,
		Id:         SENSOR_ID_GRID_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Grid status",
		Icon:       "mdi:transmission-tower",
		UniqueId:   uniqueId(device.Id, SENSOR_ID_GRID_STATUS),
	})

	// Last action reason
	sensors = append(sensors, domain.GenericSensor{
		Device:         device,
		Id:             SENSOR_ID_LAST_REASON,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Last action reason",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, SENSOR_ID_LAST_REASON),
	})

	return sensors
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	sensors = append(sensors, domain.GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func SiteStateToUpdateEvents(state *domain.SiteState) []domain.SensorUpdateEvent {
	var events []domain.SensorUpdateEvent

	events = append(events, domain.FloatSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: SENSOR_ID_BATTERY_SOC,
		},
		Value:    state.BatteryPercent,
		Decimals: 2,
	})
	events = append(events, domain.FloatSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: SENSOR_ID_BACKUP_RESERVE,
		},
		Value:    float64(state.BackupReservePercent),
		Decimals: 0,
	})
	events = append(events, domain.TextSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: SENSOR_ID_OPERATION_MODE,
		},
		Value: state.OperationMode.String(),
	})
	if state.GridStatus != "" {
		events = append(events, domain.TextSensorUpdateEvent{
			GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
				Id: SENSOR_ID_GRID_STATUS,
			},
			Value: state.GridStatus,
		})
	}

	return events
}

func ReasonUpdateEvent(reason string) domain.SensorUpdateEvent {
	return domain.TextSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: SENSOR_ID_LAST_REASON,
		},
		Value: reason,
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
