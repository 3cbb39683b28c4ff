package domain

// Sensor metadata published through Home Assistant MQTT discovery.

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing
	DeviceClass       string // battery, power, energy, ...
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

// EventStream model

type SensorUpdateEvent interface {
	SensorId() string
}

type GenericSensorUpdateEvent struct {
	Id string
}

func (e GenericSensorUpdateEvent) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	GenericSensorUpdateEvent
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	GenericSensorUpdateEvent
	Value string
}

type BridgeStateUpdateEvent struct {
	GenericSensorUpdateEvent
	Value bool
}
