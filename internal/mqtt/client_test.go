package mqtt

import (
	"testing"

	"github.com/DeviationLabs/homely-vibes/internal/config"
	"github.com/DeviationLabs/homely-vibes/internal/events"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	"github.com/stretchr/testify/assert"
)

func testClient() *MQTTClient {
	return &MQTTClient{
		cfg: config.MQTTConfig{
			BaseTopic: "loremtopic",
		},
	}
}

func TestStateTopics(t *testing.T) {

	assert := assert.New(t)

	client := testClient()

	assert.Equal("loremtopic/bridge/state", client.BridgeStateTopic())
	assert.Equal("loremtopic/sensor/battery_soc/state", client.SensorStateTopic(events.SENSOR_ID_BATTERY_SOC))
	assert.Equal("loremtopic/binary_sensor/bridge/state", client.BinarySensorStateTopic(events.SENSOR_ID_BRIDGE_STATE))
}

func TestHADiscoverySensorMessage(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	device := events.PowerwallDevice(testSite())
	sensors := events.PowerwallSensors(device)

	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])

	assert.Equal("loremtopic/sensor/battery_soc/state", msg.StateTopic)
	assert.Equal("loremtopic/bridge/state", msg.AvTopic)
	assert.Equal("mqtt", msg.Platform)
	assert.Equal("%", msg.UnitOfMeasurement)
	assert.Equal([]string{device.Id}, msg.Device.Id)
	assert.Empty(msg.PayloadOn)
}

func TestHADiscoveryBridgeMessage(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	bridge := events.BridgeDevice("loremtopic")
	sensors := events.BridgeSensors(bridge)

	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])

	assert.Equal("loremtopic/bridge/state", msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
}

func TestHADiscoveryTopic(t *testing.T) {

	assert := assert.New(t)

	device := events.PowerwallDevice(testSite())
	sensors := events.PowerwallSensors(device)

	topic := HADiscoverySensorTopic(sensors[0])

	assert.Equal("homeassistant/sensor/"+device.Id+"/battery_soc/config", topic)
}

func testSite() *powerwall.SiteInfo {
	return &powerwall.SiteInfo{
		EnergySiteID: 12345,
		SiteName:     "Home Energy",
		Version:      "23.44.0",
	}
}
