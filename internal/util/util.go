package util

import (
	"github.com/DeviationLabs/homely-vibes/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Tesla: config.TeslaConfig{
			TokenFile: "/tmp/tesla_tokens.json",
		},
		MQTT: config.MQTTConfig{
			Enable:    true,
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "homely",
		},
		ControlConfig: config.ControlConfig{
			PollIntervalSeconds:  180,
			NotifyOnChange:       true,
			FatalCooldownSeconds: 3600,
		},
		NotifyConfig: config.NotifyConfig{
			PushoverEnable: false,
		},
		Port: 8080,
	}
}
