package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Tesla    TeslaConfig `mapstructure:"tesla"`
	MQTT     MQTTConfig  `mapstructure:"mqtt"`

	ControlConfig ControlConfig `mapstructure:"control"`
	NotifyConfig  NotifyConfig  `mapstructure:"notify"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type TeslaConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

type ControlConfig struct {
	PollIntervalSeconds  uint32 `mapstructure:"poll_interval_seconds"`
	PolicyFile           string `mapstructure:"policy_file"`
	NotifyOnChange       bool   `mapstructure:"notify_on_change"`
	FatalCooldownSeconds uint32 `mapstructure:"fatal_cooldown_seconds"`
	DailySummaryCron     string `mapstructure:"daily_summary_cron"`
}

type NotifyConfig struct {
	PushoverEnable   bool   `mapstructure:"pushover_enable"`
	PushoverAPIToken string `mapstructure:"pushover_api_token"`
	PushoverUserKey  string `mapstructure:"pushover_user_key"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
