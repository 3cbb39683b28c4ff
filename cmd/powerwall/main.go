package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/DeviationLabs/homely-vibes/internal/adapter/actor"
	"github.com/DeviationLabs/homely-vibes/internal/adapter/pushover"
	"github.com/DeviationLabs/homely-vibes/internal/config"
	"github.com/DeviationLabs/homely-vibes/internal/core/actor"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"
	"github.com/DeviationLabs/homely-vibes/internal/policy"
	"github.com/DeviationLabs/homely-vibes/internal/server"
	"github.com/DeviationLabs/homely-vibes/internal/util/actorutil"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const alertTitle = "Powerwall Alert"

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	notifier := notifierFromConfig(cfg, logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, powerwallActorProvider(cfg, logger), mqttActorProvider(cfg, logger),
			notifier, policyProviderFromConfig(cfg, logger), fatalHandler(cfg, notifier, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => HOMELY_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("HOMELY_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("homely")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Tesla.TokenFile == "" {
		return nil, errors.New("config param tesla.token_file is required")
	}
	if cfg.ControlConfig.PollIntervalSeconds < 10 {
		return nil, errors.New("config param control.poll_interval_seconds should be >= 10")
	}
	if cfg.NotifyConfig.PushoverEnable && (cfg.NotifyConfig.PushoverAPIToken == "" || cfg.NotifyConfig.PushoverUserKey == "") {
		return nil, errors.New("config params notify.pushover_api_token and notify.pushover_user_key are required when pushover is enabled")
	}

	return &cfg, nil
}

func powerwallActorProvider(cfg *config.Config, logger *zap.Logger) actor.PowerwallActorProvider {
	return func() *adactor.PowerwallActor {
		return adactor.NewPowerwallActor(powerwall.NewOwnerAPIClient(cfg.Tesla.TokenFile, logger), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func notifierFromConfig(cfg *config.Config, logger *zap.Logger) port.NotificationSink {
	if cfg.NotifyConfig.PushoverEnable {
		return pushover.NewNotifier(cfg.NotifyConfig.PushoverAPIToken, cfg.NotifyConfig.PushoverUserKey, logger)
	}
	return pushover.NewNopNotifier(logger)
}

func policyProviderFromConfig(cfg *config.Config, logger *zap.Logger) port.PolicyProvider {
	if cfg.ControlConfig.PolicyFile != "" {
		return policy.NewFileProvider(cfg.ControlConfig.PolicyFile, logger)
	}
	return policy.NewStaticProvider(policy.DefaultDecisionPoints())
}

// fatalHandler alerts and exits after a cooldown. The cooldown keeps a
// supervised service from hammering the gateway on restart loops.
func fatalHandler(cfg *config.Config, notifier port.NotificationSink, logger *zap.Logger) actor.FatalHandler {
	return func(err error) {
		go func() {
			logger.Error("control loop gave up, exiting after cooldown", zap.Error(err),
				zap.Uint32("cooldown_seconds", cfg.ControlConfig.FatalCooldownSeconds))
			notifier.SendAlert(fmt.Sprintf("Giving up! %s", err.Error()), alertTitle, 1)
			time.Sleep(time.Duration(cfg.ControlConfig.FatalCooldownSeconds) * time.Second)
			os.Exit(1)
		}()
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "homely")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("control.poll_interval_seconds", 180)
	viper.SetDefault("control.notify_on_change", true)
	viper.SetDefault("control.fatal_cooldown_seconds", 3600)
	viper.SetDefault("control.daily_summary_cron", "")
	viper.SetDefault("notify.pushover_enable", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.NotifyConfig.PushoverAPIToken = "*redacted*"
	cfg.NotifyConfig.PushoverUserKey = "*redacted*"
	slog.Info("Using", "config", cfg)
}
