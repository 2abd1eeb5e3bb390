package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("CSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Allow common env vars without CSMS_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "CSMS_HTTP_PORT")
	viper.BindEnv("ocpp.port", "OCPP_PORT", "CSMS_OCPP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "CSMS_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "CSMS_REDIS_URL")
	viper.BindEnv("queue.nats.url", "NATS_URL", "CSMS_QUEUE_NATS_URL")
	viper.BindEnv("queue.rabbitmq.url", "RABBITMQ_URL", "CSMS_QUEUE_RABBITMQ_URL")
	viper.BindEnv("mqtt.broker_host", "MQTT_BROKER_HOST", "CSMS_MQTT_BROKER_HOST")
	viper.BindEnv("mqtt.broker_port", "MQTT_BROKER_PORT", "CSMS_MQTT_BROKER_PORT")
	viper.BindEnv("cluster.node_id", "NODE_ID", "CSMS_CLUSTER_NODE_ID")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "ocpp-csms")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("ocpp.port", 9000)
	viper.SetDefault("ocpp.heartbeat_interval", 30)
	viper.SetDefault("ocpp.call_timeout", 5*time.Second)
	viper.SetDefault("ocpp.websocket_ping_interval", 20*time.Second)
	viper.SetDefault("ocpp.websocket_pong_wait", 10*time.Second)
	viper.SetDefault("ocpp.default_charging_rate_kw", 7.0)
	viper.SetDefault("ocpp.default_price_per_kwh", 2700.0)
	viper.SetDefault("ocpp.default_connector_type", "Type2")
	viper.SetDefault("ocpp.simulate_on_disconnect", true)
	viper.SetDefault("transports.websocket_enabled", true)
	viper.SetDefault("transports.http_enabled", true)
	viper.SetDefault("transports.mqtt_enabled", false)
	viper.SetDefault("transports.priority", []string{"mqtt", "websocket", "http"})
	viper.SetDefault("transports.http_freshness_window", 5*time.Minute)
	viper.SetDefault("mqtt.broker_port", 1883)
	viper.SetDefault("mqtt.keep_alive", 60*time.Second)
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("queue.backend", "none")
	viper.SetDefault("cluster.enabled", false)
	viper.SetDefault("cluster.registry_ttl", time.Hour)
	viper.SetDefault("cluster.response_poll_interval", 100*time.Millisecond)
	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("prometheus.path", "/metrics")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", time.Minute)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_threshold", 0.6)
}
