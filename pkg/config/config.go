package config

import (
	"fmt"
	"time"
)

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	OCPP           OCPPConfig           `mapstructure:"ocpp"`
	Transports     TransportsConfig     `mapstructure:"transports"`
	MQTT           MQTTConfig           `mapstructure:"mqtt"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Cluster        ClusterConfig        `mapstructure:"cluster"`
	Prometheus     PrometheusConfig     `mapstructure:"prometheus"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	CORS           CORSConfig           `mapstructure:"cors"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// OCPPConfig carries the protocol-facing knobs: heartbeat cadence told to
// chargers, outbound call timeout, and the simulated-meter defaults
// applied to chargers that never declared their own.
type OCPPConfig struct {
	Port                  int           `mapstructure:"port"`
	HeartbeatInterval     int           `mapstructure:"heartbeat_interval"`
	CallTimeout           time.Duration `mapstructure:"call_timeout"`
	WebsocketPingInterval time.Duration `mapstructure:"websocket_ping_interval"`
	WebsocketPongWait     time.Duration `mapstructure:"websocket_pong_wait"`
	DefaultChargingRateKW float64       `mapstructure:"default_charging_rate_kw"`
	DefaultPricePerKWh    float64       `mapstructure:"default_price_per_kwh"`
	DefaultConnectorType  string        `mapstructure:"default_connector_type"`
	SimulateOnDisconnect  bool          `mapstructure:"simulate_on_disconnect"`
}

// TransportsConfig selects which carriers are started and in which order
// outbound sends try them.
type TransportsConfig struct {
	WebsocketEnabled bool          `mapstructure:"websocket_enabled"`
	HTTPEnabled      bool          `mapstructure:"http_enabled"`
	MQTTEnabled      bool          `mapstructure:"mqtt_enabled"`
	Priority         []string      `mapstructure:"priority"`
	HTTPFreshness    time.Duration `mapstructure:"http_freshness_window"`
}

type MQTTConfig struct {
	BrokerHost string        `mapstructure:"broker_host"`
	BrokerPort int           `mapstructure:"broker_port"`
	ClientID   string        `mapstructure:"client_id"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	KeepAlive  time.Duration `mapstructure:"keep_alive"`
	QoS        byte          `mapstructure:"qos"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type QueueConfig struct {
	Backend  string         `mapstructure:"backend"` // nats | rabbitmq | none
	NATS     NATSConfig     `mapstructure:"nats"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// ClusterConfig enables the distributed connection registry and cross-node
// relay. NodeID is auto-generated when empty.
type ClusterConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	NodeID               string        `mapstructure:"node_id"`
	RegistryTTL          time.Duration `mapstructure:"registry_ttl"`
	ResponsePollInterval time.Duration `mapstructure:"response_poll_interval"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      int           `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if !c.Transports.WebsocketEnabled && !c.Transports.HTTPEnabled && !c.Transports.MQTTEnabled {
		return fmt.Errorf("config: at least one transport must be enabled")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.OCPP.CallTimeout <= 0 {
		return fmt.Errorf("config: ocpp.call_timeout must be positive")
	}
	if c.OCPP.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: ocpp.heartbeat_interval must be positive")
	}
	if c.Transports.MQTTEnabled && c.MQTT.BrokerHost == "" {
		return fmt.Errorf("config: mqtt.broker_host is required when the mqtt transport is enabled")
	}
	if c.Cluster.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("config: redis.url is required in cluster mode")
	}
	for _, p := range c.Transports.Priority {
		switch p {
		case "websocket", "http", "mqtt":
		default:
			return fmt.Errorf("config: unknown transport %q in priority list", p)
		}
	}
	return nil
}
