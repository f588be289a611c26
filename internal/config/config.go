package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MQTT     MQTTConfig     `json:"mqtt"`
	Server   ServerConfig   `json:"server"`
	Registry RegistryConfig `json:"registry"`
	Logger   LoggerConfig   `json:"logger"`
}

type MQTTConfig struct {
	Broker            string        `json:"broker"`
	GPSTopic          string        `json:"gps_topic"`
	RFIDTopic         string        `json:"rfid_topic"`
	Username          string        `json:"username"`
	Password          string        `json:"password"`
	ClientPrefix      string        `json:"client_prefix"`
	QoS               byte          `json:"qos"`
	KeepAlive         time.Duration `json:"keep_alive"`
	ConnectTimeout    time.Duration `json:"connect_timeout"`
	ReconnectInterval time.Duration `json:"reconnect_interval"`
	CleanSession      bool          `json:"clean_session"`
	InboundBuffer     int           `json:"inbound_buffer"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	SessionBuffer   int           `json:"session_buffer"`
}

type RegistryConfig struct {
	MaxScans int `json:"max_scans"`
}

type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		MQTT: MQTTConfig{
			Broker:            getEnv("MQTT_BROKER", ""),
			GPSTopic:          getEnv("MQTT_GPS_TOPIC", "devices/gps"),
			RFIDTopic:         getEnv("MQTT_RFID_TOPIC", "devices/rfid"),
			Username:          getEnv("MQTT_USERNAME", ""),
			Password:          getEnv("MQTT_PASSWORD", ""),
			ClientPrefix:      getEnv("MQTT_CLIENT_PREFIX", "iot-relay"),
			QoS:               byte(getEnvAsInt("MQTT_QOS", 1)),
			KeepAlive:         getEnvAsDuration("MQTT_KEEP_ALIVE", "60s"),
			ConnectTimeout:    getEnvAsDuration("MQTT_CONNECT_TIMEOUT", "10s"),
			ReconnectInterval: getEnvAsDuration("MQTT_RECONNECT_INTERVAL", "5s"),
			CleanSession:      getEnvAsBool("MQTT_CLEAN_SESSION", true),
			InboundBuffer:     getEnvAsInt("MQTT_INBOUND_BUFFER", 256),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 3000),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "10s"),
			SessionBuffer:   getEnvAsInt("SERVER_SESSION_BUFFER", 64),
		},
		Registry: RegistryConfig{
			MaxScans: getEnvAsInt("REGISTRY_MAX_SCANS", 100),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	return config, config.validate()
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT QoS must be 0, 1, or 2, got %d", c.MQTT.QoS)
	}
	if c.Registry.MaxScans <= 0 {
		return fmt.Errorf("scan history size must be positive, got %d", c.Registry.MaxScans)
	}
	if c.MQTT.InboundBuffer <= 0 {
		return fmt.Errorf("inbound buffer size must be positive, got %d", c.MQTT.InboundBuffer)
	}
	if c.Server.SessionBuffer <= 0 {
		return fmt.Errorf("session buffer size must be positive, got %d", c.Server.SessionBuffer)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
