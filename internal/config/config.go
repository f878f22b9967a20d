// Package config loads daemon settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/landfill-aeration/internal/actuator"
	"github.com/sweeney/landfill-aeration/internal/kafkasink"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/monitor"
	"github.com/sweeney/landfill-aeration/internal/store"
)

// Log drivers.
const (
	DriverCSV   = "csv"
	DriverMySQL = "mysql"
)

type Config struct {
	Env             string           `yaml:"env"`
	SiteID          string           `yaml:"site_id"`
	Interval        time.Duration    `yaml:"interval"`
	HistoryInterval time.Duration    `yaml:"history_interval"`
	Heartbeat       time.Duration    `yaml:"heartbeat"`
	Seed            int64            `yaml:"seed"`
	Log             LogConfig        `yaml:"log"`
	Rule            logic.Thresholds `yaml:"rule"`
	MQTT            MQTTConfig       `yaml:"mqtt"`
	Kafka           kafkasink.Config `yaml:"kafka"`
	HTTP            HTTPConfig       `yaml:"http"`
	Actuator        ActuatorConfig   `yaml:"actuator"`
}

type LogConfig struct {
	Driver string            `yaml:"driver"`
	Path   string            `yaml:"path"`
	MySQL  store.MySQLConfig `yaml:"mysql"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`    // empty disables MQTT
	WSBroker string `yaml:"ws_broker"` // "=broker" derives from Broker, "off" disables
	ClientID string `yaml:"client_id"`
	Buffer   int    `yaml:"buffer"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the dashboard
}

type ActuatorConfig struct {
	Chip string `yaml:"chip"`
	Pin  int    `yaml:"pin"` // negative disables the output
}

// Default returns the settings used when neither file nor flag says otherwise.
func Default() Config {
	return Config{
		Env:             "prod",
		SiteID:          "demo",
		Interval:        monitor.DefaultInterval,
		HistoryInterval: time.Minute,
		Heartbeat:       15 * time.Minute,
		Log: LogConfig{
			Driver: DriverCSV,
			Path:   "demo_log.csv",
			MySQL:  store.MySQLConfig{Table: store.DefaultTable},
		},
		Rule: logic.DefaultThresholds,
		MQTT: MQTTConfig{
			WSBroker: "=broker",
			Buffer:   1000,
		},
		Kafka: kafkasink.Config{Topic: kafkasink.DefaultTopic},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Actuator: ActuatorConfig{
			Chip: actuator.DefaultChip,
			Pin:  actuator.DefaultPin,
		},
	}
}

// Load reads path over the defaults, so keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	c := Default()

	f, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(f, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.HistoryInterval < 0 {
		errs = append(errs, errors.New("history_interval must not be negative"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	switch c.Log.Driver {
	case DriverCSV:
		if c.Log.Path == "" {
			errs = append(errs, errors.New("log.path is required for the csv driver"))
		}
	case DriverMySQL:
		if c.Log.MySQL.DSN == "" {
			errs = append(errs, errors.New("log.mysql.dsn is required for the mysql driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown log.driver %q", c.Log.Driver))
	}
	if c.MQTT.Buffer < 0 {
		errs = append(errs, errors.New("mqtt.buffer must not be negative"))
	}
	return errors.Join(errs...)
}
