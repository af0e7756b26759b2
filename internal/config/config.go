package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the gateway. Values come from the YAML file
// given with -config, then individual flags override.
type Config struct {
	Wifi      WifiConfig      `yaml:"wifi"`
	Modem     ModemConfig     `yaml:"modem"`
	Dedup     DedupConfig     `yaml:"dedup"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
	Battery   BatteryConfig   `yaml:"battery"`
	LED       LEDConfig       `yaml:"led"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Debug     bool            `yaml:"debug"`

	configPath string
}

type WifiConfig struct {
	SSID               string        `yaml:"ssid"`
	Password           string        `yaml:"password"`
	Interface          string        `yaml:"interface"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	Multiplier         int           `yaml:"multiplier"`
	JitterMax          time.Duration `yaml:"jitter_max"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	MaxInitialAttempts int           `yaml:"max_initial_attempts"`
}

type ModemConfig struct {
	Device         string        `yaml:"device"`
	BaudRate       int           `yaml:"baud_rate"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ListTimeout    time.Duration `yaml:"list_timeout"`
	PowerChip      string        `yaml:"power_chip"`
	PowerLine      int           `yaml:"power_line"`
}

type DedupConfig struct {
	Path     string `yaml:"path"`
	Capacity int    `yaml:"capacity"`
}

type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	TLS            bool          `yaml:"tls"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicSMS       string        `yaml:"topic_sms"`
	TopicTelemetry string        `yaml:"topic_telemetry"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type BatteryConfig struct {
	VoltagePath string `yaml:"voltage_path"`
	ScaleMV     int    `yaml:"scale_mv"`
	DividerR1   int    `yaml:"divider_r1"`
	DividerR2   int    `yaml:"divider_r2"`
	LowMV       int    `yaml:"low_mv"`
}

type LEDConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// New returns a Config with defaults applied and flags registered.
func New() *Config {
	cfg := &Config{
		Wifi: WifiConfig{
			Interface:          "wlan0",
			InitialDelay:       1 * time.Second,
			MaxBackoff:         60 * time.Second,
			Multiplier:         2,
			JitterMax:          500 * time.Millisecond,
			ProbeTimeout:       5 * time.Second,
			MaxInitialAttempts: 20,
		},
		Modem: ModemConfig{
			Device:         "/dev/ttyUSB2",
			BaudRate:       115200,
			PollInterval:   5 * time.Second,
			CommandTimeout: 2 * time.Second,
			ListTimeout:    5 * time.Second,
			PowerChip:      "gpiochip0",
			PowerLine:      4,
		},
		Dedup: DedupConfig{
			Path:     "/var/lib/sms-gateway/dedup.db",
			Capacity: 5,
		},
		MQTT: MQTTConfig{
			Port:           8883,
			TLS:            true,
			ClientID:       "sms-gw-01",
			TopicSMS:       "gateway/sms/inbound",
			TopicTelemetry: "gateway/telemetry",
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			URL: "redis://127.0.0.1:6379",
		},
		Battery: BatteryConfig{
			VoltagePath: "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			ScaleMV:     1, // raw units per millivolt at the ADC pin
			DividerR1:   100000,
			DividerR2:   100000,
			LowMV:       3300,
		},
		LED: LEDConfig{
			Chip: "gpiochip0",
			Line: 2,
		},
		Telemetry: TelemetryConfig{
			Interval: 30 * time.Second,
		},
	}

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&cfg.Redis.URL, "redis-url", cfg.Redis.URL, "Redis URL")
	flag.StringVar(&cfg.Modem.Device, "modem-device", cfg.Modem.Device, "Serial device of the SIM module")
	flag.DurationVar(&cfg.Modem.PollInterval, "poll-interval", cfg.Modem.PollInterval, "SMS poll interval")
	flag.StringVar(&cfg.Wifi.Interface, "interface", cfg.Wifi.Interface, "WiFi interface to manage")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	return cfg
}

// Parse loads the YAML file (if any) and applies flag overrides on top.
// Must be called before any other flag.Parse. Validation is separate so
// callers can handle -version before failing on an incomplete config.
func (c *Config) Parse() error {
	// Find -config before the real parse so file values sit below flag overrides.
	if path := findConfigArg(os.Args[1:]); path != "" {
		if err := c.LoadFile(path); err != nil {
			return err
		}
	}

	flag.Parse()
	return nil
}

// LoadFile merges the YAML file at path into the config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("cannot parse config file %s: %v", path, err)
	}
	return nil
}

// Validate checks settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Wifi.SSID == "" {
		return fmt.Errorf("wifi.ssid is required")
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required")
	}
	if c.Dedup.Capacity <= 0 {
		return fmt.Errorf("dedup.capacity must be positive")
	}
	if c.Wifi.Multiplier < 1 {
		return fmt.Errorf("wifi.multiplier must be at least 1")
	}
	return nil
}

func findConfigArg(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
