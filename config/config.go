// Package config loads and validates the clock's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything the daemon needs to know at startup.  Values come from
// built-in defaults, an optional YAML file, and DESKCLOCK_* environment
// variables, in increasing order of precedence.
type Config struct {
	Log     Log     `mapstructure:"log"`
	HTTP    HTTP    `mapstructure:"http"`
	Clock   Clock   `mapstructure:"clock"`
	Display Display `mapstructure:"display"`
	Air     Air     `mapstructure:"air"`
	Sensors Sensors `mapstructure:"sensors"`
	Buttons Buttons `mapstructure:"buttons"`
	Panel   Panel   `mapstructure:"panel"`
	Store   Store   `mapstructure:"store"`
	MQTT    MQTT    `mapstructure:"mqtt"`
	Influx  Influx  `mapstructure:"influx"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HTTP struct {
	Bind string `mapstructure:"bind"`
}

// Clock configures the RTC, the tick source, and NTP synchronization.
type Clock struct {
	I2CBus         string `mapstructure:"i2c_bus"`
	TickPin        string `mapstructure:"tick_pin"`
	System         bool   `mapstructure:"system"` // use the host clock instead of a DS1307
	Timezone       string `mapstructure:"timezone"`
	UTCOffsetHours int    `mapstructure:"utc_offset_hours"`
	NTPServer      string `mapstructure:"ntp_server"`
	SyncHour       int    `mapstructure:"sync_hour"`
}

type Display struct {
	SPIDev      string  `mapstructure:"spi_dev"`
	PowerBudget float64 `mapstructure:"power_budget"` // watts; 0 disables scaling
	Colors      Colors  `mapstructure:"colors"`
	Night       Night   `mapstructure:"night"`
}

type Colors struct {
	Second  string `mapstructure:"second"`
	Minute  string `mapstructure:"minute"`
	Hour    string `mapstructure:"hour"`
	Overlap string `mapstructure:"overlap"`
}

type Night struct {
	StartHour int   `mapstructure:"start_hour"`
	EndHour   int   `mapstructure:"end_hour"`
	Level     uint8 `mapstructure:"level"`
	DayLevel  uint8 `mapstructure:"day_level"`
}

type Air struct {
	Colors AirColors `mapstructure:"colors"`
}

type AirColors struct {
	Excellent string `mapstructure:"excellent"`
	Good      string `mapstructure:"good"`
	Moderate  string `mapstructure:"moderate"`
	Poor      string `mapstructure:"poor"`
	Unhealthy string `mapstructure:"unhealthy"`
	Dangerous string `mapstructure:"dangerous"`
}

type Sensors struct {
	Simulate    bool          `mapstructure:"simulate"`
	Interval    time.Duration `mapstructure:"interval"`
	IndoorAddr  uint16        `mapstructure:"indoor_addr"`
	OutdoorAddr uint16        `mapstructure:"outdoor_addr"`
	ADCAddr     uint16        `mapstructure:"adc_addr"`
	RZero       float64       `mapstructure:"r_zero"`
	RLoad       float64       `mapstructure:"r_load"` // kilohms
}

type Buttons struct {
	ModePin   string        `mapstructure:"mode_pin"`
	SelectPin string        `mapstructure:"select_pin"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

type Panel struct {
	Device string `mapstructure:"device"` // /dev/i2c-N path; empty disables the OLED
}

type Store struct {
	Path        string        `mapstructure:"path"` // empty disables the readings log
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type MQTT struct {
	Broker      string `mapstructure:"broker"` // empty disables publishing
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type Influx struct {
	URL    string `mapstructure:"url"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
	Token  string `mapstructure:"token"` // empty disables sending
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("http.bind", ":8080")
	v.SetDefault("clock.i2c_bus", "")
	v.SetDefault("clock.tick_pin", "")
	v.SetDefault("clock.system", false)
	v.SetDefault("clock.timezone", "")
	v.SetDefault("clock.utc_offset_hours", 1)
	v.SetDefault("clock.ntp_server", "pool.ntp.org")
	v.SetDefault("clock.sync_hour", 0)
	v.SetDefault("display.spi_dev", "")
	v.SetDefault("display.power_budget", 0.0)
	v.SetDefault("display.colors.second", "#FF0000")
	v.SetDefault("display.colors.minute", "#00FF00")
	v.SetDefault("display.colors.hour", "#0000FF")
	v.SetDefault("display.colors.overlap", "#FFFF00")
	v.SetDefault("display.night.start_hour", 22)
	v.SetDefault("display.night.end_hour", 7)
	v.SetDefault("display.night.level", 50)
	v.SetDefault("display.night.day_level", 255)
	v.SetDefault("air.colors.excellent", "#00FF00")
	v.SetDefault("air.colors.good", "#ADFF2F")
	v.SetDefault("air.colors.moderate", "#FFFF00")
	v.SetDefault("air.colors.poor", "#FFA500")
	v.SetDefault("air.colors.unhealthy", "#FF0000")
	v.SetDefault("air.colors.dangerous", "#800080")
	v.SetDefault("sensors.simulate", false)
	v.SetDefault("sensors.interval", "30s")
	v.SetDefault("sensors.indoor_addr", 0x76)
	v.SetDefault("sensors.outdoor_addr", 0x77)
	v.SetDefault("sensors.adc_addr", 0x48)
	v.SetDefault("sensors.r_zero", 76.63)
	v.SetDefault("sensors.r_load", 10.0)
	v.SetDefault("buttons.mode_pin", "GPIO17")
	v.SetDefault("buttons.select_pin", "GPIO27")
	v.SetDefault("buttons.debounce", "50ms")
	v.SetDefault("panel.device", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.min_interval", "5m")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "deskclock")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "deskclock")
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.token", "")
}

// Load reads the configuration.  path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DESKCLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks ranges and color syntax before anything touches hardware.
func (c *Config) Validate() error {
	for name, h := range map[string]int{
		"clock.sync_hour":          c.Clock.SyncHour,
		"display.night.start_hour": c.Display.Night.StartHour,
		"display.night.end_hour":   c.Display.Night.EndHour,
	} {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s: %d is not an hour of the day", name, h)
		}
	}
	if c.Display.Night.Level == 0 {
		return errors.New("display.night.level: must be nonzero or the rings go dark all night")
	}
	if c.Display.Night.DayLevel == 0 {
		return errors.New("display.night.day_level: must be nonzero")
	}
	for name, s := range map[string]string{
		"display.colors.second":  c.Display.Colors.Second,
		"display.colors.minute":  c.Display.Colors.Minute,
		"display.colors.hour":    c.Display.Colors.Hour,
		"display.colors.overlap": c.Display.Colors.Overlap,
		"air.colors.excellent":   c.Air.Colors.Excellent,
		"air.colors.good":        c.Air.Colors.Good,
		"air.colors.moderate":    c.Air.Colors.Moderate,
		"air.colors.poor":        c.Air.Colors.Poor,
		"air.colors.unhealthy":   c.Air.Colors.Unhealthy,
		"air.colors.dangerous":   c.Air.Colors.Dangerous,
	} {
		if _, err := ParseColor(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Sensors.Interval < time.Second {
		return fmt.Errorf("sensors.interval: %v is shorter than a second", c.Sensors.Interval)
	}
	if c.Sensors.RLoad <= 0 {
		return fmt.Errorf("sensors.r_load: %v must be positive", c.Sensors.RLoad)
	}
	if c.Sensors.RZero <= 0 {
		return fmt.Errorf("sensors.r_zero: %v must be positive", c.Sensors.RZero)
	}
	if c.Buttons.Debounce <= 0 {
		return fmt.Errorf("buttons.debounce: %v must be positive", c.Buttons.Debounce)
	}
	if c.Store.MinInterval < 0 {
		return fmt.Errorf("store.min_interval: %v must not be negative", c.Store.MinInterval)
	}
	if _, err := c.Clock.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.  A named zone wins over the
// fixed hour offset.
func (c Clock) Location() (*time.Location, error) {
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
		}
		return loc, nil
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*3600), nil
}

// ParseColor converts "#RRGGBB" (or "RRGGBB") to an opaque color.
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}
