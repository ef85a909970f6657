// Package publish mirrors sensor readings to an MQTT broker, one topic per
// value plus a retained JSON status, so home automation can react to the
// room the clock sits in.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/jrockway/deskclock/sensors"
)

const publishTimeout = 5 * time.Second

// Opts configures the broker connection.
type Opts struct {
	Broker      string // e.g. tcp://localhost:1883; empty disables publishing
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher sends readings to the broker.  The zero Broker form is a no-op,
// which keeps the sensor pipeline identical with and without MQTT.
type Publisher struct {
	client mqtt.Client
	prefix string
	logger zerolog.Logger
}

// New connects to the broker.  If the broker is not up yet, the connection
// keeps retrying in the background rather than failing the boot.
func New(opts Opts, logger zerolog.Logger) (*Publisher, error) {
	logger = logger.With().Str("component", "mqtt").Logger()
	if opts.Broker == "" {
		return &Publisher{logger: logger}, nil
	}
	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info().Msg("mqtt connected")
		})
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	client := mqtt.NewClient(o)
	token := client.Connect()
	if ok := token.WaitTimeout(publishTimeout); ok && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	} else if !ok {
		logger.Warn().Str("broker", opts.Broker).Msg("mqtt broker not reachable yet; retrying in the background")
	}
	return &Publisher{client: client, prefix: opts.TopicPrefix, logger: logger}, nil
}

// Enabled reports whether a broker is configured.
func (p *Publisher) Enabled() bool {
	return p.client != nil
}

// Record implements sensors.Sink.  Per-value publish failures are logged
// and skipped; only a failed status publish is reported, since that is the
// message consumers key on.
func (p *Publisher) Record(r sensors.Reading) error {
	if p.client == nil {
		return nil
	}
	for topic, payload := range messages(p.prefix, r) {
		token := p.client.Publish(topic, 0, false, payload)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("problem publishing")
		}
	}
	status, err := json.Marshal(statusPayload(r))
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	token := p.client.Publish(p.prefix+"/status", 0, true, status)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publish status: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}

// messages lays a reading out as one topic per value.
func messages(prefix string, r sensors.Reading) map[string]string {
	m := map[string]string{
		prefix + "/indoor/temperature": fmt.Sprintf("%.1f", r.IndoorTemp),
		prefix + "/indoor/humidity":    fmt.Sprintf("%.1f", r.IndoorHumidity),
		prefix + "/indoor/pressure":    fmt.Sprintf("%.1f", r.Pressure),
	}
	if r.HasOutdoor {
		m[prefix+"/outdoor/temperature"] = fmt.Sprintf("%.1f", r.OutdoorTemp)
		m[prefix+"/outdoor/humidity"] = fmt.Sprintf("%.1f", r.OutdoorHumidity)
	}
	if r.HasAir {
		m[prefix+"/air/ppm"] = fmt.Sprintf("%.0f", r.AirPPM)
	}
	return m
}

func statusPayload(r sensors.Reading) map[string]interface{} {
	m := map[string]interface{}{
		"time":               r.Time.Format(time.RFC3339),
		"indoor_temperature": r.IndoorTemp,
		"indoor_humidity":    r.IndoorHumidity,
		"pressure":           r.Pressure,
	}
	if r.HasOutdoor {
		m["outdoor_temperature"] = r.OutdoorTemp
		m["outdoor_humidity"] = r.OutdoorHumidity
	}
	if r.HasAir {
		m["air_ppm"] = r.AirPPM
	}
	return m
}
