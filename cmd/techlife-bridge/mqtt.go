package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nlowe/techlife/bridge"
	"github.com/nlowe/techlife/config"
	"github.com/nlowe/techlife/hass"
	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/mqtt"
	adapter "github.com/nlowe/techlife/mqtt/adapter/autopaho"
)

type disconnectFunc func(context.Context) error

// clientConfig builds the autopaho configuration for cfg. The will message marks every light unavailable if the bridge
// drops off the broker without shutting down cleanly. onConnectionUp is called after every successful connection.
func clientConfig(cfg *config.Config, brokerURL *url.URL, onConnectionUp func()) autopaho.ClientConfig {
	log := tllog.ForComponent("mqtt")

	mqttConfig := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  cfg.MQTT.KeepAlive,

		SessionExpiryInterval: cfg.MQTT.SessionExpiry,

		ConnectUsername: cfg.MQTT.Username,
		ConnectPassword: []byte(cfg.MQTT.Password),

		WillMessage: &paho.WillMessage{
			Topic:   bridge.AvailabilityTopicFor(cfg.TopicPrefix),
			Payload: []byte(hass.Unavailable),
			QoS:     uint8(mqtt.QOSAtLeastOnce),
			Retain:  true,
		},

		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info("mqtt connected")
			if onConnectionUp != nil {
				onConnectionUp()
			}
		},
		OnConnectError: func(err error) {
			log.With(tllog.Error(err)).Error("mqtt connection error")
		},

		ClientConfig: paho.ClientConfig{
			ClientID: cfg.MQTT.ClientID,
			OnClientError: func(err error) {
				log.With(tllog.Error(err)).Error("mqtt client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				log := log.With(slog.Int("reason", int(d.ReasonCode)))

				if d.Properties != nil {
					log = log.With(
						slog.Group(
							"properties",
							slog.String("reference", d.Properties.ServerReference),
							slog.String("reason", d.Properties.ReasonString),
						),
					)
				}

				log.Warn("Disconnected from server")
			},
		},
	}

	switch brokerURL.Scheme {
	case "mqtts", "ssl", "tls", "wss":
		mqttConfig.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return mqttConfig
}

func connectMQTT(ctx context.Context, cfg *config.Config, onConnectionUp func()) (mqtt.Writer, mqtt.Subscriber, disconnectFunc, error) {
	log := tllog.ForComponent("mqtt")

	brokerURL, err := cfg.BrokerURL()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mqtt: parse broker url: %w", err)
	}

	log.With(slog.String("broker", brokerURL.Redacted())).Info("Connecting to mqtt")
	w, s, disconnect, err := adapter.DialMQTT(ctx, clientConfig(cfg, brokerURL, onConnectionUp))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mqtt: connect: %w", err)
	}

	log.With(slog.String("broker", brokerURL.Redacted())).Info("Connected to mqtt")
	return w, s, disconnect, nil
}
