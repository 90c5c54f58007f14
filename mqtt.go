package main

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/opaluk/terneod/terneo"
)

const healthPublishInterval = 30 * time.Second

// launchMQTT publishes state changes and periodic health to the broker.
// Messages are retained so subscribers joining later see the last state
// immediately.
func launchMQTT(ctx context.Context, broker, sn string, client *terneo.Client) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("terneod_" + sn).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infof("connected to MQTT broker %s", broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("MQTT connection lost: %s", err)
		})

	mc := mqtt.NewClient(opts)
	if token := mc.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("MQTT connect to %s failed, relying on auto-reconnect: %s", broker, token.Error())
	}

	stateTopic := "terneo/" + sn + "/state"
	healthTopic := "terneo/" + sn + "/health"

	publish := func(topic string, payload any) {
		msg, err := json.Marshal(payload)
		if err != nil {
			log.Errorf("serializing MQTT payload for %s: %s", topic, err)
			return
		}
		if token := mc.Publish(topic, 0, true, msg); token.Wait() && token.Error() != nil {
			log.Warnf("MQTT publish to %s failed: %s", topic, token.Error())
		}
	}

	go func() {
		listener := client.NewListener()
		defer listener.Close()

		ticker := time.NewTicker(healthPublishInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-listener.Receive():
				if !ok {
					return
				}
				snap, isSnap := event.Data.(*terneo.Snapshot)
				if !isSnap {
					continue
				}
				publish(stateTopic, makeStateView(sn, snap, false))
				publish(healthTopic, makeHealthView(client))
			case <-ticker.C:
				publish(healthTopic, makeHealthView(client))
			case <-ctx.Done():
				mc.Disconnect(250)
				return
			}
		}
	}()
}
