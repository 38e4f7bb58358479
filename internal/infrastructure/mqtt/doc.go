// Package mqtt provides MQTT client connectivity for the blind bridge.
//
// This package manages:
//   - Sessions with auto-reconnect and subscription restoration
//   - Message publishing with QoS guarantees
//   - Per-session Last Will and Testament for availability
//   - Home Assistant discovery topic builders
//
// # Sessions
//
// A Client is one broker session. The Home Assistant bridge opens one per
// blind so that each carries its own will on its availability topic:
//
//	topics := mqtt.Topics{Base: cfg.MQTT.BaseTopic}
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Session{
//	    ClientID:       cfg.MQTT.ClientIDPrefix + "RISE108",
//	    WillTopic:      topics.Availability("RISE108"),
//	    OfflinePayload: mqtt.PayloadOffline,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Broker URLs
//
// tcp, mqtt, ssl, tls, mqtts, ws and wss schemes are accepted. A URL
// without a scheme is treated as tcp and MQTT schemes without a port use
// 1883 or 8883.
package mqtt
