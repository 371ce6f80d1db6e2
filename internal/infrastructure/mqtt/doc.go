// Package mqtt provides MQTT client connectivity for Gray Logic Discovery.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Topic subscriptions, restored after a reconnect
//   - The retained service status on StatusTopic, including the LWT
//
// The protocol bridges declare their own small MQTT interface with
// handlers that do not return errors; ForBridge adapts a Client to it.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	bridge, err := openwebnet.NewBridge(openwebnet.BridgeOptions{
//	    MQTTClient: client.ForBridge(),
//	    // ...
//	})
//
// TLS should be enabled for any broker outside the local host
// (cfg.Broker.TLS=true). Payloads are not encrypted beyond the transport.
package mqtt
