package mqtt

// BridgeClient adapts a Client to the MQTT interface the protocol bridges
// declare. Bridge handlers do not return errors.
//
// The underlying Client stays owned by the caller; closing the bridge does
// not disconnect it.
type BridgeClient struct {
	client *Client
}

// ForBridge returns a bridge-facing view of c.
func (c *Client) ForBridge() *BridgeClient {
	return &BridgeClient{client: c}
}

// Publish forwards to Client.Publish.
func (b *BridgeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return b.client.Publish(topic, payload, qos, retained)
}

// Subscribe forwards to Client.Subscribe with a handler that never fails.
func (b *BridgeClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	if handler == nil {
		return b.client.Subscribe(topic, qos, nil)
	}
	return b.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected forwards to Client.IsConnected.
func (b *BridgeClient) IsConnected() bool {
	return b.client.IsConnected()
}
