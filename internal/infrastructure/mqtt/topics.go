package mqtt

// ServiceName identifies this service in status messages.
const ServiceName = "graylogic-discovery"

// Topic layout. Bridges publish under the flat scheme
// graylogic/{category}/{protocol}/{id}; see the bridge packages for the
// per-protocol builders.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// StatusTopic carries the retained online/offline status of the
	// discovery service.
	StatusTopic = TopicPrefix + "/system/discovery/status"

	// AllBridgeHealth matches every bridge health topic.
	AllBridgeHealth = TopicPrefix + "/health/+"
)
