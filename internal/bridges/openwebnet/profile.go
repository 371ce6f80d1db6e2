package openwebnet

import "github.com/nerrad567/gray-logic-discovery/internal/discovery"

// Device kinds handled by the OpenWebNet bridge.
const (
	// KindDongle is a ZigBee USB dongle.
	KindDongle discovery.DeviceKind = "openwebnet:dongle"

	// KindBusGateway is a BUS/SCS gateway. It is reported as supported so
	// hosts can list it; this bridge only discovers dongles.
	KindBusGateway discovery.DeviceKind = "openwebnet:bus_gateway"
)

// DongleProfile labels dongle results, e.g.
// "ZigBee USB Gateway (ID=765432, /dev/ttyUSB0, v=1.2.4)".
var DongleProfile = discovery.Profile{
	Kind:             KindDongle,
	Label:            "ZigBee USB Gateway",
	EndpointProperty: "serialPort",
	FirmwareProperty: "firmwareVersion",
	IDProperty:       "zigbeeid",
}

// SupportedKinds returns the device kinds the bridge reports.
func SupportedKinds() []discovery.DeviceKind {
	return []discovery.DeviceKind{KindDongle, KindBusGateway}
}
