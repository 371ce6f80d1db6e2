// Package openwebnet discovers BTicino/Legrand OpenWebNet USB dongles for
// Gray Logic.
//
// A dongle is a ZigBee gateway attached to a serial port. It speaks
// OpenWebNet frames: fields separated by '*' and terminated by "##". The
// package provides a serial Link, a frame codec and a Bridge that runs one
// discovery.Machine per configured dongle and publishes what it finds to MQTT.
//
// # Architecture
//
//	┌─────────────────┐   MQTT   ┌──────────────────┐  serial   ┌────────────┐
//	│   Gray Logic    │◄────────►│  OpenWebNet      │◄─────────►│ USB dongle │
//	│      Core       │          │  Bridge (this)   │           │  (ZigBee)  │
//	└─────────────────┘          └──────────────────┘           └────────────┘
//
// # Identification
//
// Once the serial port is open the Machine asks for the firmware version
// (*#13**16##) and the MAC address (*#13**12##). The dongle answers with
//
//	*#13**16*1*2*4##                 firmware 1.2.4
//	*#13**12*0*0*0*0*0*11*174*248##  MAC, device id = last four octets
//
// and the device id is the big-endian value of the last four MAC octets.
//
// # MQTT Topics
//
//   - graylogic/discovery/openwebnet/{uid}   retained discovery results
//   - graylogic/command/discovery/openwebnet {"action":"start"|"stop"}
//   - graylogic/health/openwebnet            retained health, offline on shutdown
//
// A crash is reported by the service-wide will on
// graylogic/system/discovery/status, since MQTT allows one will per
// connection.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package openwebnet
