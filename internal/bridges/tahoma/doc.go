// Package tahoma maps Gray Logic channels onto Somfy TaHoma device
// commands and attributes.
//
// Every device type is served by the same Handler. What differs between an
// awning, a pergola and a roller shutter is data, held in a Profile: which
// TaHoma attribute backs each channel, and which TaHoma command each
// UP/DOWN/STOP command becomes.
//
//	awning         control = core:DeploymentState   deploy / undeploy / stop / setDeployment
//	pergola        control = core:TargetClosureState (awning commands)
//	rollershutter  control = core:ClosureState      close / open / stop / setClosure
//
// A numeric command (0-100) is sent as the profile's position command with
// the value as its only parameter.
//
// # MQTT Topics
//
//   - graylogic/command/tahoma/{device}        channel commands from Core
//   - graylogic/bridge/tahoma/{device}/exec    actions for the TaHoma gateway
//   - graylogic/bridge/tahoma/{device}/states  attribute reports from the gateway
//   - graylogic/state/tahoma/{device}          retained channel state
//   - graylogic/ack/tahoma/{device}            command acknowledgements
package tahoma
