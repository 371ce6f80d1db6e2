// Package discovery implements the device-discovery correlation state machine.
//
// A Machine connects to a transport (Link), asks the device on the other end
// to identify itself, correlates the asynchronous replies (Correlator) and
// emits exactly one Result per identified device to a Sink. Transport loss
// resets the identity so the next connection re-identifies the device from
// scratch.
//
// # States
//
//	IDLE ──Start()──▶ CONNECTING ──Connected──▶ CONNECTED_UNIDENTIFIED ──id──▶ IDENTIFIED
//	  ▲                                                                          │
//	  └────────── Stop() / ConnectionError / ConnectionClosed / Disconnected ────┘
//
// # Usage
//
//	m, err := discovery.NewMachine(discovery.Options{
//	    Link:    link,
//	    Decoder: codec,
//	    Sink:    sink,
//	    Profile: profile,
//	})
//	m.Start()
//	defer m.Stop()
//
// Thread Safety: a Machine serialises Start, Stop and transport events on an
// internal queue, so all methods are safe for concurrent use and handlers may
// call back into the Machine without deadlocking. Machines share no state and
// one Machine is created per transport.
package discovery
