package discovery

import (
	"fmt"
	"sort"
	"time"
)

// Reply is the identification content decoded from one inbound payload.
// Kind is zero for payloads that answer no identification request.
type Reply struct {
	Kind            RequestKind
	DeviceID        uint32
	FirmwareVersion string
}

// Decoder extracts identification content from raw transport payloads.
// Wire formats live with the transport; the Correlator only sees Replies.
type Decoder interface {
	Decode(payload []byte) (Reply, error)
}

// PendingRequest is an identification request awaiting its reply.
type PendingRequest struct {
	Kind     RequestKind
	IssuedAt time.Time
}

// CorrelatorOptions holds configuration for creating a Correlator.
type CorrelatorOptions struct {
	// Sender issues the requests (usually the Link).
	Sender Sender

	// Decoder turns payloads into Replies.
	Decoder Decoder

	// Timeout is the age after which Expire drops a pending request.
	// Zero means requests never expire.
	Timeout time.Duration

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time
}

// Correlator tracks outstanding identification requests and matches them to
// asynchronous replies.
//
// Thread Safety: not safe for concurrent use. The owning Machine serialises
// all calls.
type Correlator struct {
	sender   Sender
	decoder  Decoder
	timeout  time.Duration
	clock    func() time.Time
	pending  map[RequestKind]PendingRequest
	firmware string
}

// NewCorrelator creates a Correlator.
func NewCorrelator(opts CorrelatorOptions) (*Correlator, error) {
	if opts.Sender == nil {
		return nil, ErrLinkRequired
	}
	if opts.Decoder == nil {
		return nil, ErrDecoderRequired
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Correlator{
		sender:  opts.Sender,
		decoder: opts.Decoder,
		timeout: opts.Timeout,
		clock:   clock,
		pending: make(map[RequestKind]PendingRequest),
	}, nil
}

// RequestIdentity asks the device for its firmware version and then its MAC
// address, recording a pending entry for each. Both requests are attempted
// even if the first fails; the first failure is returned.
func (c *Correlator) RequestIdentity() error {
	var firstErr error
	for _, kind := range []RequestKind{RequestFirmwareVersion, RequestMACAddress} {
		c.pending[kind] = PendingRequest{Kind: kind, IssuedAt: c.clock()}
		if err := c.sender.Send(kind); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("requesting %s: %w", kind, err)
		}
	}
	return firstErr
}

// OnMessage inspects an inbound payload. It returns the device id when the
// payload carries a non-zero one. Firmware replies are remembered and clear
// their pending entry without resolving the id. Undecodable payloads are
// ignored.
func (c *Correlator) OnMessage(payload []byte) (uint32, bool) {
	reply, err := c.decoder.Decode(payload)
	if err != nil {
		return 0, false
	}

	if reply.FirmwareVersion != "" {
		c.firmware = reply.FirmwareVersion
		delete(c.pending, RequestFirmwareVersion)
	}

	if reply.DeviceID == 0 {
		return 0, false
	}

	delete(c.pending, RequestMACAddress)
	return reply.DeviceID, true
}

// Firmware returns the last firmware version reported by the device.
func (c *Correlator) Firmware() string {
	return c.firmware
}

// Pending returns the outstanding requests ordered by kind.
func (c *Correlator) Pending() []PendingRequest {
	out := make([]PendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Expire drops requests older than the timeout and returns their kinds.
func (c *Correlator) Expire(now time.Time) []RequestKind {
	if c.timeout <= 0 {
		return nil
	}
	var expired []RequestKind
	for kind, p := range c.pending {
		if now.Sub(p.IssuedAt) >= c.timeout {
			expired = append(expired, kind)
			delete(c.pending, kind)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Reset clears all pending requests and the remembered firmware version.
func (c *Correlator) Reset() {
	clear(c.pending)
	c.firmware = ""
}
