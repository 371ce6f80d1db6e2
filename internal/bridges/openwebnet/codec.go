package openwebnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// OpenWebNet frame constants.
const (
	// frameStart is the first byte of every frame.
	frameStart = '*'

	// frameTerminator ends every frame.
	frameTerminator = "##"

	// maxFrameLength bounds a single frame. Longer runs without a terminator
	// mean the stream is out of sync.
	maxFrameLength = 1024

	// FrameACK is the positive acknowledgement.
	FrameACK = "*#*1##"

	// FrameNACK is the negative acknowledgement.
	FrameNACK = "*#*0##"

	// gatewayWho is the WHO for gateway management dimensions.
	gatewayWho = "13"

	// dimensionFirmware is the gateway firmware version dimension.
	dimensionFirmware = "16"

	// dimensionMAC is the gateway MAC address dimension.
	dimensionMAC = "12"

	// firmwareFields is the number of version fields in a firmware reply.
	firmwareFields = 3

	// macOctets is the number of octets in a MAC reply.
	macOctets = 8

	// idOctets is the number of trailing MAC octets that form the device id.
	idOctets = 4
)

// EncodeRequest returns the frame for an identification request.
//
// Examples:
//
//	firmware version: *#13**16##
//	MAC address:      *#13**12##
func EncodeRequest(kind discovery.RequestKind) ([]byte, error) {
	switch kind {
	case discovery.RequestFirmwareVersion:
		return dimensionRequest(dimensionFirmware), nil
	case discovery.RequestMACAddress:
		return dimensionRequest(dimensionMAC), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRequest, kind)
	}
}

func dimensionRequest(dimension string) []byte {
	return []byte("*#" + gatewayWho + "**" + dimension + frameTerminator)
}

// Decoder decodes dongle replies into identification replies.
// It implements discovery.Decoder.
type Decoder struct{}

// Ensure Decoder implements discovery.Decoder.
var _ discovery.Decoder = Decoder{}

// Decode parses a single frame.
//
// ACK/NACK and well-formed frames that answer no identification request
// return an empty Reply. Malformed frames return ErrInvalidFrame.
func (Decoder) Decode(payload []byte) (discovery.Reply, error) {
	frame := strings.TrimSpace(string(payload))
	if len(frame) < len(FrameACK) || frame[0] != frameStart || !strings.HasSuffix(frame, frameTerminator) {
		return discovery.Reply{}, fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}

	if frame == FrameACK || frame == FrameNACK {
		return discovery.Reply{}, nil
	}

	body := strings.TrimSuffix(frame, frameTerminator)

	if values, ok := dimensionValues(body, dimensionFirmware); ok {
		version, err := parseFirmware(values)
		if err != nil {
			return discovery.Reply{}, err
		}
		return discovery.Reply{Kind: discovery.RequestFirmwareVersion, FirmwareVersion: version}, nil
	}

	if values, ok := dimensionValues(body, dimensionMAC); ok {
		id, err := parseMAC(values)
		if err != nil {
			return discovery.Reply{}, err
		}
		return discovery.Reply{Kind: discovery.RequestMACAddress, DeviceID: id}, nil
	}

	return discovery.Reply{}, nil
}

// dimensionValues returns the value fields of a gateway dimension reply
// "*#13**<dim>*v1*v2...".
func dimensionValues(body, dimension string) ([]string, bool) {
	prefix := "*#" + gatewayWho + "**" + dimension + "*"
	if !strings.HasPrefix(body, prefix) {
		return nil, false
	}
	return strings.Split(strings.TrimPrefix(body, prefix), "*"), true
}

// parseFirmware joins the version fields with dots: [1 2 4] → "1.2.4".
func parseFirmware(values []string) (string, error) {
	if len(values) != firmwareFields {
		return "", fmt.Errorf("%w: firmware reply has %d fields, want %d", ErrInvalidFrame, len(values), firmwareFields)
	}
	for _, v := range values {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return "", fmt.Errorf("%w: firmware field %q", ErrInvalidFrame, v)
		}
	}
	return strings.Join(values, "."), nil
}

// parseMAC converts eight decimal octets to the device id formed by the
// last four, big-endian.
func parseMAC(values []string) (uint32, error) {
	if len(values) != macOctets {
		return 0, fmt.Errorf("%w: MAC reply has %d octets, want %d", ErrInvalidFrame, len(values), macOctets)
	}
	octets := make([]byte, macOctets)
	for i, v := range values {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: MAC octet %q", ErrInvalidFrame, v)
		}
		octets[i] = byte(n)
	}
	return binary.BigEndian.Uint32(octets[macOctets-idOctets:]), nil
}

// EncodeMACReply builds the MAC reply a dongle with the given id sends.
// The leading octets are zero. Used by simulators and tests.
func EncodeMACReply(id uint32) []byte {
	var tail [idOctets]byte
	binary.BigEndian.PutUint32(tail[:], id)

	fields := make([]string, 0, macOctets)
	for range macOctets - idOctets {
		fields = append(fields, "0")
	}
	for _, b := range tail {
		fields = append(fields, strconv.Itoa(int(b)))
	}
	return []byte("*#" + gatewayWho + "**" + dimensionMAC + "*" + strings.Join(fields, "*") + frameTerminator)
}

// EncodeFirmwareReply builds the firmware reply for a dotted version such
// as "1.2.4".
func EncodeFirmwareReply(version string) []byte {
	return []byte("*#" + gatewayWho + "**" + dimensionFirmware + "*" + strings.ReplaceAll(version, ".", "*") + frameTerminator)
}

// SplitFrames is a bufio.SplitFunc that yields one OpenWebNet frame per
// token. Bytes before the first '*' are discarded.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.IndexByte(data, frameStart)
	if start < 0 {
		// Nothing but noise so far
		return len(data), nil, nil
	}

	end := bytes.Index(data[start:], []byte(frameTerminator))
	if end >= 0 {
		stop := start + end + len(frameTerminator)
		return stop, data[start:stop], nil
	}

	if len(data)-start > maxFrameLength {
		return 0, nil, ErrFrameTooLong
	}

	if atEOF {
		// Trailing partial frame
		return len(data), nil, nil
	}

	// Request more data
	return start, nil, nil
}
