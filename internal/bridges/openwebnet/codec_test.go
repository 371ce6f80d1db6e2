package openwebnet

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		kind    discovery.RequestKind
		want    string
		wantErr error
	}{
		{discovery.RequestFirmwareVersion, "*#13**16##", nil},
		{discovery.RequestMACAddress, "*#13**12##", nil},
		{discovery.RequestKind(99), "", ErrUnsupportedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := EncodeRequest(tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("EncodeRequest() error = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecoderDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    discovery.Reply
		wantErr bool
	}{
		{
			name:  "firmware",
			frame: "*#13**16*1*2*4##",
			want:  discovery.Reply{Kind: discovery.RequestFirmwareVersion, FirmwareVersion: "1.2.4"},
		},
		{
			name:  "mac",
			frame: "*#13**12*0*0*0*0*0*11*174*248##",
			want:  discovery.Reply{Kind: discovery.RequestMACAddress, DeviceID: 765688},
		},
		{
			name:  "mac uses only last four octets",
			frame: "*#13**12*255*255*255*255*0*0*0*42##",
			want:  discovery.Reply{Kind: discovery.RequestMACAddress, DeviceID: 42},
		},
		{
			name:  "trailing newline",
			frame: "*#13**16*3*0*1##\r\n",
			want:  discovery.Reply{Kind: discovery.RequestFirmwareVersion, FirmwareVersion: "3.0.1"},
		},
		{name: "ack", frame: "*#*1##"},
		{name: "nack", frame: "*#*0##"},
		{name: "unrelated lighting frame", frame: "*1*1*12##"},
		{name: "missing terminator", frame: "*#13**16*1*2*4", wantErr: true},
		{name: "no leading star", frame: "#13**16*1*2*4##", wantErr: true},
		{name: "empty", frame: "", wantErr: true},
		{name: "firmware wrong field count", frame: "*#13**16*1*2##", wantErr: true},
		{name: "firmware not numeric", frame: "*#13**16*1*x*4##", wantErr: true},
		{name: "mac short", frame: "*#13**12*0*0*0*42##", wantErr: true},
		{name: "mac octet overflow", frame: "*#13**12*0*0*0*0*0*0*0*256##", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decoder{}.Decode([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFrame) {
					t.Fatalf("Decode() error = %v, want %v", err, ErrInvalidFrame)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplyEncodersRoundTrip(t *testing.T) {
	for _, id := range []uint32{1, 42, 765432, 0xFFFFFFFF} {
		got, err := Decoder{}.Decode(EncodeMACReply(id))
		if err != nil {
			t.Fatalf("Decode(EncodeMACReply(%d)) error: %v", id, err)
		}
		if got.DeviceID != id {
			t.Errorf("DeviceID = %d, want %d", got.DeviceID, id)
		}
	}

	got, err := Decoder{}.Decode(EncodeFirmwareReply("2.10.7"))
	if err != nil {
		t.Fatalf("Decode(EncodeFirmwareReply) error: %v", err)
	}
	if got.FirmwareVersion != "2.10.7" {
		t.Errorf("FirmwareVersion = %q, want 2.10.7", got.FirmwareVersion)
	}
}

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "back to back",
			input: "*#*1##*#13**16*1*2*4##",
			want:  []string{"*#*1##", "*#13**16*1*2*4##"},
		},
		{
			name:  "noise between frames",
			input: "\r\n*#*1##garbage\n*#*0##",
			want:  []string{"*#*1##", "*#*0##"},
		},
		{
			name:  "partial trailing frame dropped",
			input: "*#*1##*#13**12*0*0",
			want:  []string{"*#*1##"},
		},
		{
			name:  "only noise",
			input: "hello",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(SplitFrames)

			var got []string
			for scanner.Scan() {
				got = append(got, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				t.Fatalf("scanner error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("frames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitFramesTooLong(t *testing.T) {
	input := "*" + strings.Repeat("1", maxFrameLength+10)
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 64), 4*maxFrameLength)
	scanner.Split(SplitFrames)

	for scanner.Scan() {
		t.Errorf("unexpected frame %q", scanner.Text())
	}
	if !errors.Is(scanner.Err(), ErrFrameTooLong) {
		t.Errorf("scanner error = %v, want %v", scanner.Err(), ErrFrameTooLong)
	}
}
