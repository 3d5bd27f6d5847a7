package dirtyjtag

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestCodecEncode(t *testing.T) {
	codec := NewCodec(PacketSize)

	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"get TDO", GetTDO{}, []byte{0x05}},
		{"xfer 11 bits", Xfer{BitLength: 11, TDI: []byte{0xB7, 0x60}}, []byte{0x03, 0x0B, 0xB7, 0x60}},
		{"xfer 8 bits", Xfer{BitLength: 8, TDI: []byte{0xAA}}, []byte{0x03, 0x08, 0xAA}},
		{"xfer 1 bit", Xfer{BitLength: 1, TDI: []byte{0x01}}, []byte{0x03, 0x01, 0x01}},
		{"info", Info{}, []byte{0x01}},
		{"get signals", GetSignals{}, []byte{0x05}},
		{"freq 1000 kHz", SetFrequency{KHz: 1000}, []byte{0x02, 0x03, 0xE8}},
		{"setsig TMS high", SetSignals{Mask: SigTMS, Status: SigTMS}, []byte{0x04, 0x10, 0x10}},
		{"clk no readout", Clock{Signals: SigTMS, Pulses: 5}, []byte{0x06, 0x10, 0x05}},
		{"clk readout", Clock{Signals: SigTDI, Pulses: 1, Readout: true}, []byte{0x86, 0x04, 0x01}},
		{"set voltage", SetVoltage{Level: 33}, []byte{0x07, 0x21}},
		{"goto bootloader", GotoBootloader{}, []byte{0x08}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestCodecEncodeInvalid(t *testing.T) {
	codec := NewCodec(PacketSize)

	tests := []struct {
		name string
		cmd  Command
	}{
		{"zero bits", Xfer{BitLength: 0, TDI: nil}},
		{"short TDI for 11 bits", Xfer{BitLength: 11, TDI: []byte{0xB7}}},
		{"long TDI for 8 bits", Xfer{BitLength: 8, TDI: []byte{0x01, 0x02}}},
		{"zero clock pulses", Clock{Pulses: 0}},
		{"nil command", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Encode(tt.cmd)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Encode() error = %v, want ErrInvalidArgument", err)
			}
			if errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("encode error must not be classified as malformed response")
			}
		})
	}
}

func TestCodecEncodeXferFrameShape(t *testing.T) {
	codec := NewCodec(PacketSize)

	for _, bits := range []int{1, 7, 8, 9, 255, 256, 257, 496, 4096, 65535} {
		tdi := make([]byte, ByteLen(bits))
		for i := range tdi {
			tdi[i] = byte(i*31 + 7)
		}
		frame, err := codec.Encode(Xfer{BitLength: uint16(bits), TDI: tdi})
		if err != nil {
			t.Fatalf("bits=%d: Encode() error = %v", bits, err)
		}
		if len(frame) != 2+len(tdi) {
			t.Fatalf("bits=%d: frame length = %d, want %d", bits, len(frame), 2+len(tdi))
		}
		if frame[0] != CmdXfer {
			t.Errorf("bits=%d: opcode = 0x%02X, want 0x03", bits, frame[0])
		}
		if frame[1] != byte(bits) {
			t.Errorf("bits=%d: length byte = 0x%02X, want 0x%02X", bits, frame[1], byte(bits))
		}
		if !bytes.Equal(frame[2:], tdi) {
			t.Errorf("bits=%d: payload mismatch", bits)
		}
	}
}

func TestFrameIsDetachedFromInput(t *testing.T) {
	codec := NewCodec(PacketSize)
	tdi := []byte{0xB7, 0x60}

	frame, err := codec.Encode(Xfer{BitLength: 11, TDI: tdi})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	tdi[0] = 0x00
	if frame[2] != 0xB7 {
		t.Fatalf("frame aliased caller TDI buffer")
	}

	b := frame.Bytes()
	b[0] = 0xFF
	if frame[0] != CmdXfer {
		t.Fatalf("Bytes() returned aliased slice")
	}
}

func TestCodecDecodeTDO(t *testing.T) {
	codec := NewCodec(PacketSize)

	tests := []struct {
		name    string
		raw     []byte
		want    bool
		wantErr bool
	}{
		{name: "high", raw: []byte{0x01}, want: true},
		{name: "low", raw: []byte{0x00}, want: false},
		{name: "trailing garbage ignored", raw: []byte{0x01, 0x05, 0x00}, want: true},
		{name: "only bit 0 counts", raw: []byte{0xFE}, want: false},
		{name: "empty", raw: []byte{}, wantErr: true},
		{name: "nil", raw: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := codec.Decode(tt.raw, GetTDO{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("Decode() error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			bit, ok := resp.(TDOBit)
			if !ok {
				t.Fatalf("Decode() = %T, want TDOBit", resp)
			}
			if bit.Value != tt.want {
				t.Errorf("TDOBit.Value = %v, want %v", bit.Value, tt.want)
			}
		})
	}
}

func TestCodecDecodeXfer(t *testing.T) {
	codec := NewCodec(PacketSize)
	cmd := Xfer{BitLength: 11, TDI: []byte{0xB7, 0x60}}

	tests := []struct {
		name    string
		raw     []byte
		want    []byte
		wantErr bool
	}{
		{name: "exact length", raw: []byte{0x12, 0x34}, want: []byte{0x12, 0x34}},
		{name: "padded read buffer", raw: []byte{0x12, 0x34, 0xFF, 0xFF}, want: []byte{0x12, 0x34}},
		{name: "too short", raw: []byte{0x12}, wantErr: true},
		{name: "empty", raw: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := codec.Decode(tt.raw, cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("Decode() error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			res, ok := resp.(XferResult)
			if !ok {
				t.Fatalf("Decode() = %T, want XferResult", resp)
			}
			if !bytes.Equal(res.Captured, tt.want) {
				t.Errorf("Captured = % X, want % X", res.Captured, tt.want)
			}
		})
	}
}

func TestCodecXferRoundTrip(t *testing.T) {
	codec := NewCodec(PacketSize)

	for bits := 1; bits <= 600; bits += 13 {
		n := ByteLen(bits)
		tdi := make([]byte, n)
		raw := make([]byte, n)
		for i := 0; i < n; i++ {
			tdi[i] = byte(i)
			raw[i] = byte(0xA5 ^ i)
		}
		cmd := Xfer{BitLength: uint16(bits), TDI: tdi}
		resp, err := codec.Decode(raw, cmd)
		if err != nil {
			t.Fatalf("bits=%d: Decode() error = %v", bits, err)
		}
		got := resp.(XferResult).Captured
		if !bytes.Equal(got, raw[:n]) {
			t.Fatalf("bits=%d: Captured = % X, want % X", bits, got, raw[:n])
		}
		raw[0] ^= 0xFF
		if got[0] == raw[0] {
			t.Fatalf("bits=%d: Captured aliases raw buffer", bits)
		}
	}
}

func TestCodecDecodeSupplementary(t *testing.T) {
	codec := NewCodec(PacketSize)

	resp, err := codec.Decode([]byte("DJTAG2\n\x00\x00\x00"), Info{})
	if err != nil {
		t.Fatalf("Decode(Info) error = %v", err)
	}
	if got := resp.(InfoString).Version; got != "DJTAG2" {
		t.Errorf("Version = %q, want DJTAG2", got)
	}

	resp, err = codec.Decode([]byte{byte(SigTDO)}, GetSignals{})
	if err != nil {
		t.Fatalf("Decode(GetSignals) error = %v", err)
	}
	if !resp.(SignalState).Signals.Has(SigTDO) {
		t.Errorf("expected TDO bit in signal state")
	}

	resp, err = codec.Decode([]byte{0x01}, Clock{Pulses: 1, Readout: true})
	if err != nil {
		t.Fatalf("Decode(Clock) error = %v", err)
	}
	if !resp.(ClockResult).TDO {
		t.Errorf("expected TDO high in clock readout")
	}

	for _, cmd := range []Command{SetSignals{}, SetVoltage{}, GotoBootloader{}} {
		if _, err := codec.Decode([]byte{0x00}, cmd); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("Decode(%s) error = %v, want ErrMalformedResponse", Name(cmd), err)
		}
	}
}

func TestResponseLen(t *testing.T) {
	tests := []struct {
		cmd  Command
		want int
	}{
		{GetTDO{}, 1},
		{Xfer{BitLength: 11}, 2},
		{Xfer{BitLength: 496}, 62},
		{Info{}, 10},
		{SetFrequency{KHz: 100}, 0},
		{SetSignals{}, 0},
		{Clock{Pulses: 3}, 0},
		{Clock{Pulses: 3, Readout: true}, 1},
		{SetVoltage{Level: 33}, 0},
		{GotoBootloader{}, 0},
	}

	for _, tt := range tests {
		if got := ResponseLen(tt.cmd); got != tt.want {
			t.Errorf("ResponseLen(%s) = %d, want %d", Name(tt.cmd), got, tt.want)
		}
	}
}

func TestNewXfer(t *testing.T) {
	if _, err := NewXfer(0, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewXfer(0) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewXfer(65536, make([]byte, 8192)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewXfer(65536) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewXfer(11, []byte{0xB7}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewXfer(11, 1 byte) error = %v, want ErrInvalidArgument", err)
	}

	tdi := []byte{0xB7, 0x60}
	x, err := NewXfer(11, tdi)
	if err != nil {
		t.Fatalf("NewXfer() error = %v", err)
	}
	tdi[0] = 0
	if x.TDI[0] != 0xB7 {
		t.Errorf("NewXfer did not copy TDI")
	}
}

func TestCodecBatch(t *testing.T) {
	codec := NewCodec(PacketSize)
	cmds := []Command{
		SetSignals{Mask: SigTMS, Status: 0},
		Xfer{BitLength: 11, TDI: []byte{0xB7, 0x60}},
		GetTDO{},
	}

	frame, err := codec.EncodeBatch(cmds...)
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	want := []byte{0x04, 0x10, 0x00, 0x03, 0x0B, 0xB7, 0x60, 0x05, 0x00}
	if !bytes.Equal(frame, want) {
		t.Fatalf("EncodeBatch() = % X, want % X", frame, want)
	}

	resps, err := codec.DecodeBatch([]byte{0xB7, 0x60, 0x01}, cmds...)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if len(resps) != 3 {
		t.Fatalf("DecodeBatch() returned %d responses, want 3", len(resps))
	}
	if _, ok := resps[0].(Empty); !ok {
		t.Errorf("resps[0] = %T, want Empty", resps[0])
	}
	if got := resps[1].(XferResult).Captured; !bytes.Equal(got, []byte{0xB7, 0x60}) {
		t.Errorf("resps[1] = % X", got)
	}
	if !resps[2].(TDOBit).Value {
		t.Errorf("resps[2] TDO = false, want true")
	}

	if _, err := codec.DecodeBatch([]byte{0xB7}, cmds...); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("short batch reply error = %v, want ErrMalformedResponse", err)
	}
}

func TestCodecBatchLimits(t *testing.T) {
	codec := NewCodec(PacketSize)

	if _, err := codec.EncodeBatch(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty batch error = %v", err)
	}

	big := Xfer{BitLength: 62 * 8, TDI: make([]byte, 62)}
	frame, err := codec.EncodeBatch(big)
	if err != nil {
		t.Fatalf("full packet batch error = %v", err)
	}
	if len(frame) != PacketSize {
		t.Errorf("full packet batch length = %d, want %d (no stop byte)", len(frame), PacketSize)
	}

	if _, err := codec.EncodeBatch(big, GetTDO{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized batch error = %v, want ErrInvalidArgument", err)
	}
}

func TestCodecConcurrentUse(t *testing.T) {
	codec := NewCodec(PacketSize)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tdi := []byte{byte(i), byte(i >> 8)}
			cmd := Xfer{BitLength: 16, TDI: tdi}
			frame, err := codec.Encode(cmd)
			if err != nil {
				t.Errorf("Encode() error = %v", err)
				return
			}
			resp, err := codec.Decode(frame[2:], cmd)
			if err != nil {
				t.Errorf("Decode() error = %v", err)
				return
			}
			if !bytes.Equal(resp.(XferResult).Captured, tdi) {
				t.Errorf("goroutine %d: mismatch", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]string{"TMS", " tdi", ""})
	if err != nil {
		t.Fatalf("ParseSignals() error = %v", err)
	}
	if s != SigTMS|SigTDI {
		t.Errorf("ParseSignals() = %v, want tdi|tms", s)
	}
	if got := s.String(); got != "tdi|tms" {
		t.Errorf("String() = %q, want tdi|tms", got)
	}
	if got := Signal(0).String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}
	if _, err := ParseSignals([]string{"tclk"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseSignals(tclk) error = %v, want ErrInvalidArgument", err)
	}
}

// The firmware answers GETSIG with only SigTDO set. GetTDO keeps its bit 0
// contract, GetSignals carries the level.
func TestGetSignalsCarriesFirmwareTDO(t *testing.T) {
	codec := NewCodec(PacketSize)
	reply := []byte{byte(SigTDO)}

	resp, err := codec.Decode(reply, GetSignals{})
	if err != nil {
		t.Fatalf("Decode(GetSignals) error = %v", err)
	}
	if !resp.(SignalState).Signals.Has(SigTDO) {
		t.Errorf("SignalState = %v, want tdo", resp.(SignalState).Signals)
	}

	resp, err = codec.Decode(reply, GetTDO{})
	if err != nil {
		t.Fatalf("Decode(GetTDO) error = %v", err)
	}
	if resp.(TDOBit).Value {
		t.Errorf("GetTDO decoded bit 3 as TDO; only bit 0 counts")
	}
}
