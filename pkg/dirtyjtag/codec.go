package dirtyjtag

import (
	"bytes"
	"fmt"
)

// Frame is the exact byte sequence written to the probe's bulk OUT endpoint.
type Frame []byte

// Bytes returns a copy of the frame contents.
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f...)
}

// Response is a decoded probe reply. The set of implementations is closed.
type Response interface {
	isResponse()
}

// TDOBit is the decoded reply to GetTDO.
type TDOBit struct {
	Value bool
}

// XferResult holds the TDO bits captured during an Xfer.
type XferResult struct {
	Captured []byte
}

// Empty is produced by the caller when the probe sent nothing within the read
// window, or when the command has no reply. Decode never returns it.
type Empty struct{}

// InfoString is the decoded CMD_INFO reply.
type InfoString struct {
	Version string
}

// SignalState is the raw GETSIG reply.
type SignalState struct {
	Signals Signal
}

// ClockResult is the TDO sample returned by a Clock with Readout set.
type ClockResult struct {
	TDO bool
}

func (TDOBit) isResponse()      {}
func (XferResult) isResponse()  {}
func (Empty) isResponse()       {}
func (InfoString) isResponse()  {}
func (SignalState) isResponse() {}
func (ClockResult) isResponse() {}

// Codec translates between logical commands and DirtyJTAG wire frames. It
// holds no mutable state and is safe for concurrent use.
type Codec struct {
	PacketSize int
}

// NewCodec creates a codec for a probe with the given endpoint packet size.
func NewCodec(packetSize int) *Codec {
	if packetSize <= 0 {
		packetSize = PacketSize
	}
	return &Codec{PacketSize: packetSize}
}

// Encode serializes cmd into a single command frame.
func (c *Codec) Encode(cmd Command) (Frame, error) {
	switch v := cmd.(type) {
	case GetTDO, GetSignals, Info, GotoBootloader:
		return Frame{cmd.Opcode()}, nil
	case SetVoltage:
		return Frame{CmdSetVoltage, v.Level}, nil
	case Xfer:
		return c.EncodeXfer(v)
	case SetFrequency:
		return Frame{CmdFreq, byte(v.KHz >> 8), byte(v.KHz)}, nil
	case SetSignals:
		return Frame{CmdSetSig, byte(v.Mask), byte(v.Status)}, nil
	case Clock:
		if v.Pulses == 0 {
			return nil, fmt.Errorf("%w: clock pulse count must be positive", ErrInvalidArgument)
		}
		return Frame{v.Opcode(), byte(v.Signals), v.Pulses}, nil
	case nil:
		return nil, fmt.Errorf("%w: nil command", ErrInvalidArgument)
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidArgument, cmd)
	}
}

// EncodeXfer builds a CMD_XFER frame: opcode, low byte of the bit length,
// then the TDI bytes.
func (c *Codec) EncodeXfer(x Xfer) (Frame, error) {
	if err := x.validate(); err != nil {
		return nil, err
	}
	frame := make(Frame, 2+len(x.TDI))
	frame[0] = CmdXfer
	frame[1] = byte(x.BitLength)
	copy(frame[2:], x.TDI)
	return frame, nil
}

// Decode interprets raw as the reply to cmd. The wire format does not
// describe itself, so the command that produced raw must be supplied.
func (c *Codec) Decode(raw []byte, cmd Command) (Response, error) {
	switch v := cmd.(type) {
	case GetTDO:
		if len(raw) < 1 {
			return nil, fmt.Errorf("%w: empty TDO reply", ErrMalformedResponse)
		}
		return TDOBit{Value: raw[0]&0x01 != 0}, nil
	case Xfer:
		return c.DecodeXfer(raw, v)
	case GetSignals:
		if len(raw) < 1 {
			return nil, fmt.Errorf("%w: empty signal reply", ErrMalformedResponse)
		}
		return SignalState{Signals: Signal(raw[0])}, nil
	case Info:
		if len(raw) < 1 {
			return nil, fmt.Errorf("%w: empty info reply", ErrMalformedResponse)
		}
		s := raw
		if len(s) > infoLen {
			s = s[:infoLen]
		}
		if i := bytes.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		return InfoString{Version: string(bytes.TrimRight(s, "\r\n"))}, nil
	case Clock:
		if !v.Readout {
			return nil, fmt.Errorf("%w: clock without readout has no reply", ErrMalformedResponse)
		}
		if len(raw) < 1 {
			return nil, fmt.Errorf("%w: empty clock readout", ErrMalformedResponse)
		}
		return ClockResult{TDO: raw[0]&0x01 != 0}, nil
	case SetFrequency, SetSignals, SetVoltage, GotoBootloader:
		return nil, fmt.Errorf("%w: %s has no reply", ErrMalformedResponse, Name(cmd))
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidArgument, cmd)
	}
}

// DecodeXfer extracts the captured TDO bytes for x from raw. Trailing bytes
// beyond ceil(BitLength/8) are ignored.
func (c *Codec) DecodeXfer(raw []byte, x Xfer) (Response, error) {
	n := x.ByteLen()
	if len(raw) < n {
		return nil, fmt.Errorf("%w: xfer of %d bits needs %d bytes, got %d",
			ErrMalformedResponse, x.BitLength, n, len(raw))
	}
	return XferResult{Captured: append([]byte(nil), raw[:n]...)}, nil
}

// EncodeBatch packs several commands into one OUT packet. The firmware stops
// at CMD_STOP or the end of the packet, so a stop byte is appended whenever the
// batch is shorter than the packet.
func (c *Codec) EncodeBatch(cmds ...Command) (Frame, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidArgument)
	}
	var out Frame
	reply := 0
	for i, cmd := range cmds {
		f, err := c.Encode(cmd)
		if err != nil {
			return nil, fmt.Errorf("batch command %d: %w", i, err)
		}
		out = append(out, f...)
		reply += ResponseLen(cmd)
	}
	if len(out) > c.PacketSize {
		return nil, fmt.Errorf("%w: batch of %d bytes exceeds packet size %d",
			ErrInvalidArgument, len(out), c.PacketSize)
	}
	if reply > c.PacketSize {
		return nil, fmt.Errorf("%w: batch reply of %d bytes exceeds packet size %d",
			ErrInvalidArgument, reply, c.PacketSize)
	}
	if len(out) < c.PacketSize {
		out = append(out, CmdStop)
	}
	return out, nil
}

// DecodeBatch splits a concatenated reply into one Response per command.
// Commands without a reply yield Empty.
func (c *Codec) DecodeBatch(raw []byte, cmds ...Command) ([]Response, error) {
	out := make([]Response, 0, len(cmds))
	offset := 0
	for i, cmd := range cmds {
		n := ResponseLen(cmd)
		if n == 0 {
			out = append(out, Empty{})
			continue
		}
		if offset+n > len(raw) {
			return nil, fmt.Errorf("batch command %d: %w: need %d bytes at offset %d, have %d",
				i, ErrMalformedResponse, n, offset, len(raw))
		}
		resp, err := c.Decode(raw[offset:offset+n], cmd)
		if err != nil {
			return nil, fmt.Errorf("batch command %d: %w", i, err)
		}
		out = append(out, resp)
		offset += n
	}
	return out, nil
}
