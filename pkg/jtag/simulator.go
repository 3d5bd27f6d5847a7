package jtag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
)

// XferHook lets tests emulate device-specific TDO data for a transfer.
type XferHook func(tdi []byte, bits int) []byte

// SimTransport is an in-memory DirtyJTAG probe. It runs the firmware command
// loop over every written packet and queues the reply for the next Read.
type SimTransport struct {
	// OnXfer produces captured TDO for CMD_XFER. Nil echoes TDI.
	OnXfer XferHook

	// Silent drops every reply so reads time out.
	Silent bool

	mu       sync.Mutex
	tdo      bool
	signals  dirtyjtag.Signal
	freqKHz  int
	clocks   int
	pending  [][]byte
	frames   [][]byte
	closed   bool
	infoText string

	voltage    int
	bootloader bool
}

// NewSimTransport returns a simulator reporting the stock firmware version.
func NewSimTransport() *SimTransport {
	return &SimTransport{infoText: "DJTAG2\n"}
}

// SetTDO sets the level the simulated TDO line reports.
func (s *SimTransport) SetTDO(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tdo = v
}

// Signals returns the line levels last driven through SETSIG/CLK.
func (s *SimTransport) Signals() dirtyjtag.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals
}

// FrequencyKHz returns the last CMD_FREQ value.
func (s *SimTransport) FrequencyKHz() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freqKHz
}

// Clocks returns the number of TCK pulses issued through CMD_CLK.
func (s *SimTransport) Clocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clocks
}

// Voltage returns the last CMD_SETVOLTAGE level, or 0.
func (s *SimTransport) Voltage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

// InBootloader reports whether CMD_GOTOBOOTLOADER was received.
func (s *SimTransport) InBootloader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootloader
}

// Frames returns copies of every packet written so far.
func (s *SimTransport) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

func (s *SimTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if len(data) > DefaultPacketSize {
		return fmt.Errorf("%w: packet of %d bytes exceeds %d", ErrTransport, len(data), DefaultPacketSize)
	}
	s.frames = append(s.frames, append([]byte(nil), data...))

	reply := s.handle(data)
	if len(reply) > 0 && !s.Silent {
		s.pending = append(s.pending, reply)
	}
	return nil
}

func (s *SimTransport) Read(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if len(s.pending) == 0 {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	reply := s.pending[0]
	s.pending = s.pending[1:]
	if maxLen > 0 && len(reply) > maxLen {
		reply = reply[:maxLen]
	}
	return reply, nil
}

func (s *SimTransport) PacketSize() int {
	return DefaultPacketSize
}

func (s *SimTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}

// handle mirrors the firmware command loop: commands run until CMD_STOP or
// the end of the packet, an unknown opcode halts without replying.
func (s *SimTransport) handle(cmds []byte) []byte {
	var out []byte
	i := 0
	for i < len(cmds) && cmds[i] != dirtyjtag.CmdStop {
		op := cmds[i]
		switch op & 0x0F {
		case dirtyjtag.CmdInfo:
			info := make([]byte, 10)
			copy(info, s.infoText)
			out = append(out, info...)
			i++

		case dirtyjtag.CmdFreq:
			if i+2 < len(cmds) {
				s.freqKHz = int(cmds[i+1])<<8 | int(cmds[i+2])
			}
			i += 3

		case dirtyjtag.CmdXfer:
			bits := 0
			if i+1 < len(cmds) {
				bits = int(cmds[i+1])
			}
			if op&dirtyjtag.XferExtendLength != 0 {
				bits += 256
			}
			if bits > dirtyjtag.MaxXferBits {
				bits = dirtyjtag.MaxXferBits
			}
			n := dirtyjtag.ByteLen(bits)
			tdi := make([]byte, n)
			if i+2 < len(cmds) {
				copy(tdi, cmds[i+2:])
			}
			if op&dirtyjtag.XferNoRead == 0 {
				out = append(out, s.xfer(tdi, bits)...)
			}
			i += 2 + n

		case dirtyjtag.CmdSetSig:
			if i+2 < len(cmds) {
				mask, status := dirtyjtag.Signal(cmds[i+1]), dirtyjtag.Signal(cmds[i+2])
				s.signals = s.signals&^mask | status&mask
			}
			i += 3

		case dirtyjtag.CmdGetSig:
			var state byte
			if s.tdo {
				state = byte(dirtyjtag.SigTDO)
			}
			out = append(out, state)
			i++

		case dirtyjtag.CmdClk:
			if i+2 < len(cmds) {
				sig := dirtyjtag.Signal(cmds[i+1])
				s.signals = s.signals&^(dirtyjtag.SigTMS|dirtyjtag.SigTDI) | sig&(dirtyjtag.SigTMS|dirtyjtag.SigTDI)
				s.clocks += int(cmds[i+2])
			}
			if op&dirtyjtag.ClkReadout != 0 {
				var v byte
				if s.tdo {
					v = 0x01
				}
				out = append(out, v)
			}
			i += 3

		case dirtyjtag.CmdSetVoltage:
			if i+1 < len(cmds) {
				s.voltage = int(cmds[i+1])
			}
			i += 2

		case dirtyjtag.CmdGotoBootloader:
			s.bootloader = true
			i++

		default:
			return nil
		}
	}
	return out
}

func (s *SimTransport) xfer(tdi []byte, bits int) []byte {
	n := dirtyjtag.ByteLen(bits)
	if s.OnXfer != nil {
		tdo := make([]byte, n)
		copy(tdo, s.OnXfer(tdi, bits))
		return tdo
	}
	// Default: echo TDI to TDO to keep tests predictable.
	tdo := make([]byte, n)
	copy(tdo, tdi)
	return tdo
}
