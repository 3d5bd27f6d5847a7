package jtag

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
	"github.com/loopholelabs/logging/types"
)

// xferChunkBits keeps each CMD_XFER within the one-byte length field and on a
// byte boundary so chunks can be split and joined without bit shifting.
const xferChunkBits = 248

// Frequency limits accepted by CMD_FREQ (kHz carried in 16 bits).
const (
	minFrequencyHz = 1_000
	maxFrequencyHz = 0xFFFF * 1_000
)

// ProbeConfig tunes a Probe. Zero values select defaults.
type ProbeConfig struct {
	ReadSize int
	Timeout  time.Duration
	Logger   types.Logger
	Metrics  *Metrics
}

// Probe runs DirtyJTAG command/response exchanges over a Transport. Each
// exchange is one encode, one write, at most one read and one decode, and
// exchanges on the same Probe never interleave.
type Probe struct {
	transport Transport
	codec     *dirtyjtag.Codec

	readSize int
	timeout  time.Duration
	log      types.Logger
	metrics  *Metrics

	speedHz int

	mu sync.Mutex
}

var _ Adapter = (*Probe)(nil)

// NewProbe wraps t. The Probe takes ownership and closes t on Close.
func NewProbe(t Transport, cfg ProbeConfig) *Probe {
	readSize := cfg.ReadSize
	if readSize <= 0 {
		readSize = t.PacketSize()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{
		transport: t,
		codec:     dirtyjtag.NewCodec(t.PacketSize()),
		readSize:  readSize,
		timeout:   timeout,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// OpenUSBProbe opens a DirtyJTAG probe by VID/PID.
func OpenUSBProbe(vid, pid uint16, cfg ProbeConfig) (*Probe, error) {
	t, err := NewUSBTransport(vid, pid, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	return NewProbe(t, cfg), nil
}

// Exchange sends cmd and decodes the reply. Commands without a reply return
// Empty. A write or read timeout returns Empty together with the transport's
// ErrTimeout; decode failures return the codec error and no response.
func (p *Probe) Exchange(ctx context.Context, cmd dirtyjtag.Command) (dirtyjtag.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchange(ctx, cmd)
}

func (p *Probe) exchange(ctx context.Context, cmd dirtyjtag.Command) (dirtyjtag.Response, error) {
	name := dirtyjtag.Name(cmd)

	frame, err := p.codec.Encode(cmd)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := p.write(ctx, frame); err != nil {
		if errors.Is(err, ErrTimeout) {
			p.metrics.timeout(name)
			return dirtyjtag.Empty{}, err
		}
		return nil, err
	}
	p.metrics.sent(name, len(frame))
	if p.log != nil {
		p.log.Trace().Str("command", name).Str("out", hex.EncodeToString(frame)).Msg("frame written")
	}

	if dirtyjtag.ResponseLen(cmd) == 0 {
		return dirtyjtag.Empty{}, nil
	}

	raw, err := p.transport.Read(ctx, p.readSize, p.timeout)
	p.metrics.observe(name, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			p.metrics.timeout(name)
			if p.log != nil {
				p.log.Debug().Str("command", name).Err(err).Msg("no IN response")
			}
			return dirtyjtag.Empty{}, err
		}
		return nil, err
	}
	p.metrics.received(name, len(raw))
	if p.log != nil {
		p.log.Trace().Str("command", name).Str("in", hex.EncodeToString(raw)).Msg("reply read")
	}

	resp, err := p.codec.Decode(raw, cmd)
	if err != nil {
		p.metrics.decodeError(name)
		if p.log != nil {
			p.log.Debug().Str("command", name).Int("length", len(raw)).Err(err).Msg("reply rejected")
		}
		return nil, err
	}
	return resp, nil
}

// write bounds an OUT transfer by the probe timeout so a stalled endpoint
// cannot block forever.
func (p *Probe) write(ctx context.Context, frame dirtyjtag.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.transport.Write(ctx, frame)
}

// Batch packs cmds into one packet and splits the combined reply.
func (p *Probe) Batch(ctx context.Context, cmds ...dirtyjtag.Command) ([]dirtyjtag.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, err := p.codec.EncodeBatch(cmds...)
	if err != nil {
		return nil, err
	}
	if err := p.write(ctx, frame); err != nil {
		if errors.Is(err, ErrTimeout) {
			p.metrics.timeout("batch")
		}
		return nil, err
	}
	p.metrics.sent("batch", len(frame))

	want := 0
	for _, cmd := range cmds {
		want += dirtyjtag.ResponseLen(cmd)
	}
	var raw []byte
	if want > 0 {
		raw, err = p.transport.Read(ctx, p.readSize, p.timeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				p.metrics.timeout("batch")
			}
			return nil, err
		}
		p.metrics.received("batch", len(raw))
	}

	resps, err := p.codec.DecodeBatch(raw, cmds...)
	if err != nil {
		p.metrics.decodeError("batch")
		return nil, err
	}
	return resps, nil
}

// TDO reads the current TDO level. The firmware reports it at SigTDO of the
// GETSIG reply, so the full mask is decoded rather than bit 0.
func (p *Probe) TDO(ctx context.Context) (bool, error) {
	resp, err := p.Exchange(ctx, dirtyjtag.GetSignals{})
	if err != nil {
		return false, fmt.Errorf("get TDO failed: %w", err)
	}
	return resp.(dirtyjtag.SignalState).Signals.Has(dirtyjtag.SigTDO), nil
}

// Signals reads the raw GETSIG state byte.
func (p *Probe) Signals(ctx context.Context) (dirtyjtag.Signal, error) {
	resp, err := p.Exchange(ctx, dirtyjtag.GetSignals{})
	if err != nil {
		return 0, fmt.Errorf("get signals failed: %w", err)
	}
	return resp.(dirtyjtag.SignalState).Signals, nil
}

// Transfer shifts bits bits of tdi through the probe and returns captured TDO.
// Shifts longer than one frame are split into consecutive CMD_XFER frames.
func (p *Probe) Transfer(ctx context.Context, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffer(tdi, bits); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tdo := make([]byte, dirtyjtag.ByteLen(bits))
	for off := 0; off < bits; off += xferChunkBits {
		n := min(xferChunkBits, bits-off)
		start := off / 8
		x := dirtyjtag.Xfer{BitLength: uint16(n), TDI: tdi[start : start+dirtyjtag.ByteLen(n)]}

		resp, err := p.exchange(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("transfer at bit %d: %w", off, err)
		}
		copy(tdo[start:], resp.(dirtyjtag.XferResult).Captured)
	}
	return tdo, nil
}

// Info queries the firmware version string.
func (p *Probe) Info(ctx context.Context) (AdapterInfo, error) {
	resp, err := p.Exchange(ctx, dirtyjtag.Info{})
	if err != nil {
		return AdapterInfo{}, fmt.Errorf("query info failed: %w", err)
	}
	return AdapterInfo{
		Name:         "DirtyJTAG Probe",
		Vendor:       "DirtyJTAG",
		Model:        "RP2040",
		Firmware:     resp.(dirtyjtag.InfoString).Version,
		MinFrequency: minFrequencyHz,
		MaxFrequency: maxFrequencyHz,
		PacketSize:   p.transport.PacketSize(),
		SupportsSRST: true,
		SupportsTRST: true,
	}, nil
}

// SetSpeed sets the TCK frequency. The probe takes kHz, so hz is truncated.
func (p *Probe) SetSpeed(ctx context.Context, hz int) error {
	if hz < minFrequencyHz || hz > maxFrequencyHz {
		return fmt.Errorf("%w: frequency %d Hz out of range [%d, %d]",
			dirtyjtag.ErrInvalidArgument, hz, minFrequencyHz, maxFrequencyHz)
	}
	if _, err := p.Exchange(ctx, dirtyjtag.SetFrequency{KHz: uint16(hz / 1000)}); err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}

	p.mu.Lock()
	p.speedHz = hz
	p.mu.Unlock()
	return nil
}

// Speed returns the last frequency set through SetSpeed, or 0.
func (p *Probe) Speed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speedHz
}

// SetSignals drives the lines in mask to the levels in status.
func (p *Probe) SetSignals(ctx context.Context, mask, status dirtyjtag.Signal) error {
	if _, err := p.Exchange(ctx, dirtyjtag.SetSignals{Mask: mask, Status: status}); err != nil {
		return fmt.Errorf("set signals failed: %w", err)
	}
	return nil
}

// Clock pulses TCK with TMS/TDI held at the levels in signals. With readout
// set the sampled TDO is returned.
func (p *Probe) Clock(ctx context.Context, signals dirtyjtag.Signal, pulses uint8, readout bool) (bool, error) {
	resp, err := p.Exchange(ctx, dirtyjtag.Clock{Signals: signals, Pulses: pulses, Readout: readout})
	if err != nil {
		return false, fmt.Errorf("clock failed: %w", err)
	}
	if r, ok := resp.(dirtyjtag.ClockResult); ok {
		return r.TDO, nil
	}
	return false, nil
}

// SetVoltage selects the target I/O level on boards that support it.
func (p *Probe) SetVoltage(ctx context.Context, level uint8) error {
	if _, err := p.Exchange(ctx, dirtyjtag.SetVoltage{Level: level}); err != nil {
		return fmt.Errorf("set voltage failed: %w", err)
	}
	return nil
}

// EnterBootloader reboots the probe into its bootloader. The probe leaves
// the bus afterwards, so the Probe should be closed.
func (p *Probe) EnterBootloader(ctx context.Context) error {
	if _, err := p.Exchange(ctx, dirtyjtag.GotoBootloader{}); err != nil {
		return fmt.Errorf("enter bootloader failed: %w", err)
	}
	return nil
}

// ResetTAP issues a soft reset (five TCK with TMS high) or, when hard is
// set, pulses SRST low.
func (p *Probe) ResetTAP(ctx context.Context, hard bool) error {
	if hard {
		if err := p.SetSignals(ctx, dirtyjtag.SigSRST, 0); err != nil {
			return fmt.Errorf("hard reset failed: %w", err)
		}
		if err := p.SetSignals(ctx, dirtyjtag.SigSRST, dirtyjtag.SigSRST); err != nil {
			return fmt.Errorf("hard reset failed: %w", err)
		}
		return nil
	}
	if _, err := p.Clock(ctx, dirtyjtag.SigTMS, 5, false); err != nil {
		return fmt.Errorf("TAP reset failed: %w", err)
	}
	return nil
}

// Close releases the transport.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport.Close()
}
