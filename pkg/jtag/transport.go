package jtag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/loopholelabs/logging/types"
)

const (
	// DirtyJTAG USB identifiers (pid.codes)
	VendorIDDirtyJTAG  = 0x1209
	ProductIDDirtyJTAG = 0xC0CA

	// Default packet size of the DirtyJTAG vendor endpoints
	DefaultPacketSize = 64
	DefaultTimeout    = 100 * time.Millisecond
)

var (
	// ErrTimeout reports that the probe sent nothing within the read window.
	ErrTimeout = errors.New("jtag: transport timed out")

	// ErrTransport wraps every other USB failure.
	ErrTransport = errors.New("jtag: transport failure")
)

// Transport is the bulk write/read capability a Probe drives. Implementations
// report read timeouts, and writes still pending when ctx expires, as
// ErrTimeout. All other failures are ErrTransport.
type Transport interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error)
	PacketSize() int
	Close() error
}

// USBTransport talks to a DirtyJTAG probe over its vendor bulk endpoints.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int

	vid uint16
	pid uint16
	log types.Logger
}

// NewUSBTransport opens the first device matching vid:pid, claims its probe
// interface and discovers the bulk endpoint pair.
func NewUSBTransport(vid, pid uint16, log types.Logger) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: open device: %v", ErrTransport, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: device not found (VID:0x%04X PID:0x%04X)", ErrTransport, vid, pid)
	}

	// Not supported on every platform
	if err := dev.SetAutoDetach(true); err != nil && log != nil {
		log.Debug().Err(err).Msg("auto detach unavailable")
	}

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		vid:        vid,
		pid:        pid,
		log:        log,
	}

	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}

	if log != nil {
		log.Debug().
			Str("device", fmt.Sprintf("%04X:%04X", vid, pid)).
			Int("packet_size", t.packetSize).
			Msg("probe opened")
	}
	return t, nil
}

// claimInterface claims the vendor-class interface of the active
// configuration, falling back to interface 0.
func (t *USBTransport) claimInterface() error {
	num, err := t.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("%w: active config: %v", ErrTransport, err)
	}
	cfg, err := t.dev.Config(num)
	if err != nil {
		return fmt.Errorf("%w: get config %d: %v", ErrTransport, num, err)
	}
	t.cfg = cfg

	intfNum := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			intfNum = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		return fmt.Errorf("%w: claim interface %d: %v", ErrTransport, intfNum, err)
	}
	t.intf = intf

	return t.findEndpoints()
}

// findEndpoints opens the first bulk OUT and bulk IN endpoints of the claimed
// interface setting.
func (t *USBTransport) findEndpoints() error {
	outAddr, inAddr := -1, -1
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outAddr < 0:
			outAddr = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inAddr < 0:
			inAddr = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outAddr < 0 {
		return fmt.Errorf("%w: bulk OUT endpoint not found", ErrTransport)
	}
	if inAddr < 0 {
		return fmt.Errorf("%w: bulk IN endpoint not found", ErrTransport)
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return fmt.Errorf("%w: open OUT endpoint: %v", ErrTransport, err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return fmt.Errorf("%w: open IN endpoint: %v", ErrTransport, err)
	}
	t.epIn = epIn
	return nil
}

// Write sends one command frame, bounded by ctx. DirtyJTAG frames are not
// padded.
func (t *USBTransport) Write(ctx context.Context, data []byte) error {
	if t.epOut == nil {
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if _, err := t.epOut.WriteContext(ctx, data); err != nil {
		if isUSBTimeout(ctx, err) {
			return fmt.Errorf("%w: USB write stalled", ErrTimeout)
		}
		return fmt.Errorf("%w: USB write: %v", ErrTransport, err)
	}
	return nil
}

// Read waits up to timeout for one IN transfer of at most maxLen bytes.
func (t *USBTransport) Read(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	if t.epIn == nil {
		return nil, fmt.Errorf("%w: transport closed", ErrTransport)
	}
	if maxLen <= 0 {
		maxLen = t.packetSize
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	buf := make([]byte, maxLen)
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if isUSBTimeout(ctx, err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("%w: USB read: %v", ErrTransport, err)
	}
	return buf[:n], nil
}

func isUSBTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.ErrorTimeout) {
		return true
	}
	return errors.Is(err, gousb.TransferCancelled) && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// PacketSize returns the IN endpoint's max packet size.
func (t *USBTransport) PacketSize() int {
	return t.packetSize
}

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
		t.epIn = nil
		t.epOut = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
