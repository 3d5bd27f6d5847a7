package jtag

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
)

// AdapterInfo describes capabilities reported by a probe.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	PacketSize   int
	SupportsSRST bool
	SupportsTRST bool
	Notes        string
}

// Adapter abstracts a DirtyJTAG probe connection, physical or simulated.
type Adapter interface {
	Info(ctx context.Context) (AdapterInfo, error)
	TDO(ctx context.Context) (bool, error)
	Transfer(ctx context.Context, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(ctx context.Context, hard bool) error
	SetSpeed(ctx context.Context, hz int) error
	Close() error
}

// ValidateShiftBuffer checks that tdi holds exactly the bytes needed for bits
// and returns that byte count.
func ValidateShiftBuffer(tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("%w: bits must be positive, got %d", dirtyjtag.ErrInvalidArgument, bits)
	}
	required := dirtyjtag.ByteLen(bits)
	if len(tdi) != required {
		return 0, fmt.Errorf("%w: %d bits need %d TDI bytes, got %d",
			dirtyjtag.ErrInvalidArgument, bits, required, len(tdi))
	}
	return required, nil
}
