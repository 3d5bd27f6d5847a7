package dirtyjtag

import (
	"errors"
	"fmt"
	"strings"
)

// DirtyJTAG command identifiers. The low nibble selects the command, the high
// bits carry per-command modifiers.
const (
	CmdStop           = 0x00
	CmdInfo           = 0x01
	CmdFreq           = 0x02
	CmdXfer           = 0x03
	CmdSetSig         = 0x04
	CmdGetSig         = 0x05
	CmdClk            = 0x06
	CmdSetVoltage     = 0x07
	CmdGotoBootloader = 0x08
)

// Command modifiers
const (
	XferNoRead       = 0x80
	XferExtendLength = 0x40
	ClkReadout       = 0x80
)

const (
	// PacketSize is the size of the probe's vendor bulk endpoints.
	PacketSize = 64

	// MaxXferBits is the firmware cap on a single transfer (62 payload bytes).
	MaxXferBits = 62 * 8

	// infoLen is the fixed size of the CMD_INFO reply.
	infoLen = 10
)

// Signal is a bit mask of JTAG lines as used by SETSIG/GETSIG/CLK.
type Signal uint8

const (
	SigTCK  Signal = 1 << 1
	SigTDI  Signal = 1 << 2
	SigTDO  Signal = 1 << 3
	SigTMS  Signal = 1 << 4
	SigTRST Signal = 1 << 5
	SigSRST Signal = 1 << 6
)

// Has reports whether every bit in o is set in s.
func (s Signal) Has(o Signal) bool { return s&o == o }

var signalNames = []struct {
	sig  Signal
	name string
}{
	{SigTCK, "tck"},
	{SigTDI, "tdi"},
	{SigTDO, "tdo"},
	{SigTMS, "tms"},
	{SigTRST, "trst"},
	{SigSRST, "srst"},
}

func (s Signal) String() string {
	var parts []string
	for _, n := range signalNames {
		if s.Has(n.sig) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseSignals builds a mask from line names such as "tms" or "srst".
func ParseSignals(names []string) (Signal, error) {
	var s Signal
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, n := range signalNames {
			if n.name == name {
				s |= n.sig
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown signal %q", ErrInvalidArgument, name)
		}
	}
	return s, nil
}

var (
	// ErrInvalidArgument reports a logical command that cannot be encoded.
	ErrInvalidArgument = errors.New("dirtyjtag: invalid argument")

	// ErrMalformedResponse reports response bytes that do not match the
	// shape expected for the command that produced them.
	ErrMalformedResponse = errors.New("dirtyjtag: malformed response")
)

// ByteLen returns the number of bytes needed to hold bits bits.
func ByteLen(bits int) int {
	return (bits + 7) / 8
}
