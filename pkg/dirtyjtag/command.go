package dirtyjtag

import "fmt"

// Command is a logical probe operation. The set of implementations is closed.
type Command interface {
	Opcode() byte
	isCommand()
}

// GetTDO requests the current value of the TDO line.
type GetTDO struct{}

// Xfer shifts BitLength bits of TDI out, LSB-first within each byte, and
// captures TDO.
type Xfer struct {
	BitLength uint16
	TDI       []byte
}

// Info requests the firmware identification string.
type Info struct{}

// SetFrequency sets the TCK frequency in kHz.
type SetFrequency struct {
	KHz uint16
}

// SetSignals drives the lines in Mask to the levels in Status.
type SetSignals struct {
	Mask   Signal
	Status Signal
}

// GetSignals reads the raw signal state byte. It uses the same wire frame as
// GetTDO but decodes the whole mask.
type GetSignals struct{}

// Clock strobes TCK Pulses times with TMS/TDI held at the levels in Signals.
type Clock struct {
	Signals Signal
	Pulses  uint8
	Readout bool
}

// SetVoltage selects the target I/O voltage on boards with a level shifter.
// Level is board specific; the stock RP2040 firmware accepts and ignores it.
type SetVoltage struct {
	Level uint8
}

// GotoBootloader resets the probe into its USB bootloader, if one is
// installed. The probe drops off the bus and never replies.
type GotoBootloader struct{}

func (GetTDO) Opcode() byte         { return CmdGetSig }
func (Xfer) Opcode() byte           { return CmdXfer }
func (Info) Opcode() byte           { return CmdInfo }
func (SetFrequency) Opcode() byte   { return CmdFreq }
func (SetSignals) Opcode() byte     { return CmdSetSig }
func (GetSignals) Opcode() byte     { return CmdGetSig }
func (SetVoltage) Opcode() byte     { return CmdSetVoltage }
func (GotoBootloader) Opcode() byte { return CmdGotoBootloader }

func (c Clock) Opcode() byte {
	if c.Readout {
		return CmdClk | ClkReadout
	}
	return CmdClk
}

func (GetTDO) isCommand()         {}
func (Xfer) isCommand()           {}
func (Info) isCommand()           {}
func (SetFrequency) isCommand()   {}
func (SetSignals) isCommand()     {}
func (GetSignals) isCommand()     {}
func (Clock) isCommand()          {}
func (SetVoltage) isCommand()     {}
func (GotoBootloader) isCommand() {}

// NewXfer builds a transfer command for bits bits of tdi. tdi is copied.
func NewXfer(bits int, tdi []byte) (Xfer, error) {
	if bits <= 0 || bits > 0xFFFF {
		return Xfer{}, fmt.Errorf("%w: bit length %d out of range 1..65535", ErrInvalidArgument, bits)
	}
	x := Xfer{BitLength: uint16(bits), TDI: append([]byte(nil), tdi...)}
	if err := x.validate(); err != nil {
		return Xfer{}, err
	}
	return x, nil
}

// ByteLen returns ceil(BitLength/8).
func (x Xfer) ByteLen() int {
	return ByteLen(int(x.BitLength))
}

func (x Xfer) validate() error {
	if x.BitLength == 0 {
		return fmt.Errorf("%w: bit length must be positive", ErrInvalidArgument)
	}
	if len(x.TDI) != x.ByteLen() {
		return fmt.Errorf("%w: %d bits need %d TDI bytes, got %d",
			ErrInvalidArgument, x.BitLength, x.ByteLen(), len(x.TDI))
	}
	return nil
}

// ResponseLen returns how many bytes the probe sends back for cmd. Zero means
// the command produces no IN transfer.
func ResponseLen(cmd Command) int {
	switch c := cmd.(type) {
	case GetTDO, GetSignals:
		return 1
	case Xfer:
		return c.ByteLen()
	case Info:
		return infoLen
	case Clock:
		if c.Readout {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Name returns a short label for cmd, used in logs and metric labels.
func Name(cmd Command) string {
	switch cmd.(type) {
	case GetTDO:
		return "get_tdo"
	case Xfer:
		return "xfer"
	case Info:
		return "info"
	case SetFrequency:
		return "freq"
	case SetSignals:
		return "setsig"
	case GetSignals:
		return "getsig"
	case Clock:
		return "clk"
	case SetVoltage:
		return "setvoltage"
	case GotoBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}
