// Package dirtyjtag encodes DirtyJTAG probe commands into bulk OUT frames and
// decodes the bulk IN replies.
//
// The codec performs no I/O. Replies do not identify themselves, so Decode
// must be given the command that produced the bytes. GetTDO and GetSignals
// share the GETSIG frame: GetTDO reads bit 0 of the reply while GetSignals
// keeps the whole mask. The stock firmware reports TDO at SigTDO, so callers
// talking to real hardware should prefer GetSignals. A read that times out is
// not decoded at all; the caller represents it as Empty.
//
// Frame layout (first byte is always the opcode):
//
//	0x05                     GETSIG, replies 1 byte
//	0x03 len tdi...          XFER, len is the low byte of the bit count,
//	                         replies ceil(bits/8) captured bytes
//	0x01                     INFO, replies a 10 byte version string
//	0x02 khz_hi khz_lo       FREQ
//	0x04 mask status         SETSIG
//	0x06|0x80 signals count  CLK, 0x80 requests a 1 byte TDO readout
//	0x07 level               SETVOLTAGE
//	0x08                     GOTOBOOTLOADER
//	0x00                     STOP, ends a batched packet
package dirtyjtag
