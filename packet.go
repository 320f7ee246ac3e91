package xmodem

import (
	"encoding/binary"
	"fmt"
)

// packetOptions parameterizes buildPacket.
type packetOptions struct {
	size int  // PacketSize128 or PacketSize1K
	pad  byte // fill byte for a short final packet
	mode ChecksumMode
}

// buildPacket frames one data packet:
//
//	header | number | 255-number | payload padded to size | checksum
//
// The header is SOH for 128-byte packets and STX for 1024-byte packets.
// The integrity field covers the padded payload region only: one
// arithmetic checksum byte in ModeChecksum, a big-endian CRC-16 in
// ModeCRC. The builder is pure — identical inputs yield identical bytes.
//
// An invalid size, an unset mode, or data longer than size is a caller
// bug and panics.
func buildPacket(number byte, data []byte, opts packetOptions) []byte {
	header := byte(SOH)
	switch opts.size {
	case PacketSize128:
	case PacketSize1K:
		header = STX
	default:
		panic(fmt.Sprintf("xmodem: invalid packet size %d", opts.size))
	}
	if len(data) > opts.size {
		panic(fmt.Sprintf("xmodem: packet data %d exceeds size %d", len(data), opts.size))
	}
	if opts.mode != ModeChecksum && opts.mode != ModeCRC {
		panic(fmt.Sprintf("xmodem: invalid checksum mode %d", opts.mode))
	}

	overhead := 4
	if opts.mode == ModeCRC {
		overhead = 5
	}

	pkt := make([]byte, 0, opts.size+overhead)
	pkt = append(pkt, header, number, 255-number)
	pkt = append(pkt, data...)
	for i := len(data); i < opts.size; i++ {
		pkt = append(pkt, opts.pad)
	}

	region := pkt[3 : 3+opts.size]
	if opts.mode == ModeCRC {
		pkt = binary.BigEndian.AppendUint16(pkt, crc16Calc(region))
	} else {
		pkt = append(pkt, checksum8(region))
	}
	return pkt
}
