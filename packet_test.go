package xmodem

import (
	"bytes"
	"testing"
)

func TestBuildPacket128Checksum(t *testing.T) {
	pkt := buildPacket(1, []byte("Hello, world!"), packetOptions{
		size: PacketSize128,
		pad:  SUB,
		mode: ModeChecksum,
	})

	if len(pkt) != PacketSize128+4 {
		t.Fatalf("len = %d, want %d", len(pkt), PacketSize128+4)
	}
	if pkt[0] != SOH || pkt[1] != 0x01 || pkt[2] != 0xFE {
		t.Errorf("prefix = % 02x, want 01 01 fe", pkt[:3])
	}
	if !bytes.Equal(pkt[3:16], []byte("Hello, world!")) {
		t.Errorf("data region = %q", pkt[3:16])
	}
	for i, b := range pkt[16:131] {
		if b != SUB {
			t.Fatalf("padding byte %d = 0x%02x, want 0x%02x", i, b, byte(SUB))
		}
	}
	if pkt[131] != 0x37 {
		t.Errorf("checksum = 0x%02x, want 0x37", pkt[131])
	}
}

func TestBuildPacket128CRC(t *testing.T) {
	pkt := buildPacket(1, []byte("Hello, world!"), packetOptions{
		size: PacketSize128,
		pad:  SUB,
		mode: ModeCRC,
	})

	if len(pkt) != PacketSize128+5 {
		t.Fatalf("len = %d, want %d", len(pkt), PacketSize128+5)
	}
	// CRC-16/XMODEM of the padded region, big-endian.
	if pkt[131] != 0x74 || pkt[132] != 0xA3 {
		t.Errorf("crc = %02x %02x, want 74 a3", pkt[131], pkt[132])
	}
}

func TestBuildPacket1KHeader(t *testing.T) {
	data := bytes.Repeat([]byte{0x55}, PacketSize1K)
	pkt := buildPacket(2, data, packetOptions{
		size: PacketSize1K,
		pad:  SUB,
		mode: ModeCRC,
	})

	if len(pkt) != PacketSize1K+5 {
		t.Fatalf("len = %d, want %d", len(pkt), PacketSize1K+5)
	}
	if pkt[0] != STX || pkt[1] != 0x02 || pkt[2] != 0xFD {
		t.Errorf("prefix = % 02x, want 02 02 fd", pkt[:3])
	}
}

func TestBuildPacketSeqComplement(t *testing.T) {
	for _, num := range []byte{0, 1, 2, 127, 128, 254, 255} {
		pkt := buildPacket(num, []byte{0xAA}, packetOptions{
			size: PacketSize128,
			pad:  SUB,
			mode: ModeChecksum,
		})
		if pkt[1]+pkt[2] != 255 {
			t.Errorf("num %d: seq bytes %02x %02x do not sum to 255", num, pkt[1], pkt[2])
		}
	}
}

func TestBuildPacketNoPaddingWhenFull(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, PacketSize128)
	pkt := buildPacket(1, data, packetOptions{
		size: PacketSize128,
		pad:  SUB,
		mode: ModeChecksum,
	})
	if !bytes.Equal(pkt[3:131], data) {
		t.Errorf("full packet got padded")
	}
}

func TestBuildPacketCustomPadding(t *testing.T) {
	pkt := buildPacket(1, []byte{0x01}, packetOptions{
		size: PacketSize128,
		pad:  0x00,
		mode: ModeChecksum,
	})
	for i, b := range pkt[4:131] {
		if b != 0x00 {
			t.Fatalf("padding byte %d = 0x%02x, want 0x00", i, b)
		}
	}
}

func TestBuildPacketDeterministic(t *testing.T) {
	opts := packetOptions{size: PacketSize128, pad: SUB, mode: ModeCRC}
	a := buildPacket(7, []byte("same input"), opts)
	b := buildPacket(7, []byte("same input"), opts)
	if !bytes.Equal(a, b) {
		t.Errorf("identical inputs produced different packets")
	}
}
