// Command xsend transmits a single file over a serial line using the
// XMODEM protocol. The receiver picks the variant: NAK for classic
// checksum mode, 'C' for CRC-16; pass -1k for 1024-byte packets.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.bug.st/serial"

	xmodem "github.com/xx25/go-xmodem"
)

func main() {
	portName := flag.String("port", "/dev/ttyUSB0", "serial port device")
	baud := flag.Int("baud", 115200, "baud rate")
	use1k := flag.Bool("1k", false, "use 1024-byte packets (XMODEM-1K)")
	retries := flag.Int("retries", 2, "consecutive NAKs tolerated per packet")
	timeout := flag.Duration("timeout", 10*time.Second, "receive timeout, 0 disables")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] FILE\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	payload, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read %s: %v", flag.Arg(0), err)
	}

	port, err := serial.Open(*portName, &serial.Mode{BaudRate: *baud})
	if err != nil {
		log.Fatalf("open %s: %v", *portName, err)
	}
	defer port.Close()

	// Short read timeout so the loop can notice engine termination
	// (recv timeout) even while the line is silent.
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		log.Fatalf("set read timeout: %v", err)
	}

	size := xmodem.PacketSize128
	if *use1k {
		size = xmodem.PacketSize1K
	}
	snd, err := xmodem.NewSender(payload, &xmodem.Config{
		PacketSize:  size,
		MaxRetries:  *retries,
		RecvTimeout: *timeout,
	})
	if err != nil {
		log.Fatalf("xmodem: %v", err)
	}

	log.Printf("sending %s (%d bytes) via %s at %d baud, waiting for receiver",
		flag.Arg(0), len(payload), *portName, *baud)

	buf := make([]byte, 256)
	lastSent := 0
	for {
		select {
		case <-snd.Done():
			if err := snd.Err(); err != nil {
				log.Fatalf("transfer failed: %v", err)
			}
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			snd.Cancel()
			log.Fatalf("serial read: %v", err)
		}
		if n == 0 {
			continue // read timeout tick
		}

		out := snd.Receive(buf[:n])
		switch {
		case errors.Is(out.Err, xmodem.ErrNoProcess):
			continue // lost the race with the recv timer; Done reports it
		case errors.Is(out.Err, xmodem.ErrUnexpectedData):
			log.Printf("ignoring: %v", out.Err)
			continue
		case out.Err != nil:
			log.Fatalf("transfer failed: %v", out.Err)
		}

		if len(out.Data) > 0 {
			if _, err := port.Write(out.Data); err != nil {
				log.Fatalf("serial write: %v", err)
			}
		}
		if sent, total, err := snd.Progress(); err == nil && sent != lastSent {
			lastSent = sent
			log.Printf("packet %d/%d", sent, total)
		}
		if out.Done {
			log.Printf("transfer complete")
			return
		}
	}
}
