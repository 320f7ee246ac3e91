package xmodem

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Errors reported by the engine. ErrUnexpectedData leaves the transfer
// running; every other error is terminal.
var (
	// ErrCanceled reports two consecutive CAN bytes from the receiver.
	ErrCanceled = errors.New("xmodem: transfer canceled by receiver")
	// ErrMaxRetries reports a NAK past the configured retry limit.
	ErrMaxRetries = errors.New("xmodem: retry limit exceeded")
	// ErrUnexpectedData reports input that is not valid in the current
	// state. The engine stays where it is.
	ErrUnexpectedData = errors.New("xmodem: unexpected data")
	// ErrNoProcess reports an operation on a terminated engine.
	ErrNoProcess = errors.New("xmodem: no transfer in progress")
	// ErrTimeout reports RecvTimeout inactivity while awaiting an ack.
	// Surfaced through Done/Err, never as a Receive outcome.
	ErrTimeout = errors.New("xmodem: receive timeout")
)

// Construction errors.
var (
	ErrEmptyPayload      = errors.New("xmodem: empty payload")
	ErrInvalidPacketSize = errors.New("xmodem: packet size must be 128 or 1024")
	ErrInvalidPadding    = errors.New("xmodem: padding must be a single byte")
)

// Config controls transfer behavior.
type Config struct {
	// PacketSize: 128 (SOH framing) or 1024 (STX framing). Default 128.
	PacketSize int
	// Padding fills the final short packet. nil selects SUB (0x1a);
	// otherwise it must be exactly one byte.
	Padding []byte
	// MaxRetries: consecutive NAKs tolerated on one packet before the
	// transfer aborts (default 2 — the third NAK aborts).
	MaxRetries int
	// RecvTimeout: inactivity allowed while a packet awaits its ack
	// before the engine terminates with ErrTimeout.
	//
	// 0 disables the timer. This is useful if the caller manages read
	// deadlines on the transport itself.
	//
	// If Config is nil, RecvTimeout defaults to 5s.
	RecvTimeout time.Duration
	// Logger receives protocol traces at Debug level. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PacketSize == 0 {
		c.PacketSize = PacketSize128
	}
	if c.RecvTimeout < 0 {
		c.RecvTimeout = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Outcome is the engine's synchronous response to one input.
type Outcome struct {
	// Data holds bytes for the caller to transmit to the receiver;
	// empty when the input produced nothing to send.
	Data []byte
	// Done reports that the receiver acknowledged the closing ETB and
	// the transfer completed.
	Done bool
	// Err reports a rejected input or a failed transfer. Only
	// ErrUnexpectedData leaves the engine running.
	Err error
}

// Sender drives the sending side of an XMODEM, XMODEM-CRC, or
// XMODEM-1K transfer. It consumes receiver bytes via Receive and
// returns bytes for the caller to put on the wire; it never performs
// I/O itself. The checksum variant is chosen by the receiver's opening
// byte: NAK for the arithmetic checksum, 'C' for CRC-16.
//
// A mutex serializes receiver input, control calls, and timer expiry,
// so a Sender may be shared across goroutines. Outcomes are produced
// in input order.
type Sender struct {
	mu  sync.Mutex
	cfg Config

	payload []byte
	pad     byte
	logger  *slog.Logger

	state        senderState
	mode         ChecksumMode
	position     int  // payload offset of the outstanding packet
	packetNumber byte // 1-based, wraps mod 256
	sentPackets  int  // distinct packets emitted (retries excluded)
	totalPackets int
	retries      int // consecutive NAKs on the outstanding packet
	cancels      int // consecutive CAN bytes seen

	timer    *time.Timer
	timerGen uint64

	done chan struct{}
	err  error
}

// NewSender creates a sender for payload. The transfer starts when the
// receiver's opening byte (NAK or 'C') arrives via Receive. A nil cfg
// selects all defaults, including the 5-second receive timeout; a
// non-nil cfg with RecvTimeout 0 disables the timer.
func NewSender(payload []byte, cfg *Config) (*Sender, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	if cfg == nil && c.RecvTimeout == 0 {
		c.RecvTimeout = 5 * time.Second
	}

	if c.PacketSize != PacketSize128 && c.PacketSize != PacketSize1K {
		return nil, ErrInvalidPacketSize
	}
	pad := byte(SUB)
	if c.Padding != nil {
		if len(c.Padding) != 1 {
			return nil, ErrInvalidPadding
		}
		pad = c.Padding[0]
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	return &Sender{
		cfg:          c,
		payload:      payload,
		pad:          pad,
		logger:       c.Logger,
		state:        stateInit,
		packetNumber: 1,
		totalPackets: (len(payload) + c.PacketSize - 1) / c.PacketSize,
		done:         make(chan struct{}),
	}, nil
}

// Receive feeds a chunk of receiver bytes to the engine and returns the
// resulting outcome. Only the first byte carries protocol meaning and
// trailing bytes are discarded, except that a leading run of CAN bytes
// counts in full toward the cancel threshold.
func (s *Sender) Receive(chunk []byte) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return Outcome{Err: ErrNoProcess}
	}
	return s.step(chunk)
}

// Progress reports distinct packets emitted so far and the packet
// total. Retries do not count. Returns ErrNoProcess once the engine
// has terminated.
func (s *Sender) Progress() (sent, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return 0, 0, ErrNoProcess
	}
	return s.sentPackets, s.totalPackets, nil
}

// Cancel terminates the engine and returns the two-CAN abort sequence
// for the caller to transmit. The engine does not assume the sequence
// was delivered. Canceling an already-terminated engine is a no-op
// returning nil.
func (s *Sender) Cancel() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return nil
	}
	s.logger.Debug("transfer canceled by sender", "state", s.state)
	s.terminate(nil)
	out := make([]byte, len(cancelSequence))
	copy(out, cancelSequence)
	return out
}

// Stop shuts the engine down cooperatively without emitting anything.
// Idempotent.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return
	}
	s.terminate(nil)
}

// Done is closed when the engine terminates for any reason: completion,
// cancelation, a terminal protocol error, or the receive timeout.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

// Err reports why the engine terminated. It is nil before termination
// and after a clean completion, Stop, or Cancel.
func (s *Sender) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
