package xmodem

import (
	"fmt"
	"time"
)

type senderState int

const (
	stateInit       senderState = iota // awaiting the receiver's mode byte
	stateSending                       // packet outstanding, awaiting ACK/NAK
	stateSentEOT                       // EOT sent, awaiting ACK
	stateSentETB                       // ETB sent, awaiting final ACK
	stateTerminated                    // terminal
)

func (st senderState) String() string {
	switch st {
	case stateInit:
		return "init"
	case stateSending:
		return "sending"
	case stateSentEOT:
		return "sent-eot"
	case stateSentETB:
		return "sent-etb"
	case stateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// step dispatches one receiver input. Callers hold s.mu and have
// already rejected terminated engines.
func (s *Sender) step(chunk []byte) Outcome {
	if len(chunk) == 0 {
		return Outcome{Err: fmt.Errorf("%w: empty input", ErrUnexpectedData)}
	}

	b := chunk[0]
	if b == CAN {
		// Cancel matching is byte-stream-aligned: every CAN in the
		// chunk's leading run counts, so <CAN,CAN> arriving in one
		// chunk aborts the same as two single-byte chunks.
		run := 1
		for run < len(chunk) && chunk[run] == CAN {
			run++
		}
		s.cancels += run
		if s.cancels >= 2 {
			s.logger.Debug("canceled by receiver", "state", s.state)
			s.terminate(ErrCanceled)
			return Outcome{Err: ErrCanceled}
		}
		return Outcome{}
	}
	s.cancels = 0

	s.logger.Debug("recv", "byte", controlName(b), "state", s.state)

	switch s.state {
	case stateInit:
		switch b {
		case NAK:
			return s.beginTransfer(ModeChecksum)
		case CRC:
			return s.beginTransfer(ModeCRC)
		default:
			return s.unexpected(b)
		}

	case stateSending:
		switch b {
		case ACK:
			return s.advance()
		case NAK:
			return s.retry()
		case CRC:
			// Receivers repeat 'C' while waiting for the first packet.
			return Outcome{}
		default:
			return s.unexpected(b)
		}

	case stateSentEOT:
		switch b {
		case ACK:
			s.state = stateSentETB
			return Outcome{Data: []byte{ETB}}
		case CRC:
			return Outcome{}
		default:
			return s.unexpected(b)
		}

	case stateSentETB:
		switch b {
		case ACK:
			s.logger.Debug("transfer complete", "packets", s.sentPackets)
			s.terminate(nil)
			return Outcome{Done: true}
		case CRC:
			return Outcome{}
		default:
			return s.unexpected(b)
		}
	}
	return s.unexpected(b)
}

// beginTransfer records the receiver's checksum mode and emits packet 1.
func (s *Sender) beginTransfer(mode ChecksumMode) Outcome {
	s.mode = mode
	s.sentPackets = 1
	s.logger.Debug("transfer started", "mode", mode,
		"packetSize", s.cfg.PacketSize, "packets", s.totalPackets)
	pkt := s.currentPacket()
	s.enterSending()
	return Outcome{Data: pkt}
}

// advance handles an ACK in stateSending: either the whole payload is
// acknowledged (emit EOT) or the next packet goes out.
func (s *Sender) advance() Outcome {
	if s.position+s.cfg.PacketSize >= len(s.payload) {
		// Final packet acknowledged.
		s.retries = 0
		s.stopTimer()
		s.state = stateSentEOT
		return Outcome{Data: []byte{EOT}}
	}
	s.position += s.cfg.PacketSize
	s.packetNumber++ // wraps mod 256
	s.sentPackets++
	pkt := s.currentPacket()
	s.enterSending()
	return Outcome{Data: pkt}
}

// retry re-emits the outstanding packet after a NAK, bounded by
// MaxRetries. Unlike an ACK advance it does not re-enter stateSending:
// the receive timer keeps running and the retry count carries forward.
func (s *Sender) retry() Outcome {
	if s.retries >= s.cfg.MaxRetries {
		s.logger.Warn("retry limit exceeded", "packet", s.packetNumber, "retries", s.retries)
		s.terminate(ErrMaxRetries)
		return Outcome{Err: ErrMaxRetries}
	}
	s.retries++
	s.logger.Debug("resending packet", "packet", s.packetNumber, "retry", s.retries)
	return Outcome{Data: s.currentPacket()}
}

// currentPacket frames the outstanding packet. The builder is pure, so
// retries reproduce identical bytes.
func (s *Sender) currentPacket() []byte {
	end := s.position + s.cfg.PacketSize
	if end > len(s.payload) {
		end = len(s.payload)
	}
	return buildPacket(s.packetNumber, s.payload[s.position:end], packetOptions{
		size: s.cfg.PacketSize,
		pad:  s.pad,
		mode: s.mode,
	})
}

// enterSending applies the entry side effects of stateSending: the
// retry and cancel counters clear and the receive timer rearms. NAK
// retries must not come through here.
func (s *Sender) enterSending() {
	s.state = stateSending
	s.retries = 0
	s.cancels = 0
	s.armTimer()
}

func (s *Sender) unexpected(b byte) Outcome {
	return Outcome{Err: fmt.Errorf("%w: 0x%02x in state %s", ErrUnexpectedData, b, s.state)}
}

// armTimer (re)starts the receive timer. The generation counter keeps
// a stale expiry from firing into a rearmed engine.
func (s *Sender) armTimer() {
	if s.cfg.RecvTimeout <= 0 {
		return
	}
	s.timerGen++
	gen := s.timerGen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.RecvTimeout, func() {
		s.timedOut(gen)
	})
}

func (s *Sender) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Sender) timedOut(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen || s.state != stateSending {
		return
	}
	s.logger.Warn("receive timeout", "packet", s.packetNumber, "timeout", s.cfg.RecvTimeout)
	s.terminate(ErrTimeout)
}

// terminate moves the engine to its terminal state and publishes err
// through Done. Callers hold s.mu and guarantee the engine is live.
func (s *Sender) terminate(err error) {
	s.state = stateTerminated
	s.stopTimer()
	s.err = err
	close(s.done)
}
