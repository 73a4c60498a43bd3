// Package radio mediates all access to the physical-layer collaborator.
// The mediator is the driver's single owner: it serialises the
// standby/transmit/receive transitions and turns the interrupt-raised
// receive flag into a polled frame source.
package radio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// MaxFrameSize bounds a single received frame. Receive buffers are sized
// once from this, not per frame.
const MaxFrameSize = 255

// ErrBusy is returned when a transmit is requested while another is in
// flight. The link is half duplex; transmits never overlap.
var ErrBusy = errors.New("radio busy transmitting")

// Driver is the physical-layer capability set. Implementations raise the
// mediator's receive flag from interrupt context via NotifyReceived.
type Driver interface {
	Standby() error
	Transmit(data []byte) error
	StartReceive() error
	PacketLength() int
	ReadData(buf []byte) (int, error)
}

// Timing holds the deliberate settle delays around radio state
// transitions. They may be tuned but not removed.
type Timing struct {
	PreTransmit  time.Duration // standby -> transmit settle
	PostTransmit time.Duration // transmit -> receive settle
	Quiet        time.Duration // pause between consecutive file transmissions
	PollInterval time.Duration // receive-flag poll cadence
}

// DefaultTiming matches the hardware the stack was tuned on.
func DefaultTiming() Timing {
	return Timing{
		PreTransmit:  5 * time.Millisecond,
		PostTransmit: 10 * time.Millisecond,
		Quiet:        500 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	}
}

// Mediator owns the driver. All transmit/receive transitions go through it.
type Mediator struct {
	driver       Driver
	timing       Timing
	transmitting atomic.Bool
	received     atomic.Bool
	buf          [MaxFrameSize]byte
	log          zerolog.Logger
}

// NewMediator wraps driver. The mediator takes exclusive ownership.
func NewMediator(driver Driver, timing Timing, log zerolog.Logger) *Mediator {
	return &Mediator{driver: driver, timing: timing, log: log}
}

// NotifyReceived raises the receive flag. Safe to call from the driver's
// interrupt context. A frame arriving while a transmit is in progress may
// be lost; the half-duplex design accepts that.
func (m *Mediator) NotifyReceived() {
	m.received.Store(true)
}

// IsTransmitting reports whether a transmit sequence is in progress.
func (m *Mediator) IsTransmitting() bool {
	return m.transmitting.Load()
}

// Transmit runs the full transmit sequence: standby, settle, transmit,
// settle, and — when reopenRX is set — re-arm receive. No new transmit may
// start until the sequence completes.
func (m *Mediator) Transmit(data []byte, reopenRX bool) error {
	if !m.transmitting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.transmitting.Store(false)

	if err := m.driver.Standby(); err != nil {
		return fmt.Errorf("radio standby: %w", err)
	}
	time.Sleep(m.timing.PreTransmit)

	if err := m.driver.Transmit(data); err != nil {
		return fmt.Errorf("radio transmit: %w", err)
	}
	time.Sleep(m.timing.PostTransmit)

	if reopenRX {
		if err := m.driver.StartReceive(); err != nil {
			return fmt.Errorf("radio start receive: %w", err)
		}
	}
	return nil
}

// StartReceive arms the receiver directly.
func (m *Mediator) StartReceive() error {
	return m.driver.StartReceive()
}

// Poll consumes the receive flag and reads the pending frame, if any.
// Returns nil when no frame is waiting. The returned slice is a copy.
func (m *Mediator) Poll() []byte {
	if !m.received.CompareAndSwap(true, false) {
		return nil
	}

	n := m.driver.PacketLength()
	if n <= 0 || n > MaxFrameSize {
		m.log.Debug().Int("len", n).Msg("dropping frame with bad length")
		return nil
	}

	read, err := m.driver.ReadData(m.buf[:n])
	if err != nil {
		m.log.Warn().Err(err).Msg("radio read failed")
		return nil
	}

	frame := make([]byte, read)
	copy(frame, m.buf[:read])
	return frame
}

// WaitFrame polls for a frame until timeout. Used for the per-attempt join
// reply window.
func (m *Mediator) WaitFrame(timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	for {
		if frame := m.Poll(); frame != nil {
			return frame
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(m.timing.PollInterval)
	}
}

// QuietPeriod sleeps the configured inter-file quiet time.
func (m *Mediator) QuietPeriod() {
	time.Sleep(m.timing.Quiet)
}
