package radio

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// UDPDriver is a Driver that carries frames over UDP datagrams, one frame
// per datagram. It stands in for the RF hardware on bench and simulation
// setups; the mediator drives it exactly like a real radio.
type UDPDriver struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	log  zerolog.Logger

	mu        sync.Mutex
	rx        [][]byte
	receiving bool
	notify    func()
}

// NewUDPDriver binds bindAddr and targets transmits at peerAddr.
func NewUDPDriver(bindAddr, peerAddr string, log zerolog.Logger) (*UDPDriver, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPDriver{conn: conn, peer: peer, log: log}, nil
}

// SetNotify installs the receive-flag hook, normally the owning
// mediator's NotifyReceived.
func (d *UDPDriver) SetNotify(fn func()) {
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}

// Start runs the datagram read loop until ctx is cancelled. Frames that
// arrive while the driver is not in receive mode are dropped, matching the
// half-duplex hardware.
func (d *UDPDriver) Start(ctx context.Context) error {
	d.log.Info().Str("addr", d.conn.LocalAddr().String()).Msg("udp radio listening")

	go func() {
		<-ctx.Done()
		d.conn.Close()
	}()

	buf := make([]byte, MaxFrameSize)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error().Err(err).Msg("udp read error")
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		d.mu.Lock()
		if !d.receiving {
			d.mu.Unlock()
			d.log.Debug().Int("len", n).Msg("frame arrived while not receiving, dropped")
			continue
		}
		d.rx = append(d.rx, frame)
		notify := d.notify
		d.mu.Unlock()

		if notify != nil {
			notify()
		}
	}
}

func (d *UDPDriver) Standby() error {
	d.mu.Lock()
	d.receiving = false
	d.mu.Unlock()
	return nil
}

func (d *UDPDriver) Transmit(data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d", len(data))
	}
	_, err := d.conn.WriteToUDP(data, d.peer)
	return err
}

func (d *UDPDriver) StartReceive() error {
	d.mu.Lock()
	d.receiving = true
	d.mu.Unlock()
	return nil
}

func (d *UDPDriver) PacketLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0
	}
	return len(d.rx[0])
}

func (d *UDPDriver) ReadData(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0, nil
	}
	frame := d.rx[0]
	d.rx = d.rx[1:]
	return copy(buf, frame), nil
}
