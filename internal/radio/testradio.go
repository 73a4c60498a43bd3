package radio

import (
	"sync"
)

// TestDriver is an in-memory Driver used in tests. Two drivers joined with
// NewTestLink form a lossless point-to-point channel: a transmit on one
// side lands in the peer's receive queue and raises its notify hook, the
// same way the hardware ISR raises the mediator's flag.
type TestDriver struct {
	mu        sync.Mutex
	peer      *TestDriver
	rx        [][]byte
	sent      [][]byte
	receiving bool
	notify    func()
}

// NewTestLink returns two linked drivers.
func NewTestLink() (*TestDriver, *TestDriver) {
	a := &TestDriver{}
	b := &TestDriver{}
	a.peer = b
	b.peer = a
	return a, b
}

// SetNotify installs the receive-flag hook, normally the owning mediator's
// NotifyReceived.
func (d *TestDriver) SetNotify(fn func()) {
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}

func (d *TestDriver) Standby() error {
	d.mu.Lock()
	d.receiving = false
	d.mu.Unlock()
	return nil
}

func (d *TestDriver) Transmit(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	d.mu.Lock()
	d.sent = append(d.sent, cp)
	peer := d.peer
	d.mu.Unlock()

	if peer != nil {
		peer.deliver(cp)
	}
	return nil
}

func (d *TestDriver) deliver(frame []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, frame)
	notify := d.notify
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (d *TestDriver) StartReceive() error {
	d.mu.Lock()
	d.receiving = true
	d.mu.Unlock()
	return nil
}

func (d *TestDriver) PacketLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0
	}
	return len(d.rx[0])
}

func (d *TestDriver) ReadData(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0, nil
	}
	frame := d.rx[0]
	d.rx = d.rx[1:]
	n := copy(buf, frame)
	return n, nil
}

// SentFrames returns a copy of everything transmitted so far.
func (d *TestDriver) SentFrames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	copy(out, d.sent)
	return out
}

// Pending reports how many frames are queued for reading.
func (d *TestDriver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx)
}
