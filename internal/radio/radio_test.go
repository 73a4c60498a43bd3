package radio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTiming() Timing {
	return Timing{
		PreTransmit:  time.Millisecond,
		PostTransmit: time.Millisecond,
		Quiet:        time.Millisecond,
		PollInterval: 500 * time.Microsecond,
	}
}

func TestTransmitDeliversToPeer(t *testing.T) {
	a, b := NewTestLink()
	medA := NewMediator(a, fastTiming(), zerolog.Nop())
	medB := NewMediator(b, fastTiming(), zerolog.Nop())
	a.SetNotify(medA.NotifyReceived)
	b.SetNotify(medB.NotifyReceived)

	require.NoError(t, medB.StartReceive())
	require.NoError(t, medA.Transmit([]byte{1, 2, 3}, true))
	assert.False(t, medA.IsTransmitting())

	frame := medB.Poll()
	assert.Equal(t, []byte{1, 2, 3}, frame)

	// The flag was consumed; nothing further is pending.
	assert.Nil(t, medB.Poll())
}

func TestPollWithoutFlag(t *testing.T) {
	a, _ := NewTestLink()
	med := NewMediator(a, fastTiming(), zerolog.Nop())
	assert.Nil(t, med.Poll())
}

func TestWaitFrameTimesOut(t *testing.T) {
	a, _ := NewTestLink()
	med := NewMediator(a, fastTiming(), zerolog.Nop())
	a.SetNotify(med.NotifyReceived)

	start := time.Now()
	frame := med.WaitFrame(10 * time.Millisecond)
	assert.Nil(t, frame)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitFrameReturnsDelivered(t *testing.T) {
	a, b := NewTestLink()
	medA := NewMediator(a, fastTiming(), zerolog.Nop())
	medB := NewMediator(b, fastTiming(), zerolog.Nop())
	a.SetNotify(medA.NotifyReceived)
	b.SetNotify(medB.NotifyReceived)

	go func() {
		time.Sleep(2 * time.Millisecond)
		medA.Transmit([]byte{9, 9}, true)
	}()

	frame := medB.WaitFrame(200 * time.Millisecond)
	assert.Equal(t, []byte{9, 9}, frame)
}

func TestTransmitWithoutReopenLeavesReceiverUnarmed(t *testing.T) {
	a, _ := NewTestLink()
	med := NewMediator(a, fastTiming(), zerolog.Nop())

	require.NoError(t, med.Transmit([]byte{1}, false))
	a.mu.Lock()
	receiving := a.receiving
	a.mu.Unlock()
	assert.False(t, receiving)

	require.NoError(t, med.Transmit([]byte{2}, true))
	a.mu.Lock()
	receiving = a.receiving
	a.mu.Unlock()
	assert.True(t, receiving)

	assert.Len(t, a.SentFrames(), 2)
}
