package uartq

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a register-level stand-in for a peripheral. Its transmit data
// register is always ready unless txBlocked is set.
type fakeBus struct {
	mu        sync.Mutex
	rx        []byte // bytes waiting to appear in the receive register
	reads     int
	txBlocked bool
	txeie     bool
	enables   int
	written   []byte
}

func (f *fakeBus) RxReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rx) > 0
}

func (f *fakeBus) ReadData() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.rx) == 0 {
		return 0
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b
}

func (f *fakeBus) TxReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.txBlocked
}

func (f *fakeBus) WriteData(b byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b)
}

func (f *fakeBus) TxInterruptEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txeie
}

func (f *fakeBus) EnableTxInterrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txeie = true
	f.enables++
}

func (f *fakeBus) DisableTxInterrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txeie = false
}

func (f *fakeBus) arrive(p ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, p...)
}

func (f *fakeBus) sent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

func (f *fakeBus) enabled() bool { return f.TxInterruptEnabled() }

type countingTrigger struct{ n atomic.Int32 }

func (c *countingTrigger) Pend() { c.n.Add(1) }

func newTestUART(t *testing.T, cfg Config) (*UART, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	u, err := New(bus, cfg)
	require.NoError(t, err)
	return u, bus
}

// receiveAll delivers p one interrupt per byte.
func receiveAll(u *UART, bus *fakeBus, p ...byte) {
	for _, b := range p {
		bus.arrive(b)
		u.HandleInterrupt()
	}
}

func drainRX(u *UART) []byte {
	var got []byte
	for {
		b, ok := u.GetByte()
		if !ok {
			return got
		}
		got = append(got, b)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.ErrorIs(t, err, ErrNilPeripheral)

	cfg := DefaultConfig()
	cfg.QueueSize = 0
	_, err = New(&fakeBus{}, cfg)
	require.ErrorIs(t, err, ErrInvalidQueueSize)

	cfg = DefaultConfig()
	cfg.RxWatermark = cfg.QueueSize + 1
	_, err = New(&fakeBus{}, cfg)
	require.ErrorIs(t, err, ErrInvalidWatermark)

	cfg = Config{QueueSize: 4, RxWatermark: 4, Fullness: ReserveSlot}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidWatermark)

	cfg.RxWatermark = 3
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 512, cfg.QueueSize)
	assert.Equal(t, 11, cfg.RxWatermark)
	assert.Equal(t, FullCapacity, cfg.Fullness)
	require.NoError(t, cfg.Validate())
}

func TestGetByte_NoData(t *testing.T) {
	u, _ := newTestUART(t, DefaultConfig())

	b, ok := u.GetByte()
	assert.False(t, ok)
	assert.Equal(t, byte(0), b)

	_, err := u.ReadByte()
	require.ErrorIs(t, err, ErrBufferEmpty)

	n, err := u.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReceive_QueuesInOrder(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	receiveAll(u, bus, []byte("ABC")...)

	assert.Equal(t, 3, u.Buffered())
	assert.Equal(t, 3, bus.reads, "each interrupt reads the data register once")

	buf := make([]byte, 8)
	n, err := u.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(buf[:n]))

	select {
	case <-u.Readable():
	default:
		t.Fatal("expected a Readable notification")
	}
}

func TestPutByte_PrimesAndDrains(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	require.False(t, u.Primed())
	require.False(t, bus.enabled())

	u.PutByte('x')
	assert.True(t, u.Primed())
	assert.True(t, bus.enabled())
	assert.Equal(t, 1, u.TxQueued())

	// First interrupt sends the byte.
	u.HandleInterrupt()
	assert.Equal(t, []byte("x"), bus.sent())
	assert.True(t, u.Primed())

	// Next one finds the queue empty and disarms.
	u.HandleInterrupt()
	assert.False(t, u.Primed())
	assert.False(t, bus.enabled())
	assert.True(t, u.Drained())
	assert.Equal(t, []byte("x"), bus.sent())
}

func TestPutByte_ArmsOncePerIdlePeriod(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	_, err := u.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 1, bus.enables)

	for !u.Drained() {
		u.HandleInterrupt()
	}
	assert.Equal(t, []byte("abc"), bus.sent())

	require.NoError(t, u.WriteByte('d'))
	assert.Equal(t, 2, bus.enables)
}

func TestHandleInterrupt_IgnoresTxReadyWhileDisabled(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	// Queue a byte without arming, as if the kick had not happened yet.
	require.True(t, u.tx.Enqueue('q'))

	u.HandleInterrupt()
	assert.Empty(t, bus.sent())
	assert.Equal(t, 1, u.TxQueued())
	assert.False(t, u.Primed())
}

func TestHandleInterrupt_WaitsForTxRegister(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	bus.txBlocked = true
	u.PutByte('z')

	u.HandleInterrupt()
	assert.Empty(t, bus.sent())
	assert.True(t, u.Primed())

	bus.mu.Lock()
	bus.txBlocked = false
	bus.mu.Unlock()
	u.HandleInterrupt()
	assert.Equal(t, []byte("z"), bus.sent())
}

func TestHandleInterrupt_BothConditionsInOneCall(t *testing.T) {
	u, bus := newTestUART(t, DefaultConfig())
	u.PutByte('t')
	bus.arrive('r')

	u.HandleInterrupt()

	b, ok := u.GetByte()
	require.True(t, ok)
	assert.Equal(t, byte('r'), b)
	assert.Equal(t, []byte("t"), bus.sent())
}

func TestReceive_OverflowDropsByte(t *testing.T) {
	u, bus := newTestUART(t, Config{QueueSize: 4})
	receiveAll(u, bus, []byte("abcd")...)
	require.False(t, u.Overflow())

	bus.arrive('e')
	u.HandleInterrupt()

	assert.True(t, u.Overflow())
	assert.Equal(t, uint32(1), u.Dropped())
	assert.False(t, bus.RxReady(), "the data register is still read")
	assert.Equal(t, 4, u.Buffered())

	// Sticky until cleared, even after space frees up.
	assert.Equal(t, []byte("abcd"), drainRX(u))
	receiveAll(u, bus, 'f')
	assert.True(t, u.Overflow())

	assert.Equal(t, uint32(1), u.ClearOverflow())
	assert.False(t, u.Overflow())
	assert.Zero(t, u.Dropped())
	assert.Equal(t, []byte("f"), drainRX(u))
}

func TestReceive_BacklogOncePerCrossing(t *testing.T) {
	trig := &countingTrigger{}
	cfg := DefaultConfig()
	cfg.QueueSize = 32
	cfg.Backlog = trig
	u, bus := newTestUART(t, cfg)

	for i := 0; i < 10; i++ {
		receiveAll(u, bus, byte(i))
	}
	assert.Zero(t, trig.n.Load())

	receiveAll(u, bus, 10)
	assert.Equal(t, int32(1), trig.n.Load())
	select {
	case <-u.Backlog():
	default:
		t.Fatal("expected a Backlog notification")
	}

	// Staying above the watermark does not raise again.
	for i := 0; i < 5; i++ {
		receiveAll(u, bus, byte(i))
	}
	assert.Equal(t, int32(1), trig.n.Load())
	select {
	case <-u.Backlog():
		t.Fatal("unexpected second Backlog notification")
	default:
	}

	// Drop below and cross again.
	for i := 0; i < 6; i++ {
		_, ok := u.GetByte()
		require.True(t, ok)
	}
	require.Equal(t, 10, u.Buffered())
	receiveAll(u, bus, 0xFF)
	assert.Equal(t, int32(2), trig.n.Load())
}

func TestReceive_BacklogWithInterleavedReads(t *testing.T) {
	trig := &countingTrigger{}
	u, bus := newTestUART(t, Config{QueueSize: 8, RxWatermark: 3, Backlog: trig})

	receiveAll(u, bus, 'a', 'b')
	_, _ = u.GetByte() // 1 queued
	receiveAll(u, bus, 'c')
	assert.Zero(t, trig.n.Load())

	receiveAll(u, bus, 'd') // 3
	assert.Equal(t, int32(1), trig.n.Load())

	_, _ = u.GetByte()
	receiveAll(u, bus, 'e') // back to 3
	assert.Equal(t, int32(2), trig.n.Load())

	receiveAll(u, bus, 'f') // 4, still above
	assert.Equal(t, int32(2), trig.n.Load())
	assert.Equal(t, []byte("cdef"), drainRX(u))
}

// Foreground reads run in parallel with the handler. Whatever the
// interleaving, the handler raises the backlog exactly when its own enqueue
// reached the watermark; once the reader stops, the next climb raises it
// exactly once more.
func TestReceive_BacklogRaceWithReader(t *testing.T) {
	trig := &countingTrigger{}
	u, bus := newTestUART(t, Config{QueueSize: 64, RxWatermark: 32, Backlog: trig})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				u.GetByte()
				runtime.Gosched()
			}
		}
	}()
	for i := 0; i < 10000 && trig.n.Load() == 0; i++ {
		receiveAll(u, bus, byte(i))
	}
	close(stop)
	<-done
	before := trig.n.Load()

	drainRX(u)
	for i := 0; i < 40; i++ {
		receiveAll(u, bus, byte(i))
	}
	assert.Equal(t, before+1, trig.n.Load(), "a stopped reader sees one crossing")
}

func TestReceive_WatermarkDisabled(t *testing.T) {
	trig := &countingTrigger{}
	u, bus := newTestUART(t, Config{QueueSize: 16, Backlog: trig})
	for i := 0; i < 16; i++ {
		receiveAll(u, bus, byte(i))
	}
	assert.Zero(t, trig.n.Load())
}

func TestReceive_FullQueueDoesNotRaiseBacklog(t *testing.T) {
	trig := &countingTrigger{}
	u, bus := newTestUART(t, Config{QueueSize: 4, RxWatermark: 4, Backlog: trig})
	receiveAll(u, bus, 1, 2, 3, 4)
	require.Equal(t, int32(1), trig.n.Load())

	receiveAll(u, bus, 5, 6)
	assert.True(t, u.Overflow())
	assert.Equal(t, int32(1), trig.n.Load())
}

func TestPutByte_BusyWaitsOnFullQueue(t *testing.T) {
	u, bus := newTestUART(t, Config{QueueSize: 2})
	require.Equal(t, 2, u.TryWrite([]byte("abc")))
	assert.False(t, u.TryPutByte('c'))
	assert.Zero(t, u.TxFree())

	done := make(chan struct{})
	go func() {
		defer close(done)
		u.PutByte('c')
	}()

	select {
	case <-done:
		t.Fatal("PutByte returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	u.HandleInterrupt() // sends 'a', frees a slot

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for PutByte")
	}

	for !u.Drained() {
		u.HandleInterrupt()
	}
	assert.Equal(t, []byte("abc"), bus.sent())
}

// The handler runs concurrently with a foreground writer; every byte must be
// sent exactly once and in order, and the transmitter must end up Idle.
func TestTransmit_ConcurrentWithHandler(t *testing.T) {
	u, bus := newTestUART(t, Config{QueueSize: 8})
	want := make([]byte, 5000)
	for i := range want {
		want[i] = byte(i*7 + 3)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				u.HandleInterrupt()
				runtime.Gosched()
			}
		}
	}()

	for i := 0; i < len(want); i += 100 {
		_, err := u.Write(want[i : i+100])
		require.NoError(t, err)
	}

	require.Eventually(t, u.Drained, 2*time.Second, time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Equal(t, want, bus.sent())
	assert.False(t, bus.enabled())
}
