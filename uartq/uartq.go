// uartq/uartq.go

// Package uartq provides an interrupt-driven serial byte transport. Received
// bytes are queued by the interrupt handler until foreground code takes them;
// bytes written by foreground code are queued until the interrupt handler can
// hand them to the peripheral. The transmit-ready interrupt is armed only while
// bytes remain to be sent.
//
// Each direction uses a single-producer/single-consumer Queue, so the handler
// and foreground code share state without locks:
//
//	peripheral -> HandleInterrupt -> RX queue -> GetByte
//	PutByte -> TX queue -> HandleInterrupt -> peripheral
package uartq

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// UART couples one Peripheral with its receive and transmit queues.
//
// Invariants (TX path):
//   - primed is true exactly while this driver has the transmit-ready
//     interrupt enabled.
//   - Foreground code moves primed Idle->Primed (arm); the handler moves it
//     Primed->Idle when it finds the TX queue empty.
//
// Signalling:
//   - notify, txNotify and backlog are coalesced; receivers must re-check state.
type UART struct {
	Bus Peripheral

	rx *Queue // written by the handler, read by foreground code
	tx *Queue // written by foreground code, read by the handler

	primed   atomic.Bool
	overflow atomic.Bool   // sticky, cleared by ClearOverflow
	dropped  atomic.Uint32 // bytes lost to RX overflow

	watermark int
	deferred  Trigger

	notify   chan struct{} // RX progress
	txNotify chan struct{} // TX progress or drain
	backlog  chan struct{} // RX watermark crossed

	stats Stats
}

// New returns a UART driving bus with queues built from cfg. The caller must
// route the peripheral's interrupt to HandleInterrupt.
func New(bus Peripheral, cfg Config) (*UART, error) {
	u := &UART{}
	if err := u.init(bus, cfg); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UART) init(bus Peripheral, cfg Config) error {
	if bus == nil {
		return ErrNilPeripheral
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("uart config: %w", err)
	}
	rx, err := NewQueue(cfg.QueueSize, cfg.Fullness)
	if err != nil {
		return fmt.Errorf("rx queue: %w", err)
	}
	tx, err := NewQueue(cfg.QueueSize, cfg.Fullness)
	if err != nil {
		return fmt.Errorf("tx queue: %w", err)
	}

	u.Bus = bus
	u.rx = rx
	u.tx = tx
	u.watermark = cfg.RxWatermark
	u.deferred = cfg.Backlog
	u.notify = make(chan struct{}, 1)
	u.txNotify = make(chan struct{}, 1)
	u.backlog = make(chan struct{}, 1)

	Logger(ComponentUART).Debug("uart initialised",
		"queue_size", cfg.QueueSize,
		"capacity", rx.Cap(),
		"rx_watermark", cfg.RxWatermark)
	return nil
}

// ---------------- receive side ----------------

// GetByte takes one received byte. The second result is false when nothing
// has been received; GetByte never waits.
func (u *UART) GetByte() (byte, bool) {
	return u.rx.Dequeue()
}

// ReadByte implements io.ByteReader. It returns ErrBufferEmpty when no byte
// is queued.
func (u *UART) ReadByte() (byte, error) {
	b, ok := u.rx.Dequeue()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return b, nil
}

// TryRead copies up to len(p) queued bytes into p and returns how many it
// copied. A return value of 0 means "no data now".
func (u *UART) TryRead(p []byte) int {
	n := 0
	for n < len(p) {
		b, ok := u.rx.Dequeue()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n
}

// Read implements io.Reader with machine.UART semantics: it never waits and
// returns 0, nil when nothing is queued.
func (u *UART) Read(p []byte) (int, error) {
	return u.TryRead(p), nil
}

// Buffered returns the number of received bytes waiting in the RX queue.
func (u *UART) Buffered() int { return u.rx.Len() }

// Overflow reports whether a received byte has been dropped because the RX
// queue was full. The flag stays set until ClearOverflow.
func (u *UART) Overflow() bool { return u.overflow.Load() }

// Dropped returns the number of received bytes lost since the last
// ClearOverflow.
func (u *UART) Dropped() uint32 { return u.dropped.Load() }

// ClearOverflow resets the overflow flag and returns the number of bytes
// dropped since the previous call.
func (u *UART) ClearOverflow() uint32 {
	was := u.overflow.Swap(false)
	n := u.dropped.Swap(0)
	if was {
		Logger(ComponentUART).Warn("receive overflow cleared", "dropped", n)
	}
	return n
}

// ---------------- transmit side ----------------

// PutByte queues b for transmission. While the TX queue is full it keeps
// retrying, arming the transmit interrupt and yielding between attempts, so
// it does not return until the byte is accepted. If the peripheral never
// drains, PutByte never returns.
func (u *UART) PutByte(b byte) {
	for !u.tx.Enqueue(b) {
		u.arm()
		u.dbgPutSpin()
		runtime.Gosched()
	}
	u.arm()
}

// TryPutByte queues b if there is room and reports whether it did.
func (u *UART) TryPutByte(b byte) bool {
	ok := u.tx.Enqueue(b)
	u.arm()
	return ok
}

// WriteByte implements io.ByteWriter with PutByte semantics.
func (u *UART) WriteByte(c byte) error {
	u.PutByte(c)
	return nil
}

// Write implements io.Writer. It returns once every byte of p has been queued;
// it does not wait for the bytes to leave the peripheral.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		u.PutByte(b)
	}
	return len(p), nil
}

// TryWrite queues as much of p as fits without waiting and returns the number
// of bytes queued.
func (u *UART) TryWrite(p []byte) int {
	n := 0
	for n < len(p) && u.tx.Enqueue(p[n]) {
		n++
	}
	u.arm()
	return n
}

// TxQueued returns the number of bytes waiting in the TX queue.
func (u *UART) TxQueued() int { return u.tx.Len() }

// TxFree returns the remaining space in the TX queue in bytes.
func (u *UART) TxFree() int { return u.tx.Free() }

// Primed reports whether the transmit-ready interrupt is armed.
func (u *UART) Primed() bool { return u.primed.Load() }

// Drained reports whether every queued byte has been handed to the peripheral
// and the transmit interrupt has been disarmed.
func (u *UART) Drained() bool {
	return u.tx.IsEmpty() && !u.primed.Load()
}

// arm moves the transmitter Idle->Primed and enables the transmit-ready
// interrupt. It is a no-op when already primed.
func (u *UART) arm() {
	if u.primed.CompareAndSwap(false, true) {
		u.Bus.EnableTxInterrupt()
		u.dbgArm()
	}
}

// ---------------- notifications ----------------

// Readable returns a coalesced notification sent whenever the handler queues
// a received byte.
func (u *UART) Readable() <-chan struct{} { return u.notify }

// Writable returns a coalesced notification sent whenever the handler moves a
// byte to the peripheral or disarms an empty transmitter.
func (u *UART) Writable() <-chan struct{} { return u.txNotify }

// Backlog returns a coalesced notification sent once each time RX occupancy
// reaches the configured watermark.
func (u *UART) Backlog() <-chan struct{} { return u.backlog }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
