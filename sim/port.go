// Package sim provides a host software model of a serial peripheral for
// exercising uartq without hardware.
//
// Port models the register interface a uartq.UART drives: a receive data
// register with its "byte available" flag, a transmit data register with its
// "empty" flag, the transmit interrupt enable bit and the receive overrun
// flag. Port also plays the interrupt controller: whenever a condition is
// pending it invokes the attached handler, one invocation at a time, until
// nothing is pending.
package sim

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jangala-dev/tinygo-uartq/internal/syncutil"
	"github.com/jangala-dev/tinygo-uartq/uartq"
)

// ErrRxOverrun is returned by Inject when the receive data register still
// holds an unread byte. The injected byte is lost.
var ErrRxOverrun = errors.New("receive overrun")

// maxBurst bounds handler invocations per Service call. A handler that leaves
// a condition pending (for example by not reading the data register) would
// otherwise be re-entered forever.
const maxBurst = 1 << 16

// Port is a simulated serial peripheral. It implements uartq.Peripheral.
type Port struct {
	mu  syncutil.Mutex // registers
	cpu syncutil.Mutex // held while the handler runs

	// receive
	rdr     byte
	rxne    bool
	overrun bool

	// transmit
	tdr      byte
	txBusy   bool // tdr loaded, byte not yet on the wire
	txDue    time.Time
	txeie    bool
	byteTime time.Duration
	loopback bool

	out []byte
	w   io.Writer

	isr     func()
	wake    chan struct{} // register change
	rxTaken chan struct{} // receive register read
}

var _ uartq.Peripheral = (*Port)(nil)

// NewPort returns an idle port: nothing received, transmit register empty,
// transmit interrupt disabled, no pacing.
func NewPort() *Port {
	return &Port{
		wake:    make(chan struct{}, 1),
		rxTaken: make(chan struct{}, 1),
	}
}

// New returns a UART built from cfg on a fresh Port with the UART's handler
// attached.
func New(cfg uartq.Config) (*uartq.UART, *Port, error) {
	p := NewPort()
	u, err := uartq.New(p, cfg)
	if err != nil {
		return nil, nil, err
	}
	p.Attach(u.HandleInterrupt)
	return u, p, nil
}

// Attach installs the interrupt handler.
func (p *Port) Attach(isr func()) {
	p.cpu.Lock()
	p.isr = isr
	p.cpu.Unlock()
	poke(p.wake)
}

// SetBaudRate paces transmission at 10 bit times per byte (8N1). Zero means a
// loaded byte is on the wire by the next Service.
func (p *Port) SetBaudRate(baud int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if baud <= 0 {
		p.byteTime = 0
		return
	}
	p.byteTime = 10 * time.Second / time.Duration(baud)
}

// SetLoopback connects the transmit line to the receive line.
func (p *Port) SetLoopback(on bool) {
	p.mu.Lock()
	p.loopback = on
	p.mu.Unlock()
}

// SetOutput sends transmitted bytes to w instead of recording them.
func (p *Port) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.w = w
	p.mu.Unlock()
}

// ---------------- register interface ----------------

// RxReady reports that the receive data register holds a byte.
func (p *Port) RxReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rxne
}

// ReadData returns the receive data register and clears RxReady.
func (p *Port) ReadData() byte {
	p.mu.Lock()
	b := p.rdr
	p.rxne = false
	p.mu.Unlock()
	poke(p.rxTaken)
	return b
}

// TxReady reports that the transmit data register is empty.
func (p *Port) TxReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.txBusy
}

// WriteData loads the transmit data register. Writing while it is still full
// replaces the pending byte, as the hardware does.
func (p *Port) WriteData(b byte) {
	p.mu.Lock()
	p.tdr = b
	p.txBusy = true
	p.txDue = time.Now().Add(p.byteTime)
	p.mu.Unlock()
	poke(p.wake)
}

// TxInterruptEnabled reports the transmit interrupt enable bit.
func (p *Port) TxInterruptEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txeie
}

// EnableTxInterrupt sets the transmit interrupt enable bit.
func (p *Port) EnableTxInterrupt() {
	p.mu.Lock()
	p.txeie = true
	p.mu.Unlock()
	poke(p.wake)
}

// DisableTxInterrupt clears the transmit interrupt enable bit.
func (p *Port) DisableTxInterrupt() {
	p.mu.Lock()
	p.txeie = false
	p.mu.Unlock()
}

// ---------------- wire side ----------------

// Inject delivers a byte from the wire into the receive data register.
func (p *Port) Inject(b byte) error {
	p.mu.Lock()
	if p.rxne {
		p.overrun = true
		p.mu.Unlock()
		return ErrRxOverrun
	}
	p.rdr = b
	p.rxne = true
	p.mu.Unlock()
	poke(p.wake)
	return nil
}

// InjectWait delivers b, waiting for the receive data register to be read
// while it is full.
func (p *Port) InjectWait(ctx context.Context, b byte) error {
	for {
		p.mu.Lock()
		if !p.rxne {
			p.rdr = b
			p.rxne = true
			p.mu.Unlock()
			poke(p.wake)
			return nil
		}
		p.mu.Unlock()

		select {
		case <-p.rxTaken:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Overrun reports whether a byte arrived while the receive register was full.
func (p *Port) Overrun() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overrun
}

// Transmitted returns a copy of the bytes sent so far when no output writer
// is set.
func (p *Port) Transmitted() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out...)
}

// ---------------- interrupt controller ----------------

// Pending reports whether the handler has work: a received byte, or an empty
// transmit register with the transmit interrupt enabled.
func (p *Port) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

func (p *Port) pendingLocked() bool {
	return p.rxne || (!p.txBusy && p.txeie)
}

// Service completes a due transmission and runs the handler while an
// interrupt is pending. It returns the number of handler invocations.
func (p *Port) Service() int {
	p.cpu.Lock()
	defer p.cpu.Unlock()
	if p.isr == nil {
		return 0
	}

	n := 0
	for {
		if err := p.shift(); err != nil {
			uartq.Logger(uartq.ComponentSim).Warn("wire write failed", "error", err)
		}
		if !p.Pending() {
			return n
		}
		if n == maxBurst {
			uartq.Logger(uartq.ComponentSim).Warn("interrupt storm", "invocations", n)
			return n
		}
		p.isr()
		n++
	}
}

// Run services interrupts until ctx is done.
func (p *Port) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		p.Service()

		var due <-chan time.Time
		if d, busy := p.untilShift(); busy {
			timer.Reset(d)
			due = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		case <-due:
		}
	}
}

// shift moves a transmitted byte from the data register to the wire once its
// byte time has elapsed.
func (p *Port) shift() error {
	p.mu.Lock()
	if !p.txBusy || time.Now().Before(p.txDue) {
		p.mu.Unlock()
		return nil
	}
	b := p.tdr
	p.txBusy = false
	if p.loopback {
		if p.rxne {
			p.overrun = true
		} else {
			p.rdr = b
			p.rxne = true
		}
	}
	w := p.w
	if w == nil {
		p.out = append(p.out, b)
	}
	p.mu.Unlock()

	if w != nil {
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}

// untilShift returns the time left before the loaded byte leaves the
// transmit register, and whether one is loaded.
func (p *Port) untilShift() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.txBusy {
		return 0, false
	}
	d := time.Until(p.txDue)
	if d < 0 {
		d = 0
	}
	return d, true
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
