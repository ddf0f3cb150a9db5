// uartq/rp2_pl011.go
//go:build rp2040 || rp2350

package uartq

import (
	"device/arm"
	"device/rp"
	"machine"
	"runtime/interrupt"
)

// PL011 is the Peripheral view of one RP2040/RP2350 PL011 instance. The
// FIFOs are left disabled so that each data register access moves exactly
// one byte, matching the one-byte-per-interrupt model of HandleInterrupt.
type PL011 struct {
	Bus *rp.UART0_Type
	IRQ uint32

	baud uint32 // rate produced by the programmed divisors
}

var _ Peripheral = (*PL011)(nil)

// RxReady reports RXFE==0.
func (p *PL011) RxReady() bool {
	return !p.Bus.UARTFR.HasBits(rp.UART0_UARTFR_RXFE)
}

// ReadData reads DR. Reading clears the RX interrupt and the per-byte error
// flags; errored bytes are still returned.
func (p *PL011) ReadData() byte {
	return byte(p.Bus.UARTDR.Get() & 0xFF)
}

// TxReady reports TXFF==0.
func (p *PL011) TxReady() bool {
	return !p.Bus.UARTFR.HasBits(rp.UART0_UARTFR_TXFF)
}

// WriteData loads DR and clears the TX interrupt.
func (p *PL011) WriteData(b byte) {
	p.Bus.UARTDR.Set(uint32(b))
	p.Bus.UARTICR.Set(rp.UART0_UARTICR_TXIC)
}

// TxInterruptEnabled reports IMSC.TXIM.
func (p *PL011) TxInterruptEnabled() bool {
	return p.Bus.UARTIMSC.HasBits(rp.UART0_UARTIMSC_TXIM)
}

// EnableTxInterrupt unmasks TXIM. PL011 raises TXRIS only on a level
// transition, so when the holding register is already empty the IRQ is pended
// in the NVIC to get the handler to run.
func (p *PL011) EnableTxInterrupt() {
	p.Bus.UARTIMSC.SetBits(rp.UART0_UARTIMSC_TXIM)
	if p.TxReady() {
		arm.NVIC.ISPR[p.IRQ>>5].Set(1 << (p.IRQ & 0x1F))
	}
}

// DisableTxInterrupt masks TXIM and clears any pending TX interrupt.
func (p *PL011) DisableTxInterrupt() {
	p.Bus.UARTIMSC.ClearBits(rp.UART0_UARTIMSC_TXIM)
	p.Bus.UARTICR.Set(rp.UART0_UARTICR_TXIC)
}

// Configure brings the PL011 out of reset as an 8N1 line at cfg.BaudRate
// (115200 if zero) on cfg's pins, or the board defaults when neither pin is
// given. Only the receive interrupt is unmasked; the transmit kick unmasks
// TXIM when there is something to send.
func (p *PL011) Configure(cfg machine.UARTConfig) error {
	lcr, err := pl011LineControl(8, 1, ParityNone)
	if err != nil {
		return err
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.TX == machine.NoPin && cfg.RX == machine.NoPin {
		cfg.TX, cfg.RX = machine.UART_TX_PIN, machine.UART_RX_PIN
	}

	p.reset()
	p.Bus.UARTCR.Set(0)
	for _, pin := range [...]machine.Pin{cfg.TX, cfg.RX} {
		if pin != machine.NoPin {
			pin.Configure(machine.PinConfig{Mode: machine.PinUART})
		}
	}

	p.SetBaudRate(cfg.BaudRate)
	p.Bus.UARTLCR_H.Set(lcr)

	// Clear pending interrupts and sticky errors before enabling.
	p.Bus.UARTICR.Set(0x7FF)
	for p.RxReady() {
		_ = p.Bus.UARTDR.Get()
	}
	p.Bus.UARTRSR.Set(0)

	p.Bus.UARTCR.Set(rp.UART0_UARTCR_UARTEN | rp.UART0_UARTCR_RXE | rp.UART0_UARTCR_TXE)
	p.Bus.UARTIMSC.Set(rp.UART0_UARTIMSC_RXIM)
	return nil
}

// SetBaudRate programs the divisors for br. The new divisors take effect on
// the next UARTLCR_H write, so the current value is written back.
func (p *PL011) SetBaudRate(br uint32) {
	clock := machine.CPUFrequency()
	ibrd, fbrd := pl011Divisors(clock, br)
	p.Bus.UARTIBRD.Set(ibrd)
	p.Bus.UARTFBRD.Set(fbrd)
	p.Bus.UARTLCR_H.Set(p.Bus.UARTLCR_H.Get())
	p.baud = pl011Rate(clock, ibrd, fbrd)
}

// BaudRate returns the line rate the programmed divisors produce, which can
// differ slightly from the requested one.
func (p *PL011) BaudRate() uint32 { return p.baud }

// SetFormat replaces the frame format. The FIFOs stay disabled.
func (p *PL011) SetFormat(databits, stopbits uint8, parity UARTParity) error {
	lcr, err := pl011LineControl(databits, stopbits, parity)
	if err != nil {
		return err
	}
	p.Bus.UARTLCR_H.Set(lcr)
	return nil
}

// reset pulses the block's bit in the RESETS controller.
func (p *PL011) reset() {
	bit := uint32(rp.RESETS_RESET_UART0)
	if p.Bus == rp.UART1 {
		bit = rp.RESETS_RESET_UART1
	}
	rp.RESETS.RESET.SetBits(bit)
	rp.RESETS.RESET.ClearBits(bit)
	for !rp.RESETS.RESET_DONE.HasBits(bit) {
	}
}

// NVICTrigger pends a spare NVIC interrupt line from software. The line clears
// itself when its handler is entered.
type NVICTrigger struct {
	IRQ uint32
}

// Pend sets the line's pending bit.
func (t NVICTrigger) Pend() {
	arm.NVIC.ISPR[t.IRQ>>5].Set(1 << (t.IRQ & 0x1F))
}

// handleInterrupt adapts HandleInterrupt to the runtime/interrupt signature.
func (u *UART) handleInterrupt(interrupt.Interrupt) {
	u.HandleInterrupt()
}
