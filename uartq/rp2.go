// uartq/rp2.go

//go:build rp2040 || rp2350

package uartq

import (
	"device/rp"
	"runtime/interrupt"
)

// UART on the RP2040/RP2350
var (
	UART0  = &_UART0
	_UART0 UART
	PL0    = &PL011{Bus: rp.UART0, IRQ: rp.IRQ_UART0_IRQ}

	UART1  = &_UART1
	_UART1 UART
	PL1    = &PL011{Bus: rp.UART1, IRQ: rp.IRQ_UART1_IRQ}
)

func init() {
	// DefaultConfig always validates.
	_ = _UART0.init(PL0, DefaultConfig())
	_ = _UART1.init(PL1, DefaultConfig())

	irq0 := interrupt.New(rp.IRQ_UART0_IRQ, _UART0.handleInterrupt)
	irq0.SetPriority(0x80)
	irq0.Enable()
	irq1 := interrupt.New(rp.IRQ_UART1_IRQ, _UART1.handleInterrupt)
	irq1.SetPriority(0x80)
	irq1.Enable()
}
