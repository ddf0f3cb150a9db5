package uartq

// Peripheral is the register-level view of one serial peripheral that the
// interrupt handler drives. Only HandleInterrupt and the transmit kick call it.
type Peripheral interface {
	// RxReady reports that a received byte is waiting in the data register.
	RxReady() bool
	// ReadData reads the received byte. The read clears RxReady; a handler
	// that skips it will be re-entered forever.
	ReadData() byte

	// TxReady reports that the transmit data register can take a byte. Some
	// peripherals report this even while the transmit interrupt is masked.
	TxReady() bool
	// WriteData loads the transmit data register, clearing TxReady until the
	// byte has moved to the shifter.
	WriteData(b byte)

	// TxInterruptEnabled reports whether TxReady raises an interrupt.
	TxInterruptEnabled() bool
	EnableTxInterrupt()
	DisableTxInterrupt()
}

// Trigger is a software-triggerable interrupt line used to hand receive
// backlog to deferred processing. Pend is called from the interrupt handler
// and must not block. The line is expected to clear itself once serviced.
type Trigger interface {
	Pend()
}
