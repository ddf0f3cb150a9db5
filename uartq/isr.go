// uartq/isr.go

package uartq

// HandleInterrupt services the peripheral. It must be installed as the
// peripheral's interrupt handler and must not run concurrently with itself.
//
// RX: when a byte is ready, read it (the read clears the condition) and queue
// it; a full queue drops the byte and sets the sticky overflow flag. Raise the
// backlog signal once when RX occupancy reaches the watermark.
//
// TX: only when the data register is ready and the transmit interrupt is
// enabled. Move one queued byte to the peripheral, or, when the queue is
// empty, disable the interrupt and return to Idle until the next kick.
func (u *UART) HandleInterrupt() {
	u.dbgISR()

	if u.Bus.RxReady() {
		u.receive(u.Bus.ReadData())
	}

	if u.Bus.TxReady() {
		// Some peripherals keep reporting "empty" while the interrupt is
		// masked; that state belongs to nobody.
		if u.Bus.TxInterruptEnabled() {
			u.transmit()
		} else {
			u.dbgStaleTx()
		}
	}
}

func (u *UART) receive(b byte) {
	n, ok := u.rx.push(b)
	u.dbgOnByte(ok, n)
	if !ok {
		u.dropped.Add(1)
		u.overflow.Store(true)
		return
	}
	signal(u.notify)

	// Occupancy rises one byte at a time and only here, so every upward
	// crossing passes through exactly the watermark.
	if n == u.watermark {
		u.raiseBacklog()
	}
}

func (u *UART) raiseBacklog() {
	signal(u.backlog)
	if u.deferred != nil {
		u.deferred.Pend()
	}
	u.dbgBacklog()
}

func (u *UART) transmit() {
	if b, ok := u.tx.Dequeue(); ok {
		u.Bus.WriteData(b)
		u.dbgTxByte()
		signal(u.txNotify)
		return
	}

	// Nothing to send: disable the interrupt and wait for a kick.
	u.Bus.DisableTxInterrupt()
	u.primed.Store(false)
	u.dbgDrain()
	signal(u.txNotify)

	// A byte queued after the failed Dequeue but before primed was cleared saw
	// the transmitter primed and did not arm it.
	if !u.tx.IsEmpty() {
		u.arm()
	}
}
