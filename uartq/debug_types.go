//go:build uartqdebug

package uartq

import "sync/atomic"

// Stats holds counters since the last reset.
type Stats struct {
	// Handler-level
	ISRCount uint32 // number of HandleInterrupt entries
	StaleTx  uint32 // TX ready observed while the TX interrupt was disabled

	// RX queue
	RxPuts        uint32 // successful enqueues
	RxDrops       uint32 // failed enqueues (overflow)
	RxMaxUsed     uint32 // high-water mark of RX occupancy
	BacklogRaised uint32 // watermark crossings signalled

	// TX path
	TxBytes  uint32 // bytes written to the data register
	TxArms   uint32 // Idle -> Primed transitions
	TxDrains uint32 // Primed -> Idle transitions
	PutSpins uint32 // PutByte retries on a full TX queue
}

// DebugReset zeroes all counters.
func (u *UART) DebugReset() {
	atomic.StoreUint32(&u.stats.ISRCount, 0)
	atomic.StoreUint32(&u.stats.StaleTx, 0)
	atomic.StoreUint32(&u.stats.RxPuts, 0)
	atomic.StoreUint32(&u.stats.RxDrops, 0)
	atomic.StoreUint32(&u.stats.RxMaxUsed, 0)
	atomic.StoreUint32(&u.stats.BacklogRaised, 0)
	atomic.StoreUint32(&u.stats.TxBytes, 0)
	atomic.StoreUint32(&u.stats.TxArms, 0)
	atomic.StoreUint32(&u.stats.TxDrains, 0)
	atomic.StoreUint32(&u.stats.PutSpins, 0)
}

// DebugStats returns a copy of the counters.
func (u *UART) DebugStats() Stats {
	return Stats{
		ISRCount:      atomic.LoadUint32(&u.stats.ISRCount),
		StaleTx:       atomic.LoadUint32(&u.stats.StaleTx),
		RxPuts:        atomic.LoadUint32(&u.stats.RxPuts),
		RxDrops:       atomic.LoadUint32(&u.stats.RxDrops),
		RxMaxUsed:     atomic.LoadUint32(&u.stats.RxMaxUsed),
		BacklogRaised: atomic.LoadUint32(&u.stats.BacklogRaised),
		TxBytes:       atomic.LoadUint32(&u.stats.TxBytes),
		TxArms:        atomic.LoadUint32(&u.stats.TxArms),
		TxDrains:      atomic.LoadUint32(&u.stats.TxDrains),
		PutSpins:      atomic.LoadUint32(&u.stats.PutSpins),
	}
}

// Regs is a snapshot of queue positions.
type Regs struct {
	RxRead, RxWrite uint32
	TxRead, TxWrite uint32
	Primed          bool
	TxIRQEnabled    bool
}

// DebugRegs returns the current queue indices and transmitter state.
func (u *UART) DebugRegs() Regs {
	var r Regs
	r.RxRead, r.RxWrite = u.rx.indices()
	r.TxRead, r.TxWrite = u.tx.indices()
	r.Primed = u.primed.Load()
	r.TxIRQEnabled = u.Bus.TxInterruptEnabled()
	return r
}
