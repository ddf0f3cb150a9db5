//go:build uartqdebug

package uartq

import "sync/atomic"

func (u *UART) dbgISR() {
	atomic.AddUint32(&u.stats.ISRCount, 1)
}

func (u *UART) dbgStaleTx() {
	atomic.AddUint32(&u.stats.StaleTx, 1)
}

// Called per received byte with the Enqueue outcome and the occupancy after it.
func (u *UART) dbgOnByte(putOK bool, used int) {
	if !putOK {
		atomic.AddUint32(&u.stats.RxDrops, 1)
		return
	}
	atomic.AddUint32(&u.stats.RxPuts, 1)
	// track high-water mark
	for {
		max := atomic.LoadUint32(&u.stats.RxMaxUsed)
		if uint32(used) <= max {
			break
		}
		if atomic.CompareAndSwapUint32(&u.stats.RxMaxUsed, max, uint32(used)) {
			break
		}
	}
}

func (u *UART) dbgBacklog() {
	atomic.AddUint32(&u.stats.BacklogRaised, 1)
}

func (u *UART) dbgTxByte() {
	atomic.AddUint32(&u.stats.TxBytes, 1)
}

func (u *UART) dbgArm() {
	atomic.AddUint32(&u.stats.TxArms, 1)
}

func (u *UART) dbgDrain() {
	atomic.AddUint32(&u.stats.TxDrains, 1)
}

func (u *UART) dbgPutSpin() {
	atomic.AddUint32(&u.stats.PutSpins, 1)
}
