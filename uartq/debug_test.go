//go:build uartqdebug

package uartq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugStats_CountsHandlerActivity(t *testing.T) {
	u, bus := newTestUART(t, Config{QueueSize: 2, RxWatermark: 2})

	receiveAll(u, bus, 'a', 'b', 'c')
	u.PutByte('x')
	for !u.Drained() {
		u.HandleInterrupt()
	}
	u.HandleInterrupt() // TX ready but disarmed

	s := u.DebugStats()
	assert.Equal(t, uint32(2), s.RxPuts)
	assert.Equal(t, uint32(1), s.RxDrops)
	assert.Equal(t, uint32(2), s.RxMaxUsed)
	assert.Equal(t, uint32(1), s.BacklogRaised)
	assert.Equal(t, uint32(1), s.TxBytes)
	assert.Equal(t, uint32(1), s.TxArms)
	assert.Equal(t, uint32(1), s.TxDrains)
	assert.Equal(t, uint32(6), s.ISRCount)
	assert.GreaterOrEqual(t, s.StaleTx, uint32(1))

	r := u.DebugRegs()
	assert.Equal(t, uint32(0), r.RxRead)
	assert.Equal(t, uint32(0), r.RxWrite)
	assert.False(t, r.Primed)
	assert.False(t, r.TxIRQEnabled)

	u.DebugReset()
	assert.Equal(t, Stats{}, u.DebugStats())
}
