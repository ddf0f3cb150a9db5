//go:build !uartqdebug

package uartq

func (u *UART) dbgISR()             {}
func (u *UART) dbgStaleTx()         {}
func (u *UART) dbgOnByte(bool, int) {}
func (u *UART) dbgBacklog()         {}
func (u *UART) dbgTxByte()          {}
func (u *UART) dbgArm()             {}
func (u *UART) dbgDrain()           {}
func (u *UART) dbgPutSpin()         {}
