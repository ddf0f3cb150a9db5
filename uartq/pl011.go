package uartq

import "fmt"

// UARTParity defines the parity setting used for UART communication.
type UARTParity uint8

const (
	// ParityNone disables parity generation and checking.
	ParityNone UARTParity = iota
	// ParityEven sets even parity.
	ParityEven
	// ParityOdd sets odd parity.
	ParityOdd
)

// PL011 UARTLCR_H fields. FEN (bit 4) is never set: the FIFOs stay off.
const (
	lcrPEN     = 1 << 1
	lcrEPS     = 1 << 2
	lcrSTP2    = 1 << 3
	lcrWLENPos = 5

	maxIBRD = 0xFFFF
)

// pl011Divisors returns the integer and 6-bit fractional baud divisors for
// baud at the given peripheral clock. Out-of-range rates clamp to the
// fastest or slowest the divider can produce.
func pl011Divisors(clock, baud uint32) (ibrd, fbrd uint32) {
	// The divisor is clock/(16*baud) in 1/128ths; rounding to 1/64ths below.
	div := uint32(uint64(clock) * 8 / uint64(baud))
	ibrd = div >> 7
	switch {
	case ibrd == 0:
		return 1, 0
	case ibrd >= maxIBRD:
		return maxIBRD, 0
	}
	return ibrd, ((div & 0x7f) + 1) / 2
}

// pl011Rate is the baud rate the divisors actually produce.
func pl011Rate(clock, ibrd, fbrd uint32) uint32 {
	return uint32(uint64(clock) * 4 / uint64(64*ibrd+fbrd))
}

// pl011LineControl encodes a frame format as a UARTLCR_H value.
func pl011LineControl(databits, stopbits uint8, parity UARTParity) (uint32, error) {
	if databits < 5 || databits > 8 {
		return 0, fmt.Errorf("%d data bits: %w", databits, ErrInvalidFormat)
	}
	if stopbits != 1 && stopbits != 2 {
		return 0, fmt.Errorf("%d stop bits: %w", stopbits, ErrInvalidFormat)
	}

	lcr := uint32(databits-5) << lcrWLENPos
	if stopbits == 2 {
		lcr |= lcrSTP2
	}
	switch parity {
	case ParityNone:
	case ParityEven:
		lcr |= lcrPEN | lcrEPS
	case ParityOdd:
		lcr |= lcrPEN
	default:
		return 0, fmt.Errorf("parity %d: %w", parity, ErrInvalidFormat)
	}
	return lcr, nil
}
