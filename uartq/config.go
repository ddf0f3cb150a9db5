package uartq

import "fmt"

const (
	// DefaultQueueSize is the number of slots in each direction's queue.
	DefaultQueueSize = 512
	// DefaultRxWatermark is the receive occupancy that raises the backlog signal.
	DefaultRxWatermark = 11
)

// Config holds the parameters of a UART's software queues.
type Config struct {
	// QueueSize is the number of slots N in each of the RX and TX queues.
	QueueSize int
	// RxWatermark is the RX occupancy at which the backlog signal is raised,
	// once per crossing. Zero disables the signal.
	RxWatermark int
	// Fullness selects whether all N slots are usable or one is reserved.
	Fullness Fullness
	// Backlog, when set, is pended alongside the Backlog() channel.
	Backlog Trigger
}

// DefaultConfig returns a Config with 512-slot full-capacity queues and a
// receive watermark of 11 bytes.
func DefaultConfig() Config {
	return Config{
		QueueSize:   DefaultQueueSize,
		RxWatermark: DefaultRxWatermark,
		Fullness:    FullCapacity,
	}
}

// Validate reports whether the configuration can build a working UART.
func (c Config) Validate() error {
	usable := c.QueueSize
	if c.Fullness == ReserveSlot {
		usable--
	}
	if c.QueueSize < 1 || usable < 1 {
		return fmt.Errorf("queue size %d: %w", c.QueueSize, ErrInvalidQueueSize)
	}
	if c.RxWatermark < 0 || c.RxWatermark > usable {
		return fmt.Errorf("watermark %d with %d usable slots: %w", c.RxWatermark, usable, ErrInvalidWatermark)
	}
	return nil
}
