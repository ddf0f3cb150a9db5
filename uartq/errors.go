package uartq

import "errors"

var (
	// ErrBufferEmpty is returned by ReadByte when no received byte is queued.
	ErrBufferEmpty = errors.New("UART buffer empty")

	// ErrInvalidQueueSize indicates a queue that could hold no bytes.
	ErrInvalidQueueSize = errors.New("invalid queue size")

	// ErrInvalidWatermark indicates a receive watermark outside the queue capacity.
	ErrInvalidWatermark = errors.New("invalid receive watermark")

	// ErrNilPeripheral indicates a UART built without a peripheral.
	ErrNilPeripheral = errors.New("nil peripheral")

	// ErrInvalidFormat indicates a frame format the PL011 cannot produce.
	ErrInvalidFormat = errors.New("invalid frame format")
)
