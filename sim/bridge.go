package sim

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jangala-dev/tinygo-uartq/uartq"
)

// Bridge connects a Port to a real byte stream: bytes read from wire are
// delivered to the receive register one at a time, and transmitted bytes are
// written to wire. Bridge returns when ctx is done or wire fails. Closing
// wire stops the reader.
func Bridge(ctx context.Context, p *Port, wire io.ReadWriter) error {
	log := uartq.Logger(uartq.ComponentBridge)
	p.SetOutput(wire)

	errc := make(chan error, 1)
	go func() { errc <- pump(ctx, p, wire) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		if err != nil {
			log.Debug("bridge stopped", "error", err)
		}
		return err
	}
}

func pump(ctx context.Context, p *Port, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if ierr := p.InjectWait(ctx, b); ierr != nil {
				return ierr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("wire read: %w", err)
		}
	}
}
