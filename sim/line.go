package sim

import (
	"context"
	"io"

	"github.com/jangala-dev/tinygo-uartq/internal/syncutil"
)

// Line is an in-memory byte stream with one reader. Writes never block, so a
// port transmitting into a Line is never held up by the port receiving from
// it.
type Line struct {
	mu     syncutil.Mutex
	buf    []byte
	closed bool
	ready  chan struct{}
}

// NewLine returns an empty, open line.
func NewLine() *Line {
	return &Line{ready: make(chan struct{}, 1)}
}

// Write appends p. It fails with io.ErrClosedPipe once the line is closed.
func (l *Line) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	l.buf = append(l.buf, p...)
	l.mu.Unlock()
	poke(l.ready)
	return len(p), nil
}

// Read waits for data. After Close it drains what is left, then returns
// io.EOF.
func (l *Line) Read(p []byte) (int, error) {
	for {
		l.mu.Lock()
		if len(l.buf) > 0 {
			n := copy(p, l.buf)
			l.buf = l.buf[n:]
			l.mu.Unlock()
			return n, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		<-l.ready
	}
}

// Close ends the line.
func (l *Line) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	poke(l.ready)
	return nil
}

// duplex reads one line and writes another.
type duplex struct {
	io.Reader
	io.Writer
}

// Link cross-wires two ports, TX of each to RX of the other. Delivery waits
// for the receiving register to be read, so no byte is lost to an overrun
// however late a handler runs.
type Link struct {
	a, b   *Port
	ab, ba *Line
}

// NewLink connects a and b. Their outputs are redirected immediately; bytes
// are delivered once Run is called.
func NewLink(a, b *Port) *Link {
	l := &Link{a: a, b: b, ab: NewLine(), ba: NewLine()}
	a.SetOutput(l.ab)
	b.SetOutput(l.ba)
	return l
}

// Run carries bytes both ways until ctx is done, then closes both lines.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		_ = l.ab.Close()
		_ = l.ba.Close()
	}()

	errc := make(chan error, 2)
	go func() { errc <- Bridge(ctx, l.b, duplex{l.ab, l.ba}) }()
	go func() { errc <- Bridge(ctx, l.a, duplex{l.ba, l.ab}) }()

	err := <-errc
	cancel()
	<-errc
	return err
}
