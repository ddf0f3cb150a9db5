package sim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/tinygo-uartq/internal/syncutil"
	"github.com/jangala-dev/tinygo-uartq/uartq"
)

// echo returns every received byte until ctx is done.
func echo(ctx context.Context, u *uartq.UART) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.Readable():
		}
		for {
			b, ok := u.GetByte()
			if !ok {
				break
			}
			u.PutByte(b)
		}
	}
}

// pipeWire joins an io.Pipe for the receive direction with a buffer that
// records what the port transmits.
type pipeWire struct {
	*io.PipeReader
	out *syncBuffer
}

func (w pipeWire) Write(p []byte) (int, error) { return w.out.Write(p) }

func TestBridge_EchoesThroughPort(t *testing.T) {
	u, p := newSim(t, uartq.DefaultConfig())
	runPort(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go echo(ctx, u)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	errc := make(chan error, 1)
	go func() { errc <- Bridge(ctx, p, pipeWire{pr, out}) }()

	_, err := pw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	require.NoError(t, <-errc, "EOF on the wire ends the bridge cleanly")
	require.Eventually(t, func() bool { return out.String() == "hello" },
		2*time.Second, time.Millisecond)
	assert.Empty(t, p.Transmitted(), "bytes go to the wire, not the record")
}

func TestBridge_WireError(t *testing.T) {
	_, p := newSim(t, uartq.DefaultConfig())
	pr, pw := io.Pipe()
	boom := errors.New("line dropped")
	require.NoError(t, pw.CloseWithError(boom))

	err := Bridge(context.Background(), p, pipeWire{pr, &syncBuffer{}})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "wire read")
}

func TestBridge_StopsOnContext(t *testing.T) {
	_, p := newSim(t, uartq.DefaultConfig())
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Bridge(ctx, p, pipeWire{pr, &syncBuffer{}})
	require.ErrorIs(t, err, context.Canceled)
}

type syncBuffer struct {
	mu  syncutil.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
