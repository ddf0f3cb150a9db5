// uartq_integrity is a cross-UART integrity test run entirely on the host.
// Two simulated ports are wired TX->RX both ways and paced at the chosen line
// rate; each side streams a deterministic pattern and the other verifies it
// byte for byte.
//
// A receive overrun on either port, an RX queue overflow, a mismatch or a
// timeout fails the run. The exit status is 1 when any test fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jangala-dev/tinygo-uartq/sim"
	"github.com/jangala-dev/tinygo-uartq/uartq"
)

const (
	preambleByte   = 0x55
	sendChunk      = 192
	recvChunk      = 256
	contextRadius  = 16
	extraFollowing = 128
)

func patternA(i int) byte { return byte((i*31 + 0x55) & 0xFF) }
func patternB(i int) byte { return byte((i*17 + 0xA6) & 0xFF) }

type options struct {
	baud    int
	bytes   int
	duplex  bool
	timeout time.Duration
	queue   int
}

type side struct {
	name string
	u    *uartq.UART
	p    *sim.Port
}

// newPair builds two cross-linked ports serviced until ctx is done.
func newPair(ctx context.Context, opt options) (*side, *side, error) {
	cfg := uartq.DefaultConfig()
	cfg.QueueSize = opt.queue

	u0, p0, err := sim.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	u1, p1, err := sim.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	p0.SetBaudRate(opt.baud)
	p1.SetBaudRate(opt.baud)

	link := sim.NewLink(p0, p1)
	go func() { _ = link.Run(ctx) }()
	go func() { _ = p0.Run(ctx) }()
	go func() { _ = p1.Run(ctx) }()
	return &side{name: "U0", u: u0, p: p0}, &side{name: "U1", u: u1, p: p1}, nil
}

func main() {
	var opt options
	flag.IntVar(&opt.baud, "baud", 115200, "Simulated line rate")
	flag.IntVar(&opt.bytes, "bytes", 64*1024, "Bytes per direction")
	flag.BoolVar(&opt.duplex, "duplex", true, "Run both directions at once")
	flag.DurationVar(&opt.timeout, "timeout", 30*time.Second, "Timeout per test")
	flag.IntVar(&opt.queue, "queue", uartq.DefaultQueueSize, "Queue size in bytes, per direction")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		uartq.SetLogLevel(slog.LevelDebug)
	}
	os.Exit(mainWithExitCode(opt))
}

func mainWithExitCode(opt options) int {
	fmt.Println("uartq integrity test (simulated)")
	fmt.Printf("baud = %d  bytes/dir = %d  duplex = %t\n", opt.baud, opt.bytes, opt.duplex)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s0, s1, err := newPair(ctx, opt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	pass, fail := 0, 0
	report := func(name string, err error) {
		if err == nil {
			fmt.Println("[PASS]", name)
			pass++
			return
		}
		fmt.Println("[FAIL]", name, ":", err)
		fail++
	}

	if opt.duplex {
		report("Full-duplex integrity", runFullDuplex(opt, s0, s1))
	} else {
		report("U0 -> U1 integrity", runOneWay(opt, s0, s1, patternA))
		report("U1 -> U0 integrity", runOneWay(opt, s1, s0, patternB))
	}
	for _, s := range []*side{s0, s1} {
		report(s.name+" line health", health(s))
	}

	fmt.Println()
	fmt.Println("Summary")
	fmt.Println("  passed =", pass)
	fmt.Println("  failed =", fail)
	if fail > 0 {
		return 1
	}
	return 0
}

func health(s *side) error {
	if s.p.Overrun() {
		return errors.New("receive overrun")
	}
	if s.u.Overflow() {
		return fmt.Errorf("rx queue overflow, %d bytes dropped", s.u.ClearOverflow())
	}
	if st := s.u.DebugStats(); st != (uartq.Stats{}) {
		fmt.Printf("  %s stats: %+v\n", s.name, st)
	}
	return nil
}

func runOneWay(opt options, tx, rx *side, gen func(int) byte) error {
	drain(tx.u)
	drain(rx.u)

	ctx, cancel := context.WithTimeout(context.Background(), opt.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- recvAndCheck(ctx, rx.u, gen, opt.bytes) }()

	tx.u.PutByte(preambleByte)
	sendPattern(tx.u, gen, opt.bytes)
	return <-errCh
}

func runFullDuplex(opt options, s0, s1 *side) error {
	drain(s0.u)
	drain(s1.u)

	ctx, cancel := context.WithTimeout(context.Background(), opt.timeout)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- recvAndCheck(ctx, s1.u, patternA, opt.bytes) }()
	go func() { errCh <- recvAndCheck(ctx, s0.u, patternB, opt.bytes) }()

	s0.u.PutByte(preambleByte)
	s1.u.PutByte(preambleByte)
	go sendPattern(s0.u, patternA, opt.bytes)
	go sendPattern(s1.u, patternB, opt.bytes)

	return errors.Join(<-errCh, <-errCh)
}

func drain(u *uartq.UART) {
	for u.Buffered() > 0 {
		_, _ = u.ReadByte()
	}
}

func sendPattern(u *uartq.UART, gen func(int) byte, n int) {
	var buf [sendChunk]byte
	for i := 0; i < n; {
		k := min(sendChunk, n-i)
		for j := 0; j < k; j++ {
			buf[j] = gen(i + j)
		}
		_, _ = u.Write(buf[:k])
		i += k
	}
}

// recvSome waits for at least one byte or ctx.
func recvSome(ctx context.Context, u *uartq.UART, p []byte) (int, error) {
	for {
		if n := u.TryRead(p); n > 0 {
			return n, nil
		}
		select {
		case <-u.Readable():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// recvAndCheck skips the preamble then reads exactly n bytes, comparing each
// against gen(i). On the first mismatch it prints the surrounding window and
// whatever followed.
func recvAndCheck(ctx context.Context, u *uartq.UART, gen func(int) byte, n int) error {
	var one [1]byte
	if _, err := recvSome(ctx, u, one[:]); err != nil {
		return fmt.Errorf("waiting for preamble: %w", err)
	}
	if one[0] != preambleByte {
		return fmt.Errorf("bad preamble %#02x", one[0])
	}

	var buf [recvChunk]byte
	received := 0
	for received < n {
		m, err := recvSome(ctx, u, buf[:min(len(buf), n-received)])
		if err != nil {
			return fmt.Errorf("after %d of %d bytes: %w", received, n, err)
		}
		for i, act := range buf[:m] {
			if act == gen(received+i) {
				continue
			}
			off := received + i
			printContext(gen, off, buf[:m], i)
			following := append([]byte(nil), buf[i+1:m]...)
			for len(following) < extraFollowing && off+1+len(following) < n {
				var tmp [recvChunk]byte
				k, err := recvSome(ctx, u, tmp[:extraFollowing-len(following)])
				if err != nil {
					break
				}
				following = append(following, tmp[:k]...)
			}
			printFollowing(off, following)
			return fmt.Errorf("integrity mismatch at offset %d", off)
		}
		received += m
	}
	return nil
}

func printContext(gen func(int) byte, off int, chunk []byte, rel int) {
	start := max(off-contextRadius, 0)
	end := off + contextRadius + 1
	base := off - rel

	fmt.Printf("Context (hex): bytes %d to %d\n", start, end-1)
	fmt.Print(" exp:")
	for i := start; i < end; i++ {
		printCell(gen(i), i == off)
	}
	fmt.Println()
	fmt.Print(" act:")
	for i := start; i < end; i++ {
		var b byte
		if idx := i - base; idx >= 0 && idx < len(chunk) {
			b = chunk[idx]
		}
		printCell(b, i == off)
	}
	fmt.Println()
}

func printCell(b byte, pivot bool) {
	if pivot {
		fmt.Printf("[%02X]", b)
		return
	}
	fmt.Printf(" %02X", b)
}

func printFollowing(off int, following []byte) {
	fmt.Printf("Following bytes received after mismatch (next %d bytes):\n", len(following))
	if len(following) == 0 {
		fmt.Println(" <none>")
		return
	}
	for i := 0; i < len(following); i += 16 {
		end := min(i+16, len(following))
		fmt.Printf("  +%d:", off+1+i)
		for _, b := range following[i:end] {
			fmt.Printf(" %02X", b)
		}
		fmt.Println()
	}
}
