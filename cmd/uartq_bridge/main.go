// uartq_bridge runs a simulated interrupt-driven UART against a real byte
// stream and echoes everything it receives. The wire is either a serial
// device opened with go.bug.st/serial or a fresh pseudo-terminal whose name
// is printed on startup.
//
//	uartq_bridge -port /dev/ttyUSB0 -baud 115200
//	uartq_bridge -pty
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"github.com/jangala-dev/tinygo-uartq/sim"
	"github.com/jangala-dev/tinygo-uartq/uartq"
)

type config struct {
	port      string
	pty       bool
	baud      int
	queueSize int
	watermark int
	debug     bool
	json      bool
}

func parseConfig(args []string) (*config, error) {
	fs := flag.NewFlagSet("uartq_bridge", flag.ContinueOnError)
	cfg := &config{}
	fs.StringVar(&cfg.port, "port", "", "Serial device to bridge to")
	fs.BoolVar(&cfg.pty, "pty", false, "Create a pseudo-terminal instead of opening -port")
	fs.IntVar(&cfg.baud, "baud", 115200, "Line rate; also paces the simulated transmitter")
	fs.IntVar(&cfg.queueSize, "queue", uartq.DefaultQueueSize, "Queue size in bytes, per direction")
	fs.IntVar(&cfg.watermark, "watermark", uartq.DefaultRxWatermark, "RX backlog watermark (0 disables)")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&cfg.json, "json", false, "Log as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case cfg.port == "" && !cfg.pty:
		return nil, errors.New("one of -port or -pty is required")
	case cfg.port != "" && cfg.pty:
		return nil, errors.New("-port and -pty are mutually exclusive")
	case cfg.baud <= 0:
		return nil, fmt.Errorf("invalid baud rate %d", cfg.baud)
	}
	return cfg, nil
}

func (c *config) uart() uartq.Config {
	u := uartq.DefaultConfig()
	u.QueueSize = c.queueSize
	u.RxWatermark = c.watermark
	return u
}

func openWire(cfg *config) (io.ReadWriteCloser, func(), error) {
	if cfg.pty {
		master, tty, err := sim.OpenPTY()
		if err != nil {
			return nil, nil, err
		}
		fmt.Println("pty:", tty.Name())
		// Holding the tty open keeps the master readable between clients.
		return master, func() { _ = tty.Close() }, nil
	}

	port, err := serial.Open(cfg.port, &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.port, err)
	}
	return port, func() {}, nil
}

func run(ctx context.Context, cfg *config) error {
	log := uartq.Logger(uartq.ComponentBridge)

	u, p, err := sim.New(cfg.uart())
	if err != nil {
		return err
	}
	p.SetBaudRate(cfg.baud)

	wire, release, err := openWire(cfg)
	if err != nil {
		return err
	}
	defer release()
	defer func() {
		if err := wire.Close(); err != nil {
			log.Warn("close wire", "error", err)
		}
	}()

	go func() { _ = p.Run(ctx) }()
	go echo(ctx, u)

	log.Info("bridge running", "baud", cfg.baud, "queue", cfg.queueSize, "watermark", cfg.watermark)
	err = sim.Bridge(ctx, p, wire)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// echo plays the firmware: every received byte goes straight back out. A
// backlog notification means the loop is falling behind the line.
func echo(ctx context.Context, u *uartq.UART) {
	log := uartq.Logger(uartq.ComponentUART)
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.Backlog():
			log.Debug("receive backlog", "buffered", u.Buffered())
		case <-u.Readable():
		}

		for {
			b, ok := u.GetByte()
			if !ok {
				break
			}
			u.PutByte(b)
		}
		if u.Overflow() {
			u.ClearOverflow()
		}
	}
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	uartq.SetLogger(uartq.NewLogger(os.Stderr, cfg.json))
	if cfg.debug {
		uartq.SetLogLevel(slog.LevelDebug)
	} else {
		uartq.SetLogLevel(slog.LevelInfo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
