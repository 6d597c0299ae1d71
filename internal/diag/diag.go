// Package diag builds the diagnostic logger: a console writer on stderr and,
// optionally, plain lines on a debug UART.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// DefaultBaud is the debug UART rate.
const DefaultBaud = 115200

// Options selects the log level and sinks.
type Options struct {
	Level      string    // zerolog level name; empty = info
	SerialPort string    // empty = console only
	Baud       int       // 0 = DefaultBaud
	Console    io.Writer // nil = os.Stderr
}

// openPort is replaced in tests.
var openPort = func(name string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(name, mode)
}

// New returns the logger and a closer for any port it opened.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("diagnostics level: %w", err)
		}
		level = l
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var closer io.Closer = nopCloser{}
	if opts.SerialPort != "" {
		baud := opts.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		port, err := openPort(opts.SerialPort, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open diagnostics port %s: %w", opts.SerialPort, err)
		}
		writers = append(writers, UART(port))
		closer = port
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, closer, nil
}

// UART renders events the way a serial terminal expects: no colour, CRLF
// line endings.
func UART(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        crlfWriter{w},
		NoColor:    true,
		TimeFormat: time.TimeOnly,
	}
}

type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	out := strings.ReplaceAll(strings.TrimRight(string(p), "\n"), "\n", "\r\n") + "\r\n"
	if _, err := io.WriteString(c.w, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
