package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	defaultReadTimeout = time.Second
	maxLineLength      = 1024
)

var errNoLine = errors.New("source: no complete line before timeout")

// PortOpener opens a serial port. Reads on the returned port must return (0, nil)
// when the read timeout elapses without data.
type PortOpener func(name string, baud int, readTimeout time.Duration) (io.ReadCloser, error)

// OpenSerialPort opens a real serial device with 8N1 framing.
func OpenSerialPort(name string, baud int, readTimeout time.Duration) (io.ReadCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// SerialConfig describes the meter link.
type SerialConfig struct {
	Port        string
	BaudRate    int
	Station     string
	ReadTimeout time.Duration
}

// SerialSource reads one newline-terminated record per tick from a serial meter.
// The port stays open between ticks and is reopened lazily after an I/O error.
type SerialSource struct {
	cfg     SerialConfig
	open    PortOpener
	now     func() time.Time
	logger  *zap.Logger
	port    io.ReadCloser
	pending []byte
	chunk   []byte
}

// NewSerialSource builds a live source. A nil opener uses OpenSerialPort.
func NewSerialSource(cfg SerialConfig, open PortOpener, logger *zap.Logger) *SerialSource {
	if open == nil {
		open = OpenSerialPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialSource{
		cfg:    cfg,
		open:   open,
		now:    time.Now,
		logger: logger,
		chunk:  make([]byte, 256),
	}
}

// Next reads the next record. Malformed records and read timeouts are skipped;
// I/O errors close the port and are returned.
func (s *SerialSource) Next(ctx context.Context, sequenceID int64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.port == nil {
		port, err := s.open(s.cfg.Port, s.cfg.BaudRate, s.cfg.ReadTimeout)
		if err != nil {
			return Result{}, fmt.Errorf("source: open %s: %w", s.cfg.Port, err)
		}
		s.logger.Info("serial port opened", zap.String("port", s.cfg.Port), zap.Int("baud", s.cfg.BaudRate))
		s.port = port
	}

	line, err := s.readLine()
	if errors.Is(err, errNoLine) {
		return Skipped("no data"), nil
	}
	if err != nil {
		s.reset()
		return Result{}, fmt.Errorf("source: read %s: %w", s.cfg.Port, err)
	}
	if !utf8.ValidString(line) {
		return Skipped("invalid utf-8"), nil
	}

	reading, err := ParseLine(sequenceID, s.cfg.Station, line, s.now())
	if err != nil {
		s.logger.Debug("dropping serial record", zap.String("line", line), zap.Error(err))
		return Skipped(err.Error()), nil
	}
	return Produced(reading), nil
}

func (s *SerialSource) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(bytes.TrimRight(s.pending[:i], "\r"))
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			return line, nil
		}
		if len(s.pending) > maxLineLength {
			s.pending = s.pending[:0]
		}

		n, err := s.port.Read(s.chunk)
		if n > 0 {
			s.pending = append(s.pending, s.chunk[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		return "", errNoLine
	}
}

func (s *SerialSource) reset() {
	if s.port != nil {
		_ = s.port.Close()
	}
	s.port = nil
	s.pending = s.pending[:0]
}

// Close releases the serial port.
func (s *SerialSource) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
