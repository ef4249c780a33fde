package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"go.bug.st/serial"
)

// Port is the minimal interface HardwareSyncTrigger depends on, mirroring
// a small port interface so tests can substitute an
// in-memory pipe instead of a real serial device.
type Port interface {
	io.ReadWriteCloser
}

// PortFactory opens a Port at the given name and baud rate. The production
// factory is OpenSerialPort; tests inject a fake.
type PortFactory func(name string, baud int) (Port, error)

// OpenSerialPort opens a real serial device via go.bug.st/serial.
func OpenSerialPort(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// Pulse is one hardware timestamp pulse emitted by the trigger board, one
// per camera exposure.
type Pulse struct {
	TimestampUs int64
	Index       uint64
}

// HardwareSyncTrigger is an optional timing source: a
// serial-attached microcontroller emitting a line-framed "<index> <ts_us>"
// pulse per camera exposure, feeding the CameraDriver's "hardware timestamp
// when available" path. Absent, CameraDriver falls back to its own
// software-clock dev mode.
type HardwareSyncTrigger struct {
	open PortFactory
	port Port
}

func NewHardwareSyncTrigger(open PortFactory) *HardwareSyncTrigger {
	if open == nil {
		open = OpenSerialPort
	}
	return &HardwareSyncTrigger{open: open}
}

func (t *HardwareSyncTrigger) Open(name string, baud int) error {
	port, err := t.open(name, baud)
	if err != nil {
		return fmt.Errorf("camera: opening hardware sync trigger on %q: %w", name, err)
	}
	t.port = port
	return nil
}

func (t *HardwareSyncTrigger) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

// Pulses streams decoded pulses until ctx is cancelled or the port errs.
// Malformed lines are logged and skipped rather than terminating the stream,
// since a single corrupted pulse must not take down acquisition.
func (t *HardwareSyncTrigger) Pulses(ctx context.Context) (<-chan Pulse, error) {
	if t.port == nil {
		return nil, fmt.Errorf("camera: hardware sync trigger not open")
	}
	out := make(chan Pulse, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(t.port)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			p, err := parsePulseLine(scanner.Text())
			if err != nil {
				monitoring.Logf("camera: malformed sync pulse line: %v", err)
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func parsePulseLine(line string) (Pulse, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Pulse{}, fmt.Errorf("expected 2 fields, got %d: %q", len(fields), line)
	}
	idx, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Pulse{}, fmt.Errorf("parsing index: %w", err)
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Pulse{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return Pulse{TimestampUs: ts, Index: idx}, nil
}
