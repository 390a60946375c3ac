package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"gocv.io/x/gocv"
)

// serialBaud is the ESP32 capture firmware's fixed baud rate.
const serialBaud = 3_000_000

// serialBufferSize bounds the internal scan buffer; buffered bytes that
// reach it without completing a frame are flushed and reported rather
// than growing without bound.
const serialBufferSize = 32 * 1024

// frameMarker precedes every JPEG payload on the wire: a fixed 4-byte
// sync pattern followed by a little-endian uint16 payload length.
var frameMarker = []byte{0xFF, 0xA0, 0xFF, 0xA1}

// SerialSource reads JPEG frames from an ESP32 camera module sending
// length-prefixed frames over a dedicated USB-serial link.
type SerialSource struct {
	path string
	port serial.Port
	buf  []byte

	onOverflow func(dropped int)
}

func NewSerialSource(path string, onOverflow func(dropped int)) *SerialSource {
	return &SerialSource{path: path, onOverflow: onOverflow}
}

func (s *SerialSource) Open(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: serialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.path, mode)
	if err != nil {
		return fmt.Errorf("opening serial port %q: %w", s.path, err)
	}
	if err := port.SetReadTimeout(openTimeout); err != nil {
		port.Close()
		return fmt.Errorf("setting read timeout on %q: %w", s.path, err)
	}
	s.port = port
	s.buf = s.buf[:0]
	return nil
}

// Read scans the serial stream for the next complete frame. Bytes with no
// frame marker are trimmed as they arrive; if the scan buffer still
// reaches serialBufferSize without completing a frame, it is flushed
// entirely and onOverflow is invoked with the number of bytes dropped.
func (s *SerialSource) Read(ctx context.Context) (gocv.Mat, error) {
	if s.port == nil {
		return gocv.NewMat(), fmt.Errorf("serial source not open")
	}

	chunk := make([]byte, 4096)
	for {
		if payload, ok := s.tryExtractFrame(); ok {
			mat, err := gocv.IMDecode(payload, gocv.IMReadColor)
			if err != nil {
				continue
			}
			return mat, nil
		}

		if len(s.buf) >= serialBufferSize {
			dropped := len(s.buf)
			s.buf = s.buf[:0]
			if s.onOverflow != nil {
				s.onOverflow(dropped)
			}
		}

		select {
		case <-ctx.Done():
			return gocv.NewMat(), ctx.Err()
		default:
		}

		n, err := s.port.Read(chunk)
		if err != nil {
			if err == io.EOF {
				return gocv.NewMat(), fmt.Errorf("serial port %q closed", s.path)
			}
			return gocv.NewMat(), fmt.Errorf("reading serial port %q: %w", s.path, err)
		}
		if n == 0 {
			continue
		}
		s.buf = append(s.buf, chunk[:n]...)
	}
}

// tryExtractFrame looks for frameMarker followed by a 2-byte little-endian
// length and that many payload bytes, consuming them from buf on success.
func (s *SerialSource) tryExtractFrame() ([]byte, bool) {
	idx := bytes.Index(s.buf, frameMarker)
	if idx < 0 {
		if len(s.buf) > len(frameMarker) {
			s.buf = s.buf[len(s.buf)-len(frameMarker):]
		}
		return nil, false
	}

	headerEnd := idx + len(frameMarker) + 2
	if len(s.buf) < headerEnd {
		s.buf = s.buf[idx:]
		return nil, false
	}

	length := int(binary.LittleEndian.Uint16(s.buf[idx+len(frameMarker) : headerEnd]))
	frameEnd := headerEnd + length
	if len(s.buf) < frameEnd {
		s.buf = s.buf[idx:]
		return nil, false
	}

	payload := make([]byte, length)
	copy(payload, s.buf[headerEnd:frameEnd])
	s.buf = s.buf[frameEnd:]
	return payload, true
}

func (s *SerialSource) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// fpsEstimator maintains a rolling estimate of frame rate from a small
// ring buffer of inter-frame deltas, used for serial sources where OpenCV
// cannot report a configured FPS.
type fpsEstimator struct {
	deltas []time.Duration
	last   time.Time
	cap    int
}

func newFPSEstimator(capacity int) *fpsEstimator {
	if capacity <= 0 {
		capacity = 10
	}
	return &fpsEstimator{cap: capacity}
}

func (e *fpsEstimator) Tick(now time.Time) float64 {
	if e.last.IsZero() {
		e.last = now
		return 0
	}
	delta := now.Sub(e.last)
	e.last = now

	e.deltas = append(e.deltas, delta)
	if len(e.deltas) > e.cap {
		e.deltas = e.deltas[1:]
	}

	var total time.Duration
	for _, d := range e.deltas {
		total += d
	}
	avg := total / time.Duration(len(e.deltas))
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}
