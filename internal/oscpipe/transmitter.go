package oscpipe

import (
	"fmt"
	"net"
	"sync"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/detect"
	"github.com/etvr-go/trackingd/internal/detect/oneeuro"
)

// TransmitterParams configures smoothing and address mapping.
type TransmitterParams struct {
	Endpoints  config.OSCEndpoints
	MirrorEyes bool
	MinCutoff  float64
	Beta       float64
}

// Transmitter sends smoothed per-eye tracking results to a fixed set of
// OSC addresses over UDP. It is safe for concurrent Send calls from
// multiple tracker workers.
type Transmitter struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	params  TransmitterParams
	filters map[string]*oneeuro.Vector2D
	t       float64
	enabled bool
}

// NewTransmitter dials address:port and returns a ready Transmitter.
func NewTransmitter(address string, port int, params TransmitterParams) (*Transmitter, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("oscpipe: resolving transmitter address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("oscpipe: dialing transmitter: %w", err)
	}
	if params.MinCutoff == 0 {
		params.MinCutoff = 0.9
	}
	if params.Beta == 0 {
		params.Beta = 5.0
	}
	return &Transmitter{
		conn:    conn,
		params:  params,
		filters: make(map[string]*oneeuro.Vector2D),
		enabled: true,
	}, nil
}

func (t *Transmitter) filterFor(position string) *oneeuro.Vector2D {
	f, ok := t.filters[position]
	if !ok {
		f = oneeuro.NewVector2D(t.params.MinCutoff, t.params.Beta)
		t.filters[position] = f
	}
	return f
}

// Send transmits one eye's smoothed result. The smoothed [0,1] coordinates
// are remapped to the [-1,1] range consuming avatar rigs expect: y is
// inverted and centered for both eyes, x is inverted and centered for the
// left eye and centered (uninverted) for the right eye. When MirrorEyes is
// set, a single eye's reading is broadcast to both eyes' endpoints (one
// physical camera driving a symmetric avatar face) instead of only its own
// position's address pair.
func (t *Transmitter) Send(data detect.EyeData) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return nil
	}

	t.t += 1.0 / 60.0
	x, y := t.filterFor(data.Position).Filter(t.t, data.X, data.Y)

	y = -(2 * (y - 0.5))
	switch data.Position {
	case "left_eye":
		x = -(2 * (x - 0.5))
	case "right_eye":
		x = 2 * (x - 0.5)
	default:
		return nil
	}

	if t.params.MirrorEyes {
		if err := t.write(t.params.Endpoints.LeftEyeX, float32(x)); err != nil {
			return err
		}
		if err := t.write(t.params.Endpoints.RightEyeX, float32(x)); err != nil {
			return err
		}
		if err := t.write(t.params.Endpoints.EyesY, float32(y)); err != nil {
			return err
		}
		if err := t.write(t.params.Endpoints.LeftEyeBlink, float32(data.Blink)); err != nil {
			return err
		}
		return t.write(t.params.Endpoints.RightEyeBlink, float32(data.Blink))
	}

	var xAddr, blinkAddr string
	switch data.Position {
	case "left_eye":
		xAddr, blinkAddr = t.params.Endpoints.LeftEyeX, t.params.Endpoints.LeftEyeBlink
	case "right_eye":
		xAddr, blinkAddr = t.params.Endpoints.RightEyeX, t.params.Endpoints.RightEyeBlink
	}

	if err := t.write(xAddr, float32(x)); err != nil {
		return err
	}
	if err := t.write(t.params.Endpoints.EyesY, float32(y)); err != nil {
		return err
	}
	return t.write(blinkAddr, float32(data.Blink))
}

// SendSyncBlink transmits a single combined blink value to both eyes'
// blink addresses, used when OSCConfig.SyncBlink collapses two trackers'
// blink signals into one.
func (t *Transmitter) SendSyncBlink(value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return nil
	}
	if err := t.write(t.params.Endpoints.LeftEyeBlink, float32(value)); err != nil {
		return err
	}
	return t.write(t.params.Endpoints.RightEyeBlink, float32(value))
}

func (t *Transmitter) write(address string, value float32) error {
	msg := buildMessage(address, value)
	_, err := t.conn.Write(msg)
	if err != nil {
		return fmt.Errorf("oscpipe: sending to %s: %w", address, err)
	}
	return nil
}

// Close releases the transmitter's socket.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
