package oscpipe

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// Commands is the fixed set of inbound OSC commands the listener
// recognizes. Any other address is ignored.
type Commands struct {
	Recenter    func()
	Recalibrate func()
	SyncBlink   func(value float32)
}

// Listener receives OSC commands over UDP and dispatches them to the
// matching callback in Commands, matched by address against the
// configured endpoint names.
type Listener struct {
	conn      *net.UDPConn
	endpoints map[string]func([]float32)
	log       zerolog.Logger
}

// NewListener binds to address:port and wires the recenter/recalibrate/
// sync_blink addresses to their callbacks.
func NewListener(address string, port int, recenterAddr, recalibrateAddr, syncBlinkAddr string, cmds Commands, log zerolog.Logger) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("oscpipe: resolving listener address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("oscpipe: listening on %s: %w", udpAddr, err)
	}

	endpoints := make(map[string]func([]float32))
	if cmds.Recenter != nil {
		endpoints[recenterAddr] = func([]float32) { cmds.Recenter() }
	}
	if cmds.Recalibrate != nil {
		endpoints[recalibrateAddr] = func([]float32) { cmds.Recalibrate() }
	}
	if cmds.SyncBlink != nil {
		endpoints[syncBlinkAddr] = func(args []float32) {
			if len(args) > 0 {
				cmds.SyncBlink(args[0])
			}
		}
	}

	return &Listener{
		conn:      conn,
		endpoints: endpoints,
		log:       log.With().Str("component", "oscpipe.listener").Logger(),
	}, nil
}

// Serve reads and dispatches incoming commands until ctx is canceled.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("oscpipe: reading command: %w", err)
		}

		address, args, ok := parseMessage(buf[:n])
		if !ok {
			l.log.Warn().Msg("discarding malformed OSC command")
			continue
		}
		handler, known := l.endpoints[address]
		if !known {
			continue
		}
		handler(args)
	}
}

// Close releases the listener's socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}
