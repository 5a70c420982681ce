package distance

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/clock"
)

// DefaultGPSDAddr is where gpsd listens by default.
const DefaultGPSDAddr = "localhost:2947"

// tpvReport is the subset of a gpsd TPV JSON object we need.
type tpvReport struct {
	Class  string    `json:"class"`
	Mode   int       `json:"mode"`
	Time   time.Time `json:"time"`
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	AltMSL *float64  `json:"altMSL"`
	Alt    *float64  `json:"alt"`
	EPH    *float64  `json:"eph"`
	EPV    *float64  `json:"epv"`
	Track  *float64  `json:"track"`
	Speed  *float64  `json:"speed"`
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func (r tpvReport) location(systemUptime float64) Location {
	alt := valueOr(r.AltMSL, valueOr(r.Alt, 0))
	verticalAccuracy := valueOr(r.EPV, -1)
	if r.Mode < 3 {
		verticalAccuracy = -1
	}
	return Location{
		SystemUptime:       systemUptime,
		Time:               r.Time,
		Latitude:           r.Lat,
		Longitude:          r.Lon,
		Altitude:           alt,
		HorizontalAccuracy: valueOr(r.EPH, 0),
		VerticalAccuracy:   verticalAccuracy,
		Course:             valueOr(r.Track, -1),
		Speed:              valueOr(r.Speed, -1),
	}
}

// parseTPV decodes a gpsd report line. It returns false for anything that
// is not a TPV report with a 2D or 3D fix.
func parseTPV(line []byte) (tpvReport, bool) {
	var report tpvReport
	if err := json.Unmarshal(line, &report); err != nil {
		return report, false
	}
	return report, report.Class == "TPV" && report.Mode >= 2
}

// GPSDSource streams fixes from a gpsd daemon using the ?WATCH protocol.
type GPSDSource struct {
	Addr        string
	DialTimeout time.Duration
	TimeSource  clock.TimeSource

	mu   sync.Mutex
	conn net.Conn
	done chan struct{}
}

func (g *GPSDSource) Start(ctx context.Context, sink func(Location)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		return errors.New("gpsd source already started")
	}
	addr := g.Addr
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	timeout := g.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if g.TimeSource == nil {
		g.TimeSource = clock.SystemTimeSource()
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gpsd connect: %w", err)
	}
	if _, err := fmt.Fprint(conn, `?WATCH={"enable":true,"json":true};`); err != nil {
		conn.Close()
		return fmt.Errorf("gpsd watch: %w", err)
	}

	g.conn = conn
	g.done = make(chan struct{})
	go g.read(ctx, conn, sink, g.done)
	return nil
}

func (g *GPSDSource) read(ctx context.Context, conn net.Conn, sink func(Location), done chan struct{}) {
	defer close(done)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		report, ok := parseTPV(scanner.Bytes())
		if !ok {
			continue
		}
		sink(report.location(g.TimeSource.SystemUptime()))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Warn("gpsd read failed", "error", err)
	}
}

// Stop closes the connection and waits for the reader.
func (g *GPSDSource) Stop() error {
	g.mu.Lock()
	conn, done := g.conn, g.done
	g.conn = nil
	g.mu.Unlock()
	if conn == nil {
		return nil
	}
	fmt.Fprint(conn, `?WATCH={"enable":false};`)
	err := conn.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
