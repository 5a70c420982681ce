package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultSampleRate is the capture rate used by PipeWireMeter.
const DefaultSampleRate = 48000

const stopTimeout = 5 * time.Second

// PipeWireMeter meters a PipeWire source by streaming raw mono PCM from
// pw-record.
type PipeWireMeter struct {
	Source     string
	SampleRate int
	// Tee receives the raw PCM stream when set. Set it before Start.
	Tee io.Writer
	// ListPorts lists the graph ports Source is checked against. Defaults
	// to pw-link.
	ListPorts func() ([]string, error)

	mu       sync.Mutex
	cmd      *exec.Cmd
	readDone chan error
	quit     chan struct{}
}

func NewPipeWireMeter(source string) *PipeWireMeter {
	return &PipeWireMeter{Source: source, SampleRate: DefaultSampleRate, ListPorts: NewPipeWire().ListPorts}
}

// validateSource fails when the configured source is missing or exists
// more than once.
func (m *PipeWireMeter) validateSource() error {
	if m.Source == "" || m.ListPorts == nil {
		return nil
	}
	ports, err := m.ListPorts()
	if err != nil {
		slog.Debug("Failed to check source existence", "source", m.Source, "error", err)
		return err
	}
	return validateSourceIn(m.Source, ports)
}

func (m *PipeWireMeter) args() []string {
	args := []string{
		"--rate", strconv.Itoa(m.SampleRate),
		"--channels", "1",
		"--format", "s16",
	}
	if m.Source != "" {
		args = append(args, "--target", nodeName(m.Source))
	}
	return append(args, "-")
}

func (m *PipeWireMeter) Start(ctx context.Context, interval time.Duration, sink func(Level)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return errors.New("meter already started")
	}
	if m.SampleRate <= 0 {
		m.SampleRate = DefaultSampleRate
	}
	frame := int(float64(m.SampleRate) * interval.Seconds())
	if frame <= 0 {
		return fmt.Errorf("invalid metering interval: %s", interval)
	}
	if err := m.validateSource(); err != nil {
		return fmt.Errorf("invalid audio source: %w", err)
	}

	args := m.args()
	slog.Info("Starting pw-record", "command", "pw-record "+strings.Join(args, " "))
	cmd := exec.Command("pw-record", args...)
	cmd.Env = append(os.Environ(), "PIPEWIRE_LATENCY=256/48000")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pw-record: %w", err)
	}

	m.cmd = cmd
	m.readDone = make(chan error, 1)
	m.quit = make(chan struct{})
	go readOutput(stderr, "stderr")
	go func(done chan<- error) {
		done <- meterPCM(stdout, frame, m.Tee, sink)
	}(m.readDone)
	go func(quit <-chan struct{}) {
		select {
		case <-ctx.Done():
			if err := m.Stop(); err != nil {
				slog.Warn("Failed to stop pw-record", "error", err)
			}
		case <-quit:
		}
	}(m.quit)
	return nil
}

// readOutput logs a pipe line by line.
func readOutput(pipe io.ReadCloser, label string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		slog.Debug("pw-record output", "stream", label, "line", scanner.Text())
	}
}

// Stop interrupts pw-record and waits for it, killing it after a timeout.
func (m *PipeWireMeter) Stop() error {
	m.mu.Lock()
	cmd, readDone, quit := m.cmd, m.readDone, m.quit
	m.cmd = nil
	m.mu.Unlock()
	if cmd == nil {
		return nil
	}
	close(quit)

	slog.Debug("Sending SIGINT to pw-record process")
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to pw-record, killing", "error", err)
		cmd.Process.Kill()
	}

	var readErr error
	select {
	case readErr = <-readDone:
	case <-time.After(stopTimeout):
		slog.Warn("pw-record did not exit within timeout, force killing")
		cmd.Process.Kill()
		readErr = <-readDone
	}

	if err := cmd.Wait(); err != nil && !interruptedExit(err) {
		return fmt.Errorf("pw-record process failed: %w", err)
	}
	return readErr
}

// interruptedExit reports whether err only says the process ended because
// we asked it to.
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if code := exitErr.ExitCode(); code == 255 || code == 130 {
		return true
	}
	if exitErr.ProcessState != nil {
		switch exitErr.ProcessState.String() {
		case "signal: interrupt", "signal: killed":
			return true
		}
	}
	return false
}
